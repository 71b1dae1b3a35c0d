package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rl1809/patrion/internal/adapter/storage"
	"github.com/rl1809/patrion/internal/core/domain"
	"github.com/rl1809/patrion/internal/port"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu             sync.Mutex
	idempotencySet map[string]bool
	sectors        []domain.Sector
	cached         bool
	err            error
	released       []string
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{idempotencySet: make(map[string]bool)}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}
	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotencySet, key)
	m.released = append(m.released, key)
	return nil
}

func (m *mockCacheRepo) GetSectors(ctx context.Context) ([]domain.Sector, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, false, m.err
	}
	return m.sectors, m.cached, nil
}

func (m *mockCacheRepo) SetSectors(ctx context.Context, sectors []domain.Sector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sectors = sectors
	m.cached = true
	return nil
}

func (m *mockCacheRepo) InvalidateSectors(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sectors = nil
	m.cached = false
	return nil
}

// Mock MediaStorage
type mockMedia struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
	n       int
}

func newMockMedia() *mockMedia {
	return &mockMedia{objects: make(map[string][]byte)}
}

func (m *mockMedia) Put(ctx context.Context, name, contentType string, r io.Reader, size int64) (port.StoredMedia, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.putErr != nil {
		return port.StoredMedia{}, m.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return port.StoredMedia{}, err
	}
	m.n++
	key := fmt.Sprintf("photo-%d", m.n)
	m.objects[key] = buf.Bytes()
	return port.StoredMedia{Key: key, URL: "/uploads/" + key}, nil
}

func (m *mockMedia) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockMedia) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// failingItems breaks selected writes of the in-memory store.
type failingItems struct {
	*storage.MemoryAdapter
	insertErr error
	updateErr error
}

func (f *failingItems) InsertItem(ctx context.Context, item domain.InventoryItem) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.MemoryAdapter.InsertItem(ctx, item)
}

func (f *failingItems) UpdateItem(ctx context.Context, item domain.InventoryItem) (bool, error) {
	if f.updateErr != nil {
		return false, f.updateErr
	}
	return f.MemoryAdapter.UpdateItem(ctx, item)
}

// countingSectors counts reads that reach the store.
type countingSectors struct {
	port.SectorRepository
	mu    sync.Mutex
	lists int
}

func (c *countingSectors) ListSectors(ctx context.Context) ([]domain.Sector, error) {
	c.mu.Lock()
	c.lists++
	c.mu.Unlock()
	return c.SectorRepository.ListSectors(ctx)
}

var errBoom = errors.New("boom")

func ptr[T any](v T) *T { return &v }

func jpeg(body string) *Photo {
	return &Photo{
		Filename:    "item.jpg",
		ContentType: "image/jpeg",
		Size:        int64(len(body)),
		Body:        bytes.NewBufferString(body),
	}
}
