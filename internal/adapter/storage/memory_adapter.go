package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/patrion/internal/core/domain"
)

type memoryHistoryEntry struct {
	sectorID  string
	changedAt time.Time
}

type memoryItem struct {
	item    domain.InventoryItem
	history []memoryHistoryEntry
}

// MemoryAdapter keeps sectors and items in process memory. Sector data is
// stored once and joined into items on read, like the MySQL adapter.
type MemoryAdapter struct {
	mu      sync.RWMutex
	sectors map[string]domain.Sector
	items   map[string]*memoryItem
	byAsset map[string]string
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		sectors: make(map[string]domain.Sector),
		items:   make(map[string]*memoryItem),
		byAsset: make(map[string]string),
	}
}

func (m *MemoryAdapter) ListSectors(ctx context.Context) ([]domain.Sector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sectors := make([]domain.Sector, 0, len(m.sectors))
	for _, s := range m.sectors {
		sectors = append(sectors, s)
	}
	sort.Slice(sectors, func(i, j int) bool { return sectors[i].Name < sectors[j].Name })
	return sectors, nil
}

func (m *MemoryAdapter) GetSector(ctx context.Context, id string) (*domain.Sector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sectors[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	return &s, nil
}

func (m *MemoryAdapter) GetSectorByName(ctx context.Context, name string) (*domain.Sector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sectors {
		if s.Name == name {
			return &s, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (m *MemoryAdapter) CreateSector(ctx context.Context, sector domain.Sector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sectors[sector.ID]; ok {
		return domain.ErrDuplicateKey
	}
	for _, s := range m.sectors {
		if s.Name == sector.Name {
			return domain.ErrDuplicateKey
		}
	}
	m.sectors[sector.ID] = sector
	return nil
}

func (m *MemoryAdapter) InsertItem(ctx context.Context, item domain.InventoryItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byAsset[item.AssetNumber]; ok {
		return domain.ErrDuplicateKey
	}
	if _, ok := m.items[item.ID]; ok {
		return domain.ErrDuplicateKey
	}
	if _, ok := m.sectors[item.Sector.ID]; !ok {
		return domain.ErrUnknownReference
	}

	rec := &memoryItem{item: item}
	rec.item.Sector = domain.Sector{ID: item.Sector.ID}
	rec.item.SectorHistory = nil
	for _, h := range item.SectorHistory {
		if _, ok := m.sectors[h.Sector.ID]; !ok {
			return domain.ErrUnknownReference
		}
		rec.history = append(rec.history, memoryHistoryEntry{sectorID: h.Sector.ID, changedAt: h.ChangedAt})
	}

	m.items[item.ID] = rec
	m.byAsset[item.AssetNumber] = item.ID
	return nil
}

func (m *MemoryAdapter) GetItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.items[id]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	item := m.resolve(rec)
	return &item, nil
}

func (m *MemoryAdapter) GetItemByAssetNumber(ctx context.Context, assetNumber string) (*domain.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byAsset[assetNumber]
	if !ok {
		return nil, domain.ErrRecordNotFound
	}
	item := m.resolve(m.items[id])
	return &item, nil
}

func (m *MemoryAdapter) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]domain.InventoryItem, 0, len(m.items))
	for _, rec := range m.items {
		if !filter.Matches(rec.item) {
			continue
		}
		items = append(items, m.resolve(rec))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].AssetNumber < items[j].AssetNumber })
	return items, nil
}

func (m *MemoryAdapter) UpdateItem(ctx context.Context, item domain.InventoryItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.items[item.ID]
	if !ok {
		return false, domain.ErrRecordNotFound
	}
	if id, taken := m.byAsset[item.AssetNumber]; taken && id != item.ID {
		return false, domain.ErrDuplicateKey
	}
	if _, ok := m.sectors[item.Sector.ID]; !ok {
		return false, domain.ErrUnknownReference
	}

	moved := rec.item.Sector.ID != item.Sector.ID
	if moved {
		rec.history = append(rec.history, memoryHistoryEntry{sectorID: item.Sector.ID, changedAt: item.UpdatedAt})
	}

	delete(m.byAsset, rec.item.AssetNumber)
	m.byAsset[item.AssetNumber] = item.ID

	createdAt := rec.item.CreatedAt
	rec.item = item
	rec.item.CreatedAt = createdAt
	rec.item.Sector = domain.Sector{ID: item.Sector.ID}
	rec.item.SectorHistory = nil
	return moved, nil
}

func (m *MemoryAdapter) DeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.items[id]
	if !ok {
		return domain.ErrRecordNotFound
	}
	delete(m.byAsset, rec.item.AssetNumber)
	delete(m.items, id)
	return nil
}

func (m *MemoryAdapter) Ping(ctx context.Context) error {
	return ctx.Err()
}

// resolve joins sector names into a copy of the record. Callers hold m.mu.
func (m *MemoryAdapter) resolve(rec *memoryItem) domain.InventoryItem {
	item := rec.item
	item.Sector = m.sectors[rec.item.Sector.ID]
	item.SectorHistory = make([]domain.SectorChange, 0, len(rec.history))
	for _, h := range rec.history {
		item.SectorHistory = append(item.SectorHistory, domain.SectorChange{
			Sector:    m.sectors[h.sectorID],
			ChangedAt: h.changedAt,
		})
	}
	return item
}
