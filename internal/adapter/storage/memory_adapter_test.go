package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/patrion/internal/core/domain"
)

func seedMemory(t *testing.T) (*MemoryAdapter, domain.Sector, domain.Sector) {
	t.Helper()
	ctx := context.Background()
	m := NewMemoryAdapter()

	health := domain.Sector{ID: "sector-health", Name: "Health"}
	education := domain.Sector{ID: "sector-education", Name: "Education"}
	require.NoError(t, m.CreateSector(ctx, health))
	require.NoError(t, m.CreateSector(ctx, education))
	return m, health, education
}

func newMemoryItem(id, assetNumber string, sector domain.Sector, at time.Time) domain.InventoryItem {
	return domain.InventoryItem{
		ID:               id,
		AssetNumber:      assetNumber,
		Description:      "Office chair",
		Classification:   domain.ClassificationGood,
		Sector:           domain.Sector{ID: sector.ID},
		AcquisitionValue: 350,
		AcquisitionDate:  at,
		DepreciationRate: 10,
		SectorHistory:    []domain.SectorChange{{Sector: domain.Sector{ID: sector.ID}, ChangedAt: at}},
		CreatedAt:        at,
		UpdatedAt:        at,
	}
}

func TestMemoryAdapter_ListSectorsSortedByName(t *testing.T) {
	m, _, _ := seedMemory(t)

	sectors, err := m.ListSectors(context.Background())
	require.NoError(t, err)
	require.Len(t, sectors, 2)
	assert.Equal(t, "Education", sectors[0].Name)
	assert.Equal(t, "Health", sectors[1].Name)
}

func TestMemoryAdapter_CreateSectorDuplicateName(t *testing.T) {
	m, _, _ := seedMemory(t)

	err := m.CreateSector(context.Background(), domain.Sector{ID: "other", Name: "Health"})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestMemoryAdapter_InsertDuplicateAssetNumber(t *testing.T) {
	m, health, _ := seedMemory(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.InsertItem(ctx, newMemoryItem("a", "PAT-1", health, at)))
	err := m.InsertItem(ctx, newMemoryItem("b", "PAT-1", health, at))
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestMemoryAdapter_InsertUnknownSector(t *testing.T) {
	m, _, _ := seedMemory(t)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := m.InsertItem(context.Background(), newMemoryItem("a", "PAT-1", domain.Sector{ID: "nope"}, at))
	assert.ErrorIs(t, err, domain.ErrUnknownReference)
}

func TestMemoryAdapter_GetResolvesSector(t *testing.T) {
	m, health, _ := seedMemory(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.InsertItem(ctx, newMemoryItem("a", "PAT-1", health, at)))

	item, err := m.GetItemByAssetNumber(ctx, "PAT-1")
	require.NoError(t, err)
	assert.Equal(t, "Health", item.Sector.Name)
	require.Len(t, item.SectorHistory, 1)
	assert.Equal(t, "Health", item.SectorHistory[0].Sector.Name)

	_, err = m.GetItem(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestMemoryAdapter_ListFilterBySector(t *testing.T) {
	m, health, education := seedMemory(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.InsertItem(ctx, newMemoryItem("a", "PAT-2", health, at)))
	require.NoError(t, m.InsertItem(ctx, newMemoryItem("b", "PAT-1", education, at)))
	require.NoError(t, m.InsertItem(ctx, newMemoryItem("c", "PAT-3", health, at)))

	all, err := m.ListItems(ctx, domain.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "PAT-1", all[0].AssetNumber)

	onlyHealth, err := m.ListItems(ctx, domain.ItemFilter{SectorID: health.ID})
	require.NoError(t, err)
	require.Len(t, onlyHealth, 2)
	for _, item := range onlyHealth {
		assert.Equal(t, health.ID, item.Sector.ID)
	}
}

func TestMemoryAdapter_UpdateAppendsHistoryOnlyOnSectorChange(t *testing.T) {
	m, health, education := seedMemory(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.InsertItem(ctx, newMemoryItem("a", "PAT-1", health, at)))

	item, err := m.GetItem(ctx, "a")
	require.NoError(t, err)
	item.Notes = "scratched"
	item.UpdatedAt = at.Add(time.Hour)
	moved, err := m.UpdateItem(ctx, *item)
	require.NoError(t, err)
	assert.False(t, moved)

	item.Sector = domain.Sector{ID: education.ID}
	item.UpdatedAt = at.Add(2 * time.Hour)
	moved, err = m.UpdateItem(ctx, *item)
	require.NoError(t, err)
	assert.True(t, moved)

	got, err := m.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "scratched", got.Notes)
	assert.Equal(t, at, got.CreatedAt)
	require.Len(t, got.SectorHistory, 2)
	assert.Equal(t, education.ID, got.SectorHistory[1].Sector.ID)
	assert.Equal(t, at.Add(2*time.Hour), got.SectorHistory[1].ChangedAt)
}

func TestMemoryAdapter_UpdateAssetNumberCollision(t *testing.T) {
	m, health, _ := seedMemory(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.InsertItem(ctx, newMemoryItem("a", "PAT-1", health, at)))
	require.NoError(t, m.InsertItem(ctx, newMemoryItem("b", "PAT-2", health, at)))

	item, err := m.GetItem(ctx, "b")
	require.NoError(t, err)
	item.AssetNumber = "PAT-1"
	_, err = m.UpdateItem(ctx, *item)
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestMemoryAdapter_DeleteTwice(t *testing.T) {
	m, health, _ := seedMemory(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, m.InsertItem(ctx, newMemoryItem("a", "PAT-1", health, at)))

	require.NoError(t, m.DeleteItem(ctx, "a"))
	assert.ErrorIs(t, m.DeleteItem(ctx, "a"), domain.ErrRecordNotFound)

	// asset number is free again
	require.NoError(t, m.InsertItem(ctx, newMemoryItem("b", "PAT-1", health, at)))
}

func TestMemoryAdapter_ConcurrentInsertSameAssetNumber(t *testing.T) {
	m, health, _ := seedMemory(t)
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			item := newMemoryItem(fmt.Sprintf("item-%d", i), "PAT-RACE", health, at)
			if err := m.InsertItem(ctx, item); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
}
