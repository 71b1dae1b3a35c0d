package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/patrion/internal/adapter/storage"
	"github.com/rl1809/patrion/internal/core/depreciation"
	"github.com/rl1809/patrion/internal/core/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *InventoryService
	store *failingItems
	cache *mockCacheRepo
	media *mockMedia
	clock *fixedClock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	mem := storage.NewMemoryAdapter()
	ctx := context.Background()
	require.NoError(t, mem.CreateSector(ctx, domain.Sector{ID: "sec-adm", Name: "Administração", CreatedAt: t0}))
	require.NoError(t, mem.CreateSector(ctx, domain.Sector{ID: "sec-lab", Name: "Laboratório", CreatedAt: t0}))

	f := &fixture{
		store: &failingItems{MemoryAdapter: mem},
		cache: newMockCacheRepo(),
		media: newMockMedia(),
		clock: &fixedClock{t: t0},
	}
	base := []Option{WithMedia(f.media), WithClock(f.clock), WithIDGenerator(&seqIDs{})}
	f.svc = NewInventoryService(f.store, mem, f.cache, zap.NewNop(), append(base, opts...)...)
	return f
}

func (f *fixture) create(t *testing.T, assetNumber, sectorID string) *domain.ValuedItem {
	t.Helper()
	item, err := f.svc.Create(context.Background(), ItemInput{
		AssetNumber: assetNumber,
		Description: "Cadeira giratória",
		SectorID:    sectorID,
	}, nil, "")
	require.NoError(t, err)
	return item
}

func TestCreate_AppliesDefaults(t *testing.T) {
	f := newFixture(t)

	item, err := f.svc.Create(context.Background(), ItemInput{
		AssetNumber:      " 0001 ",
		Description:      "Mesa de escritório",
		SectorID:         "sec-adm",
		AcquisitionValue: ptr(1200.0),
	}, nil, "")
	require.NoError(t, err)

	assert.Equal(t, "id-1", item.ID)
	assert.Equal(t, "0001", item.AssetNumber)
	assert.Equal(t, domain.ClassificationGood, item.Classification)
	assert.Equal(t, domain.DefaultDepreciationRate, item.DepreciationRate)
	assert.Equal(t, t0, item.AcquisitionDate)
	assert.Equal(t, t0, item.CreatedAt)
	assert.Equal(t, t0, item.UpdatedAt)
	assert.Equal(t, "Administração", item.Sector.Name)
	assert.Equal(t, 1200.0, item.CurrentValue)

	require.Len(t, item.SectorHistory, 1)
	assert.Equal(t, "sec-adm", item.SectorHistory[0].Sector.ID)
	assert.Equal(t, t0, item.SectorHistory[0].ChangedAt)
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   ItemInput
	}{
		{name: "missing asset number", in: ItemInput{Description: "x", SectorID: "sec-adm"}},
		{name: "blank asset number", in: ItemInput{AssetNumber: "   ", Description: "x", SectorID: "sec-adm"}},
		{name: "missing description", in: ItemInput{AssetNumber: "1", SectorID: "sec-adm"}},
		{name: "missing sector", in: ItemInput{AssetNumber: "1", Description: "x"}},
		{name: "unknown sector", in: ItemInput{AssetNumber: "1", Description: "x", SectorID: "sec-nope"}},
		{name: "negative value", in: ItemInput{AssetNumber: "1", Description: "x", SectorID: "sec-adm", AcquisitionValue: ptr(-1.0)}},
		{name: "negative rate", in: ItemInput{AssetNumber: "1", Description: "x", SectorID: "sec-adm", DepreciationRate: ptr(-5.0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Create(context.Background(), tt.in, nil, "")
			assert.ErrorIs(t, err, ErrInvalidInput)

			items, err := f.svc.List(context.Background(), "")
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestCreate_DuplicateAssetNumber(t *testing.T) {
	f := newFixture(t)
	f.create(t, "0001", "sec-adm")

	_, err := f.svc.Create(context.Background(), ItemInput{
		AssetNumber: "0001",
		Description: "Outro",
		SectorID:    "sec-lab",
	}, nil, "")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreate_ConcurrentSameAssetNumber(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	var created, conflicts atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Create(context.Background(), ItemInput{
				AssetNumber: "0001",
				Description: "Projetor",
				SectorID:    "sec-adm",
			}, nil, "")
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, ErrConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(19), conflicts.Load())
}

func TestCreate_Idempotency(t *testing.T) {
	t.Run("repeated key is rejected", func(t *testing.T) {
		f := newFixture(t)
		in := ItemInput{AssetNumber: "0001", Description: "Notebook", SectorID: "sec-adm"}

		_, err := f.svc.Create(context.Background(), in, nil, "req-1")
		require.NoError(t, err)

		in.AssetNumber = "0002"
		_, err = f.svc.Create(context.Background(), in, nil, "req-1")
		assert.ErrorIs(t, err, ErrDuplicateRequest)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("failed create releases key", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, "0001", "sec-adm")

		in := ItemInput{AssetNumber: "0001", Description: "Notebook", SectorID: "sec-adm"}
		_, err := f.svc.Create(context.Background(), in, nil, "req-2")
		require.ErrorIs(t, err, ErrConflict)
		assert.Contains(t, f.cache.released, idempotencyKeyPrefix+"req-2")

		in.AssetNumber = "0002"
		_, err = f.svc.Create(context.Background(), in, nil, "req-2")
		assert.NoError(t, err)
	})

	t.Run("cache failure", func(t *testing.T) {
		f := newFixture(t)
		f.cache.err = errBoom

		_, err := f.svc.Create(context.Background(), ItemInput{
			AssetNumber: "0001", Description: "Notebook", SectorID: "sec-adm",
		}, nil, "req-3")
		assert.ErrorIs(t, err, ErrUpstream)
	})
}

func TestCreate_Photo(t *testing.T) {
	in := ItemInput{AssetNumber: "0001", Description: "Câmera", SectorID: "sec-lab"}

	t.Run("stored", func(t *testing.T) {
		f := newFixture(t)
		item, err := f.svc.Create(context.Background(), in, jpeg("image-bytes"), "")
		require.NoError(t, err)

		assert.Equal(t, "/uploads/photo-1", item.PhotoURL)
		assert.Equal(t, "photo-1", item.PhotoKey)
		assert.Equal(t, []byte("image-bytes"), f.media.objects["photo-1"])
	})

	t.Run("not an image", func(t *testing.T) {
		f := newFixture(t)
		photo := jpeg("%PDF")
		photo.ContentType = "application/pdf"

		_, err := f.svc.Create(context.Background(), in, photo, "")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Zero(t, f.media.count())
	})

	t.Run("too large", func(t *testing.T) {
		f := newFixture(t, WithMaxPhotoBytes(4))
		_, err := f.svc.Create(context.Background(), in, jpeg("12345"), "")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Zero(t, f.media.count())
	})

	t.Run("uploads disabled", func(t *testing.T) {
		f := newFixture(t, WithMedia(nil))
		_, err := f.svc.Create(context.Background(), in, jpeg("x"), "")
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("invalid input uploads nothing", func(t *testing.T) {
		f := newFixture(t)
		bad := in
		bad.SectorID = "sec-nope"
		_, err := f.svc.Create(context.Background(), bad, jpeg("x"), "")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Zero(t, f.media.count())
	})

	t.Run("upload failure", func(t *testing.T) {
		f := newFixture(t)
		f.media.putErr = errBoom
		_, err := f.svc.Create(context.Background(), in, jpeg("x"), "")
		assert.ErrorIs(t, err, ErrMediaUnavailable)
		assert.ErrorIs(t, err, ErrUpstream)

		_, err = f.svc.GetByAssetNumber(context.Background(), "0001")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("insert failure discards photo", func(t *testing.T) {
		f := newFixture(t)
		f.store.insertErr = errBoom

		_, err := f.svc.Create(context.Background(), in, jpeg("x"), "")
		assert.ErrorIs(t, err, ErrUpstream)
		assert.Zero(t, f.media.count())
		assert.Equal(t, []string{"photo-1"}, f.media.deleted)
	})
}

func TestUpdate_SectorChangeAppendsHistory(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "0001", "sec-adm")

	f.clock.Advance(time.Hour)
	updated, err := f.svc.Update(context.Background(), created.ID, ItemPatch{SectorID: ptr("sec-lab")}, nil)
	require.NoError(t, err)

	assert.Equal(t, "sec-lab", updated.Sector.ID)
	assert.Equal(t, "Laboratório", updated.Sector.Name)
	require.Len(t, updated.SectorHistory, 2)
	assert.Equal(t, "sec-adm", updated.SectorHistory[0].Sector.ID)
	assert.Equal(t, "sec-lab", updated.SectorHistory[1].Sector.ID)
	assert.Equal(t, t0.Add(time.Hour), updated.SectorHistory[1].ChangedAt)
	assert.Equal(t, t0.Add(time.Hour), updated.UpdatedAt)
	assert.Equal(t, t0, updated.CreatedAt)
}

func TestUpdate_WithoutSectorChangeKeepsHistory(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, "0001", "sec-adm")

	updated, err := f.svc.Update(context.Background(), created.ID, ItemPatch{
		Description:    ptr("Cadeira nova"),
		Classification: ptr("excellent"),
		SectorID:       ptr("sec-adm"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Cadeira nova", updated.Description)
	assert.Equal(t, domain.ClassificationExcellent, updated.Classification)
	assert.Len(t, updated.SectorHistory, 1)
}

func TestUpdate_Errors(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "0001", "sec-adm")
	f.create(t, "0002", "sec-adm")

	_, err := f.svc.Update(context.Background(), "missing", ItemPatch{Description: ptr("x")}, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.Update(context.Background(), first.ID, ItemPatch{AssetNumber: ptr("0002")}, nil)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.Update(context.Background(), first.ID, ItemPatch{SectorID: ptr("sec-nope")}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Update(context.Background(), first.ID, ItemPatch{Description: ptr("  ")}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	unchanged, err := f.svc.Get(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cadeira giratória", unchanged.Description)
	assert.Equal(t, "sec-adm", unchanged.Sector.ID)
}

func TestWrite_OutOfRangeIsInvalidInput(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "0001", "sec-adm")

	f.store.insertErr = fmt.Errorf("%w: column acquisition_value", domain.ErrOutOfRange)
	_, err := f.svc.Create(context.Background(), ItemInput{
		AssetNumber:      "0002",
		Description:      "Servidor",
		SectorID:         "sec-adm",
		AcquisitionValue: ptr(1e300),
	}, nil, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrUpstream)

	f.store.updateErr = fmt.Errorf("%w: column depreciation_rate", domain.ErrOutOfRange)
	_, err = f.svc.Update(context.Background(), first.ID, ItemPatch{DepreciationRate: ptr(5000.0)}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreate_KeepsFractionalAmounts(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(context.Background(), ItemInput{
		AssetNumber:      "0001",
		Description:      "Grampeador",
		SectorID:         "sec-adm",
		AcquisitionValue: ptr(10.005),
		DepreciationRate: ptr(1250.125),
	}, nil, "")
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.AcquisitionValue, got.AcquisitionValue)
	assert.Equal(t, 10.005, got.AcquisitionValue)
	assert.Equal(t, 1250.125, got.DepreciationRate)
}

func TestUpdate_ReplacesPhoto(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), ItemInput{
		AssetNumber: "0001", Description: "Monitor", SectorID: "sec-adm",
	}, jpeg("old"), "")
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), created.ID, ItemPatch{}, jpeg("new"))
	require.NoError(t, err)

	assert.Equal(t, "/uploads/photo-2", updated.PhotoURL)
	assert.Equal(t, []string{"photo-1"}, f.media.deleted)
	assert.Equal(t, 1, f.media.count())
}

func TestUpdate_FailureKeepsOldPhoto(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), ItemInput{
		AssetNumber: "0001", Description: "Monitor", SectorID: "sec-adm",
	}, jpeg("old"), "")
	require.NoError(t, err)

	f.store.updateErr = errBoom
	_, err = f.svc.Update(context.Background(), created.ID, ItemPatch{}, jpeg("new"))
	assert.ErrorIs(t, err, ErrUpstream)

	assert.Equal(t, []string{"photo-2"}, f.media.deleted)
	assert.Contains(t, f.media.objects, "photo-1")
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	created, err := f.svc.Create(context.Background(), ItemInput{
		AssetNumber: "0001", Description: "Impressora", SectorID: "sec-adm",
	}, jpeg("x"), "")
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), created.ID))
	assert.Zero(t, f.media.count())

	_, err = f.svc.GetByAssetNumber(context.Background(), "0001")
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.svc.Delete(context.Background(), created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_SectorFilter(t *testing.T) {
	f := newFixture(t)
	f.create(t, "0003", "sec-adm")
	f.create(t, "0001", "sec-lab")
	f.create(t, "0002", "sec-adm")

	tests := []struct {
		sector string
		want   []string
	}{
		{sector: "", want: []string{"0001", "0002", "0003"}},
		{sector: "all", want: []string{"0001", "0002", "0003"}},
		{sector: "ALL", want: []string{"0001", "0002", "0003"}},
		{sector: "sec-adm", want: []string{"0002", "0003"}},
		{sector: "sec-lab", want: []string{"0001"}},
		{sector: "sec-empty", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.sector, func(t *testing.T) {
			items, err := f.svc.List(context.Background(), tt.sector)
			require.NoError(t, err)

			got := make([]string, 0, len(items))
			for _, item := range items {
				got = append(got, item.AssetNumber)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCurrentValue(t *testing.T) {
	f := newFixture(t)

	created, err := f.svc.Create(context.Background(), ItemInput{
		AssetNumber:      "0001",
		Description:      "Servidor",
		SectorID:         "sec-lab",
		AcquisitionValue: ptr(1000.0),
		AcquisitionDate:  ptr(t0.Add(-depreciation.Year)),
	}, nil, "")
	require.NoError(t, err)
	assert.InDelta(t, 900.0, created.CurrentValue, 1e-9)

	f.clock.Advance(depreciation.Year / 2)
	item, err := f.svc.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.InDelta(t, 850.0, item.CurrentValue, 1e-9)

	f.clock.Advance(20 * depreciation.Year)
	item, err = f.svc.GetByAssetNumber(context.Background(), "0001")
	require.NoError(t, err)
	assert.Zero(t, item.CurrentValue)
}

func TestGetByAssetNumber(t *testing.T) {
	f := newFixture(t)
	f.create(t, "0001", "sec-adm")

	item, err := f.svc.GetByAssetNumber(context.Background(), " 0001 ")
	require.NoError(t, err)
	assert.Equal(t, "0001", item.AssetNumber)

	_, err = f.svc.GetByAssetNumber(context.Background(), "9999")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.GetByAssetNumber(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inputs := []ItemInput{
		{AssetNumber: "1", Description: "a", SectorID: "sec-adm", Classification: "excellent", OtherIdentification: "Etiqueta", AcquisitionValue: ptr(100.0)},
		{AssetNumber: "2", Description: "b", SectorID: "sec-adm", AcquisitionValue: ptr(200.0)},
		{AssetNumber: "3", Description: "c", SectorID: "sec-lab", Classification: "IDLE", OtherIdentification: "Etiqueta", AcquisitionValue: ptr(300.0)},
	}
	for _, in := range inputs {
		_, err := f.svc.Create(ctx, in, nil, "")
		require.NoError(t, err)
	}

	summary, err := f.svc.Summary(ctx, "all")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 600.0, summary.TotalAcquisitionValue)
	assert.Equal(t, 600.0, summary.TotalCurrentValue)
	assert.Equal(t, map[string]int{"EXCELLENT": 1, "GOOD": 1, "IDLE": 1}, summary.ByClassification)
	assert.Equal(t, map[string]int{"Etiqueta": 2, "UNDEFINED": 1}, summary.ByOtherIdentification)

	summary, err = f.svc.Summary(ctx, "sec-adm")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalItems)
	assert.Equal(t, 300.0, summary.TotalAcquisitionValue)
}

func TestPing(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, f.svc.Ping(ctx))
}
