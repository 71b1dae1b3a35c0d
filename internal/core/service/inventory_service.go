package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/patrion/internal/core/depreciation"
	"github.com/rl1809/patrion/internal/core/domain"
	"github.com/rl1809/patrion/internal/port"
)

const (
	idempotencyKeyPrefix   = "inventory:create:"
	defaultMaxPhotoBytes   = 10 << 20
	undefinedSummaryBucket = "UNDEFINED"
)

// ItemInput carries the fields of a new item. Nil pointers take defaults.
type ItemInput struct {
	AssetNumber         string
	PreviousAssetNumber string
	Description         string
	Classification      string
	SectorID            string
	OtherIdentification string
	Notes               string
	PhotoURL            string
	AcquisitionValue    *float64
	AcquisitionDate     *time.Time
	DepreciationRate    *float64
}

// ItemPatch carries the fields to change on an existing item. Nil means unchanged.
type ItemPatch struct {
	AssetNumber         *string
	PreviousAssetNumber *string
	Description         *string
	Classification      *string
	SectorID            *string
	OtherIdentification *string
	Notes               *string
	AcquisitionValue    *float64
	AcquisitionDate     *time.Time
	DepreciationRate    *float64
}

// Photo is an uploaded image waiting to be stored.
type Photo struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type InventoryService struct {
	items         port.InventoryRepository
	sectors       port.SectorRepository
	cache         port.CacheRepository
	media         port.MediaStorage
	logger        *zap.Logger
	clock         Clock
	ids           IDGenerator
	defaultRate   float64
	maxPhotoBytes int64
}

type Option func(*InventoryService)

func WithMedia(media port.MediaStorage) Option {
	return func(s *InventoryService) { s.media = media }
}

func WithClock(clock Clock) Option {
	return func(s *InventoryService) { s.clock = clock }
}

func WithIDGenerator(ids IDGenerator) Option {
	return func(s *InventoryService) { s.ids = ids }
}

func WithDefaultRate(rate float64) Option {
	return func(s *InventoryService) { s.defaultRate = rate }
}

func WithMaxPhotoBytes(n int64) Option {
	return func(s *InventoryService) { s.maxPhotoBytes = n }
}

func NewInventoryService(items port.InventoryRepository, sectors port.SectorRepository, cache port.CacheRepository, logger *zap.Logger, opts ...Option) *InventoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &InventoryService{
		items:         items,
		sectors:       sectors,
		cache:         cache,
		logger:        logger,
		clock:         RealClock{},
		ids:           UUIDGenerator{},
		defaultRate:   domain.DefaultDepreciationRate,
		maxPhotoBytes: defaultMaxPhotoBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns items, optionally restricted to one sector ("all" or "" means every
// sector), each valued as of now.
func (s *InventoryService) List(ctx context.Context, sectorID string) ([]domain.ValuedItem, error) {
	items, err := s.items.ListItems(ctx, filterFor(sectorID))
	if err != nil {
		return nil, fmt.Errorf("list items: %w: %w", ErrUpstream, err)
	}

	asOf := s.clock.Now()
	valued := make([]domain.ValuedItem, 0, len(items))
	for _, item := range items {
		valued = append(valued, value(item, asOf))
	}
	return valued, nil
}

func (s *InventoryService) Get(ctx context.Context, id string) (*domain.ValuedItem, error) {
	item, err := s.items.GetItem(ctx, id)
	if err != nil {
		return nil, storageError(fmt.Sprintf("item %q", id), err)
	}
	v := value(*item, s.clock.Now())
	return &v, nil
}

// GetByAssetNumber backs the smart-search flow. ErrNotFound tells the caller the
// asset is not registered yet.
func (s *InventoryService) GetByAssetNumber(ctx context.Context, assetNumber string) (*domain.ValuedItem, error) {
	assetNumber = strings.TrimSpace(assetNumber)
	if assetNumber == "" {
		return nil, invalidf("asset number is required")
	}

	item, err := s.items.GetItemByAssetNumber(ctx, assetNumber)
	if err != nil {
		return nil, storageError(fmt.Sprintf("asset number %q", assetNumber), err)
	}
	v := value(*item, s.clock.Now())
	return &v, nil
}

// Create validates and stores a new item. The photo is uploaded only after the
// input has been validated, and is deleted again if the insert fails.
func (s *InventoryService) Create(ctx context.Context, in ItemInput, photo *Photo, idempotencyKey string) (_ *domain.ValuedItem, err error) {
	item, err := s.newItem(in)
	if err != nil {
		return nil, err
	}
	if err := s.checkPhoto(photo); err != nil {
		return nil, err
	}

	sector, err := s.resolveSector(ctx, in.SectorID)
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		key := idempotencyKeyPrefix + idempotencyKey
		claimed, cerr := s.cache.SetIdempotency(ctx, key)
		if cerr != nil {
			return nil, fmt.Errorf("idempotency check: %w: %w", ErrUpstream, cerr)
		}
		if !claimed {
			return nil, ErrDuplicateRequest
		}

		// a failed create frees the key so the client can retry
		defer func() {
			if err == nil {
				return
			}
			if rerr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); rerr != nil {
				s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(rerr))
			}
		}()
	}

	if err := s.ensureAssetNumberFree(ctx, item.AssetNumber); err != nil {
		return nil, err
	}

	stored, err := s.storePhoto(ctx, photo)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		item.PhotoURL = stored.URL
		item.PhotoKey = stored.Key
	}

	ts := now(s.clock)
	item.ID = s.ids.New()
	item.Sector = *sector
	item.SectorHistory = []domain.SectorChange{{Sector: *sector, ChangedAt: ts}}
	item.CreatedAt = ts
	item.UpdatedAt = ts
	if in.AcquisitionDate == nil {
		item.AcquisitionDate = ts
	}

	if err := s.items.InsertItem(ctx, item); err != nil {
		s.discardPhoto(ctx, stored)
		return nil, storageError(fmt.Sprintf("asset number %q", item.AssetNumber), err)
	}

	s.logger.Info("inventory item created",
		zap.String("item_id", item.ID),
		zap.String("asset_number", item.AssetNumber),
		zap.String("sector_id", sector.ID))

	v := value(item, s.clock.Now())
	return &v, nil
}

// Update merges patch into the stored item. A sector change is recorded in the
// item's history by the store in the same write as the field change.
func (s *InventoryService) Update(ctx context.Context, id string, patch ItemPatch, photo *Photo) (*domain.ValuedItem, error) {
	existing, err := s.items.GetItem(ctx, id)
	if err != nil {
		return nil, storageError(fmt.Sprintf("item %q", id), err)
	}
	if err := s.checkPhoto(photo); err != nil {
		return nil, err
	}

	updated := *existing
	if err := s.applyPatch(&updated, patch); err != nil {
		return nil, err
	}

	if updated.Sector.ID != existing.Sector.ID {
		sector, err := s.resolveSector(ctx, updated.Sector.ID)
		if err != nil {
			return nil, err
		}
		updated.Sector = *sector
	}

	if updated.AssetNumber != existing.AssetNumber {
		if err := s.ensureAssetNumberFree(ctx, updated.AssetNumber); err != nil {
			return nil, err
		}
	}

	stored, err := s.storePhoto(ctx, photo)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		updated.PhotoURL = stored.URL
		updated.PhotoKey = stored.Key
	}

	updated.UpdatedAt = now(s.clock)
	moved, err := s.items.UpdateItem(ctx, updated)
	if err != nil {
		s.discardPhoto(ctx, stored)
		return nil, storageError(fmt.Sprintf("item %q", id), err)
	}

	if stored != nil && existing.PhotoKey != "" {
		s.discardPhoto(ctx, &port.StoredMedia{Key: existing.PhotoKey, URL: existing.PhotoURL})
	}

	fresh, err := s.items.GetItem(ctx, id)
	if err != nil {
		return nil, storageError(fmt.Sprintf("item %q", id), err)
	}

	fields := []zap.Field{
		zap.String("item_id", id),
		zap.String("asset_number", fresh.AssetNumber),
	}
	if moved {
		fields = append(fields,
			zap.String("from_sector", existing.Sector.ID),
			zap.String("to_sector", fresh.Sector.ID))
	}
	s.logger.Info("inventory item updated", fields...)

	v := value(*fresh, s.clock.Now())
	return &v, nil
}

// Delete removes an item permanently. Its photo is removed afterwards on a best
// effort basis.
func (s *InventoryService) Delete(ctx context.Context, id string) error {
	existing, err := s.items.GetItem(ctx, id)
	if err != nil {
		return storageError(fmt.Sprintf("item %q", id), err)
	}

	if err := s.items.DeleteItem(ctx, id); err != nil {
		return storageError(fmt.Sprintf("item %q", id), err)
	}

	if existing.PhotoKey != "" {
		s.discardPhoto(ctx, &port.StoredMedia{Key: existing.PhotoKey, URL: existing.PhotoURL})
	}

	s.logger.Info("inventory item deleted",
		zap.String("item_id", id),
		zap.String("asset_number", existing.AssetNumber))
	return nil
}

// Summary aggregates the listing the dashboard charts are drawn from.
func (s *InventoryService) Summary(ctx context.Context, sectorID string) (*domain.Summary, error) {
	items, err := s.List(ctx, sectorID)
	if err != nil {
		return nil, err
	}

	summary := &domain.Summary{
		ByClassification:      make(map[string]int),
		ByOtherIdentification: make(map[string]int),
	}
	for _, item := range items {
		summary.TotalItems++
		summary.TotalAcquisitionValue += item.AcquisitionValue
		summary.TotalCurrentValue += item.CurrentValue
		summary.ByClassification[bucket(string(item.Classification))]++
		summary.ByOtherIdentification[bucket(item.OtherIdentification)]++
	}
	return summary, nil
}

func (s *InventoryService) Ping(ctx context.Context) error {
	return s.items.Ping(ctx)
}

func (s *InventoryService) newItem(in ItemInput) (domain.InventoryItem, error) {
	item := domain.InventoryItem{
		AssetNumber:         strings.TrimSpace(in.AssetNumber),
		PreviousAssetNumber: strings.TrimSpace(in.PreviousAssetNumber),
		Description:         strings.TrimSpace(in.Description),
		Classification:      domain.NormalizeClassification(in.Classification),
		Sector:              domain.Sector{ID: strings.TrimSpace(in.SectorID)},
		OtherIdentification: strings.TrimSpace(in.OtherIdentification),
		Notes:               strings.TrimSpace(in.Notes),
		PhotoURL:            strings.TrimSpace(in.PhotoURL),
		DepreciationRate:    s.defaultRate,
	}
	if in.AcquisitionValue != nil {
		item.AcquisitionValue = *in.AcquisitionValue
	}
	if in.AcquisitionDate != nil {
		item.AcquisitionDate = in.AcquisitionDate.UTC().Truncate(time.Microsecond)
	}
	if in.DepreciationRate != nil {
		item.DepreciationRate = *in.DepreciationRate
	}

	if err := validate(item); err != nil {
		return domain.InventoryItem{}, err
	}
	return item, nil
}

func (s *InventoryService) applyPatch(item *domain.InventoryItem, p ItemPatch) error {
	if p.AssetNumber != nil {
		item.AssetNumber = strings.TrimSpace(*p.AssetNumber)
	}
	if p.PreviousAssetNumber != nil {
		item.PreviousAssetNumber = strings.TrimSpace(*p.PreviousAssetNumber)
	}
	if p.Description != nil {
		item.Description = strings.TrimSpace(*p.Description)
	}
	if p.Classification != nil {
		item.Classification = domain.NormalizeClassification(*p.Classification)
	}
	if p.SectorID != nil {
		if id := strings.TrimSpace(*p.SectorID); id != item.Sector.ID {
			item.Sector = domain.Sector{ID: id}
		}
	}
	if p.OtherIdentification != nil {
		item.OtherIdentification = strings.TrimSpace(*p.OtherIdentification)
	}
	if p.Notes != nil {
		item.Notes = strings.TrimSpace(*p.Notes)
	}
	if p.AcquisitionValue != nil {
		item.AcquisitionValue = *p.AcquisitionValue
	}
	if p.AcquisitionDate != nil {
		item.AcquisitionDate = p.AcquisitionDate.UTC().Truncate(time.Microsecond)
	}
	if p.DepreciationRate != nil {
		item.DepreciationRate = *p.DepreciationRate
	}
	return validate(*item)
}

func validate(item domain.InventoryItem) error {
	switch {
	case item.AssetNumber == "":
		return invalidf("asset number is required")
	case item.Description == "":
		return invalidf("description is required")
	case item.Sector.ID == "":
		return invalidf("sector is required")
	case math.IsNaN(item.AcquisitionValue) || math.IsInf(item.AcquisitionValue, 0):
		return invalidf("acquisition value must be a finite number")
	case item.AcquisitionValue < 0:
		return invalidf("acquisition value must not be negative")
	case math.IsNaN(item.DepreciationRate) || math.IsInf(item.DepreciationRate, 0):
		return invalidf("depreciation rate must be a finite number")
	case item.DepreciationRate < 0:
		return invalidf("depreciation rate must not be negative")
	}
	return nil
}

func (s *InventoryService) resolveSector(ctx context.Context, id string) (*domain.Sector, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalidf("sector is required")
	}
	sector, err := s.sectors.GetSector(ctx, id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, invalidf("unknown sector %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sector: %w: %w", ErrUpstream, err)
	}
	return sector, nil
}

func (s *InventoryService) ensureAssetNumberFree(ctx context.Context, assetNumber string) error {
	_, err := s.items.GetItemByAssetNumber(ctx, assetNumber)
	switch {
	case err == nil:
		return fmt.Errorf("asset number %q already registered: %w", assetNumber, ErrConflict)
	case errors.Is(err, domain.ErrRecordNotFound):
		return nil
	default:
		return fmt.Errorf("check asset number: %w: %w", ErrUpstream, err)
	}
}

func (s *InventoryService) checkPhoto(photo *Photo) error {
	if photo == nil {
		return nil
	}
	if s.media == nil {
		return invalidf("photo uploads are disabled")
	}
	if !strings.HasPrefix(photo.ContentType, "image/") {
		return invalidf("photo must be an image, got %q", photo.ContentType)
	}
	if photo.Size > s.maxPhotoBytes {
		return invalidf("photo exceeds %d bytes", s.maxPhotoBytes)
	}
	return nil
}

func (s *InventoryService) storePhoto(ctx context.Context, photo *Photo) (*port.StoredMedia, error) {
	if photo == nil {
		return nil, nil
	}
	stored, err := s.media.Put(ctx, photo.Filename, photo.ContentType, photo.Body, photo.Size)
	if err != nil {
		return nil, fmt.Errorf("store photo: %w: %w", ErrMediaUnavailable, err)
	}
	return &stored, nil
}

func (s *InventoryService) discardPhoto(ctx context.Context, stored *port.StoredMedia) {
	if stored == nil || s.media == nil {
		return
	}
	if err := s.media.Delete(context.WithoutCancel(ctx), stored.Key); err != nil {
		s.logger.Warn("failed to delete photo", zap.String("key", stored.Key), zap.Error(err))
	}
}

func storageError(subject string, err error) error {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", subject, ErrNotFound)
	case errors.Is(err, domain.ErrDuplicateKey):
		return fmt.Errorf("%s already registered: %w", subject, ErrConflict)
	case errors.Is(err, domain.ErrUnknownReference):
		return fmt.Errorf("%s references an unknown sector: %w", subject, ErrInvalidInput)
	case errors.Is(err, domain.ErrOutOfRange):
		return fmt.Errorf("%s has a value the store cannot hold: %w", subject, ErrInvalidInput)
	default:
		return fmt.Errorf("%s: %w: %w", subject, ErrUpstream, err)
	}
}

func filterFor(sectorID string) domain.ItemFilter {
	sectorID = strings.TrimSpace(sectorID)
	if strings.EqualFold(sectorID, "all") {
		sectorID = ""
	}
	return domain.ItemFilter{SectorID: sectorID}
}

func value(item domain.InventoryItem, asOf time.Time) domain.ValuedItem {
	return domain.ValuedItem{
		InventoryItem: item,
		CurrentValue:  depreciation.CurrentValue(item.AcquisitionValue, item.AcquisitionDate, item.DepreciationRate, asOf),
	}
}

func bucket(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return undefinedSummaryBucket
	}
	return key
}
