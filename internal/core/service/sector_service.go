package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rl1809/patrion/internal/core/domain"
	"github.com/rl1809/patrion/internal/port"
)

type SectorService struct {
	repo   port.SectorRepository
	cache  port.CacheRepository
	logger *zap.Logger
	clock  Clock
	ids    IDGenerator
}

func NewSectorService(repo port.SectorRepository, cache port.CacheRepository, logger *zap.Logger) *SectorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectorService{
		repo:   repo,
		cache:  cache,
		logger: logger,
		clock:  RealClock{},
		ids:    UUIDGenerator{},
	}
}

// List returns all sectors sorted by name. The cache is consulted first; a
// failing cache is logged and bypassed.
func (s *SectorService) List(ctx context.Context) ([]domain.Sector, error) {
	if s.cache != nil {
		sectors, ok, err := s.cache.GetSectors(ctx)
		if err != nil {
			s.logger.Warn("sector cache read failed", zap.Error(err))
		} else if ok {
			return sectors, nil
		}
	}

	sectors, err := s.repo.ListSectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sectors: %w: %w", ErrUpstream, err)
	}

	if s.cache != nil {
		if err := s.cache.SetSectors(ctx, sectors); err != nil {
			s.logger.Warn("sector cache write failed", zap.Error(err))
		}
	}
	return sectors, nil
}

func (s *SectorService) Get(ctx context.Context, id string) (*domain.Sector, error) {
	sector, err := s.repo.GetSector(ctx, id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, fmt.Errorf("sector %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get sector: %w: %w", ErrUpstream, err)
	}
	return sector, nil
}

// Create provisions a new sector.
func (s *SectorService) Create(ctx context.Context, name string) (*domain.Sector, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalidf("sector name is required")
	}

	sector := domain.Sector{
		ID:        s.ids.New(),
		Name:      name,
		CreatedAt: now(s.clock),
	}
	err := s.repo.CreateSector(ctx, sector)
	if errors.Is(err, domain.ErrDuplicateKey) {
		return nil, fmt.Errorf("sector %q already exists: %w", name, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("create sector: %w: %w", ErrUpstream, err)
	}

	s.invalidate(ctx)
	s.logger.Info("sector created", zap.String("sector_id", sector.ID), zap.String("name", sector.Name))
	return &sector, nil
}

// Ensure returns the sector with the given name, creating it when missing.
func (s *SectorService) Ensure(ctx context.Context, name string) (*domain.Sector, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, invalidf("sector name is required")
	}

	sector, err := s.repo.GetSectorByName(ctx, name)
	if err == nil {
		return sector, false, nil
	}
	if !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("find sector: %w: %w", ErrUpstream, err)
	}

	sector, err = s.Create(ctx, name)
	if errors.Is(err, ErrConflict) {
		// created concurrently
		sector, err = s.repo.GetSectorByName(ctx, name)
		if err != nil {
			return nil, false, fmt.Errorf("find sector: %w: %w", ErrUpstream, err)
		}
		return sector, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return sector, true, nil
}

func (s *SectorService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateSectors(ctx); err != nil {
		s.logger.Warn("sector cache invalidation failed", zap.Error(err))
	}
}
