package port

import (
	"context"

	"github.com/rl1809/patrion/internal/core/domain"
)

type SectorRepository interface {
	// ListSectors returns every sector ordered by name.
	ListSectors(ctx context.Context) ([]domain.Sector, error)

	// GetSector returns the sector or domain.ErrRecordNotFound.
	GetSector(ctx context.Context, id string) (*domain.Sector, error)

	// GetSectorByName returns the sector or domain.ErrRecordNotFound.
	GetSectorByName(ctx context.Context, name string) (*domain.Sector, error)

	// CreateSector returns domain.ErrDuplicateKey when the name is taken.
	CreateSector(ctx context.Context, sector domain.Sector) error
}
