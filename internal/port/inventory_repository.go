package port

import (
	"context"

	"github.com/rl1809/patrion/internal/core/domain"
)

type InventoryRepository interface {
	// InsertItem persists a new item together with its seeded sector history.
	// Returns domain.ErrDuplicateKey when the asset number is taken.
	InsertItem(ctx context.Context, item domain.InventoryItem) error

	// GetItem returns the item with its sector resolved, or domain.ErrRecordNotFound.
	GetItem(ctx context.Context, id string) (*domain.InventoryItem, error)

	// GetItemByAssetNumber returns the item with its sector resolved, or domain.ErrRecordNotFound.
	GetItemByAssetNumber(ctx context.Context, assetNumber string) (*domain.InventoryItem, error)

	// ListItems returns items matching the filter ordered by asset number.
	ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error)

	// UpdateItem overwrites the stored fields of item. When the stored sector
	// differs from item.Sector.ID, a history entry stamped with item.UpdatedAt is
	// appended in the same write. Reports whether an entry was appended.
	UpdateItem(ctx context.Context, item domain.InventoryItem) (bool, error)

	// DeleteItem removes the item and its history, or returns domain.ErrRecordNotFound.
	DeleteItem(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}
