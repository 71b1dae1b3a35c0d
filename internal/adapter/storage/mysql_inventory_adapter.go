package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rl1809/patrion/internal/core/domain"
)

const itemColumns = `
	i.id, i.asset_number, i.previous_asset_number, i.description, i.classification,
	s.id, s.name, i.other_identification, i.notes, i.photo_url, i.photo_key,
	i.acquisition_value, i.acquisition_date, i.depreciation_rate, i.created_at, i.updated_at`

const itemFrom = `
	FROM inventory_items i
	JOIN sectors s ON s.id = i.sector_id`

type MySQLInventoryAdapter struct {
	db *sql.DB
}

func NewMySQLInventoryAdapter(db *sql.DB) *MySQLInventoryAdapter {
	return &MySQLInventoryAdapter{db: db}
}

func (m *MySQLInventoryAdapter) InsertItem(ctx context.Context, item domain.InventoryItem) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_items (
			id, asset_number, previous_asset_number, description, classification,
			sector_id, other_identification, notes, photo_url, photo_key,
			acquisition_value, acquisition_date, depreciation_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.AssetNumber, item.PreviousAssetNumber, item.Description, string(item.Classification),
		item.Sector.ID, item.OtherIdentification, item.Notes, item.PhotoURL, item.PhotoKey,
		item.AcquisitionValue, nullTime(item.AcquisitionDate), item.DepreciationRate, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", translateMySQLError(err))
	}

	for _, h := range item.SectorHistory {
		if err := appendHistory(ctx, tx, item.ID, h.Sector.ID, h.ChangedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (m *MySQLInventoryAdapter) GetItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return m.getOne(ctx, `i.id = ?`, id)
}

func (m *MySQLInventoryAdapter) GetItemByAssetNumber(ctx context.Context, assetNumber string) (*domain.InventoryItem, error) {
	return m.getOne(ctx, `i.asset_number = ?`, assetNumber)
}

func (m *MySQLInventoryAdapter) getOne(ctx context.Context, where string, arg string) (*domain.InventoryItem, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	row := m.db.QueryRowContext(ctx, `SELECT `+itemColumns+itemFrom+` WHERE `+where, arg)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}

	history, err := m.history(ctx, `h.item_id = ?`, item.ID)
	if err != nil {
		return nil, err
	}
	item.SectorHistory = history[item.ID]
	if item.SectorHistory == nil {
		item.SectorHistory = []domain.SectorChange{}
	}
	return &item, nil
}

func (m *MySQLInventoryAdapter) ListItems(ctx context.Context, filter domain.ItemFilter) ([]domain.InventoryItem, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	query := `SELECT ` + itemColumns + itemFrom
	historyWhere := `1 = 1`
	var args []any
	if filter.SectorID != "" {
		query += ` WHERE i.sector_id = ?`
		historyWhere = `i.sector_id = ?`
		args = append(args, filter.SectorID)
	}
	query += ` ORDER BY i.asset_number`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []domain.InventoryItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}

	history, err := m.history(ctx, historyWhere, args...)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].SectorHistory = history[items[i].ID]
		if items[i].SectorHistory == nil {
			items[i].SectorHistory = []domain.SectorChange{}
		}
	}
	return items, nil
}

// UpdateItem locks the row, rewrites it, and appends a history entry when the
// sector changed, all in one transaction.
func (m *MySQLInventoryAdapter) UpdateItem(ctx context.Context, item domain.InventoryItem) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var currentSector string
	err = tx.QueryRowContext(ctx,
		`SELECT sector_id FROM inventory_items WHERE id = ? FOR UPDATE`, item.ID,
	).Scan(&currentSector)
	if errors.Is(err, sql.ErrNoRows) {
		return false, domain.ErrRecordNotFound
	}
	if err != nil {
		return false, fmt.Errorf("lock item: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE inventory_items
		SET asset_number = ?, previous_asset_number = ?, description = ?, classification = ?,
			sector_id = ?, other_identification = ?, notes = ?, photo_url = ?, photo_key = ?,
			acquisition_value = ?, acquisition_date = ?, depreciation_rate = ?, updated_at = ?
		WHERE id = ?`,
		item.AssetNumber, item.PreviousAssetNumber, item.Description, string(item.Classification),
		item.Sector.ID, item.OtherIdentification, item.Notes, item.PhotoURL, item.PhotoKey,
		item.AcquisitionValue, nullTime(item.AcquisitionDate), item.DepreciationRate, item.UpdatedAt,
		item.ID,
	)
	if err != nil {
		return false, fmt.Errorf("update item: %w", translateMySQLError(err))
	}

	moved := currentSector != item.Sector.ID
	if moved {
		if err := appendHistory(ctx, tx, item.ID, item.Sector.ID, item.UpdatedAt); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return moved, nil
}

func (m *MySQLInventoryAdapter) DeleteItem(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	result, err := m.db.ExecContext(ctx, `DELETE FROM inventory_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (m *MySQLInventoryAdapter) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	return m.db.PingContext(ctx)
}

// history loads sector history rows matching where, grouped by item ID in
// append order.
func (m *MySQLInventoryAdapter) history(ctx context.Context, where string, args ...any) (map[string][]domain.SectorChange, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT h.item_id, s.id, s.name, h.changed_at
		FROM sector_history h
		JOIN sectors s ON s.id = h.sector_id
		JOIN inventory_items i ON i.id = h.item_id
		WHERE `+where+`
		ORDER BY h.item_id, h.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query sector history: %w", err)
	}
	defer rows.Close()

	history := make(map[string][]domain.SectorChange)
	for rows.Next() {
		var itemID string
		var change domain.SectorChange
		if err := rows.Scan(&itemID, &change.Sector.ID, &change.Sector.Name, &change.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan sector history: %w", err)
		}
		history[itemID] = append(history[itemID], change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sector history: %w", err)
	}
	return history, nil
}

func appendHistory(ctx context.Context, tx *sql.Tx, itemID, sectorID string, changedAt time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO sector_history (item_id, sector_id, changed_at) VALUES (?, ?, ?)`,
		itemID, sectorID, changedAt,
	)
	if err != nil {
		return fmt.Errorf("append sector history: %w", translateMySQLError(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.InventoryItem, error) {
	var (
		item           domain.InventoryItem
		classification string
		acquired       sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.AssetNumber, &item.PreviousAssetNumber, &item.Description, &classification,
		&item.Sector.ID, &item.Sector.Name, &item.OtherIdentification, &item.Notes, &item.PhotoURL, &item.PhotoKey,
		&item.AcquisitionValue, &acquired, &item.DepreciationRate, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	item.Classification = domain.Classification(strings.TrimSpace(classification))
	if acquired.Valid {
		item.AcquisitionDate = acquired.Time
	}
	return item, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
