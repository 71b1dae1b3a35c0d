package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rl1809/patrion/internal/core/domain"
)

type MySQLSectorAdapter struct {
	db *sql.DB
}

func NewMySQLSectorAdapter(db *sql.DB) *MySQLSectorAdapter {
	return &MySQLSectorAdapter{db: db}
}

func (m *MySQLSectorAdapter) ListSectors(ctx context.Context) ([]domain.Sector, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	rows, err := m.db.QueryContext(ctx, `SELECT id, name, created_at FROM sectors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query sectors: %w", err)
	}
	defer rows.Close()

	var sectors []domain.Sector
	for rows.Next() {
		var s domain.Sector
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sector: %w", err)
		}
		sectors = append(sectors, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sectors: %w", err)
	}
	if sectors == nil {
		sectors = []domain.Sector{}
	}
	return sectors, nil
}

func (m *MySQLSectorAdapter) GetSector(ctx context.Context, id string) (*domain.Sector, error) {
	return m.getOne(ctx, `SELECT id, name, created_at FROM sectors WHERE id = ?`, id)
}

func (m *MySQLSectorAdapter) GetSectorByName(ctx context.Context, name string) (*domain.Sector, error) {
	return m.getOne(ctx, `SELECT id, name, created_at FROM sectors WHERE name = ?`, name)
}

func (m *MySQLSectorAdapter) getOne(ctx context.Context, query string, arg string) (*domain.Sector, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var s domain.Sector
	err := m.db.QueryRowContext(ctx, query, arg).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query sector: %w", err)
	}
	return &s, nil
}

func (m *MySQLSectorAdapter) CreateSector(ctx context.Context, sector domain.Sector) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	_, err := m.db.ExecContext(ctx,
		`INSERT INTO sectors (id, name, created_at) VALUES (?, ?, ?)`,
		sector.ID, sector.Name, sector.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sector: %w", translateMySQLError(err))
	}
	return nil
}
