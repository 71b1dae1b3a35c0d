package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/patrion/internal/core/domain"
)

const (
	// DefaultTimeout bounds every statement issued by the MySQL adapter.
	DefaultTimeout = 5 * time.Second

	mysqlErrDuplicateEntry = 1062
	mysqlErrNoReferenced   = 1452
	mysqlErrOutOfRange     = 1264
	mysqlErrCheckViolated  = 3819
)

type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenMySQL connects using dsn, forcing time parsing in UTC, and pings the server.
func OpenMySQL(ctx context.Context, dsn string, opts PoolOptions) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

// translateMySQLError maps constraint violations onto the domain errors.
func translateMySQLError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case mysqlErrDuplicateEntry:
			return fmt.Errorf("%w: %s", domain.ErrDuplicateKey, mysqlErr.Message)
		case mysqlErrNoReferenced:
			return fmt.Errorf("%w: %s", domain.ErrUnknownReference, mysqlErr.Message)
		case mysqlErrOutOfRange, mysqlErrCheckViolated:
			return fmt.Errorf("%w: %s", domain.ErrOutOfRange, mysqlErr.Message)
		}
	}
	return err
}
