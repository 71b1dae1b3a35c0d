package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/patrion/internal/adapter/media"
	"github.com/rl1809/patrion/internal/adapter/storage"
	"github.com/rl1809/patrion/internal/config"
	"github.com/rl1809/patrion/internal/core/service"
	"github.com/rl1809/patrion/internal/port"
)

// patrionApp holds the adapters selected by configuration. The caller must
// defer Close.
type patrionApp struct {
	cfg    *config.Config
	logger *zap.Logger

	db  *sql.DB
	rdb *redis.Client

	items   port.InventoryRepository
	sectors port.SectorRepository
	cache   port.CacheRepository
	media   port.MediaStorage

	// uploadsDir is set when photos live on the local filesystem.
	uploadsDir string
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, withMedia bool) (*patrionApp, error) {
	a := &patrionApp{cfg: cfg, logger: logger}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if withMedia {
		if err := a.openMedia(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *patrionApp) openStore(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case "memory":
		mem := storage.NewMemoryAdapter()
		a.items = mem
		a.sectors = mem
		a.logger.Warn("using in-memory storage, data is lost on exit")
		return nil
	case "mysql":
		db, err := storage.OpenMySQL(ctx, a.cfg.MySQL.DSN, storage.PoolOptions{
			MaxOpenConns:    a.cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    a.cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: a.cfg.GetConnMaxLifetime(),
		})
		if err != nil {
			return fmt.Errorf("failed to connect mysql: %w", err)
		}
		a.db = db
		a.items = storage.NewMySQLInventoryAdapter(db)
		a.sectors = storage.NewMySQLSectorAdapter(db)
		a.logger.Info("connected to mysql")
		return nil
	default:
		return fmt.Errorf("unknown storage driver %q", a.cfg.Storage.Driver)
	}
}

func (a *patrionApp) openCache(ctx context.Context) error {
	if a.cfg.Redis.Addr == "" {
		a.cache = storage.NewMemoryCache(a.cfg.GetIdempotencyTTL(), a.cfg.GetSectorCacheTTL())
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to connect redis: %w", err)
	}
	a.rdb = rdb
	a.cache = storage.NewRedisAdapter(rdb, a.cfg.GetIdempotencyTTL(), a.cfg.GetSectorCacheTTL())
	a.logger.Info("connected to redis", zap.String("addr", a.cfg.Redis.Addr))
	return nil
}

func (a *patrionApp) openMedia(ctx context.Context) error {
	mc := a.cfg.Media
	switch mc.Driver {
	case "none":
		return nil
	case "filesystem":
		fs, err := media.NewFileSystemStorage(mc.Dir, mc.PublicBaseURL)
		if err != nil {
			return err
		}
		a.media = fs
		a.uploadsDir = fs.Root()
		return nil
	case "s3":
		s3, err := media.NewS3Storage(ctx, media.S3Options{
			Endpoint:       mc.S3.Endpoint,
			Region:         mc.S3.Region,
			Bucket:         mc.S3.Bucket,
			AccessKey:      mc.S3.AccessKey,
			SecretKey:      mc.S3.SecretKey,
			ForcePathStyle: mc.S3.ForcePathStyle,
			PublicBaseURL:  mc.PublicBaseURL,
			Prefix:         mc.S3.Prefix,
		})
		if err != nil {
			return fmt.Errorf("failed to configure s3: %w", err)
		}
		a.media = s3
		return nil
	default:
		return fmt.Errorf("unknown media driver %q", mc.Driver)
	}
}

func (a *patrionApp) requireDB() (*sql.DB, error) {
	if a.db == nil {
		return nil, errors.New("this command requires the mysql storage driver")
	}
	return a.db, nil
}

func (a *patrionApp) inventoryService() *service.InventoryService {
	opts := []service.Option{
		service.WithDefaultRate(a.cfg.Depreciation.DefaultRatePercent),
		service.WithMaxPhotoBytes(a.cfg.Media.MaxUploadBytes),
	}
	if a.media != nil {
		opts = append(opts, service.WithMedia(a.media))
	}
	return service.NewInventoryService(a.items, a.sectors, a.cache, a.logger, opts...)
}

func (a *patrionApp) sectorService() *service.SectorService {
	return service.NewSectorService(a.sectors, a.cache, a.logger)
}

func (a *patrionApp) Close() {
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close mysql", zap.Error(err))
		}
	}
}
