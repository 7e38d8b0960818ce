package application

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure-go sqlite driver

	"trade_engine/internal/config"
	"trade_engine/internal/infrastructure/storage"
	"trade_engine/pkg/application/connectors"
	"trade_engine/pkg/logx"
)

// openBackend подключает хранилище, выбранное STORAGE_BACKEND. Возвращаемая
// функция закрывает соединение и вызывается после сброса Store.
func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pg := &connectors.Postgres{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		}

		backend := storage.NewSQLBackend(pg.Client(ctx))
		if err := backend.Migrate(ctx); err != nil {
			pg.Close(ctx)
			return nil, nil, fmt.Errorf("backend.Migrate: %w", err)
		}

		return backend, func() { pg.Close(context.WithoutCancel(ctx)) }, nil

	case config.BackendSQLite:
		db, err := sqlx.Open("sqlite", cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlx.Open: %w", err)
		}
		// sqlite держит одну блокировку на запись
		db.SetMaxOpenConns(1)

		closeDB := func() {
			if err := db.Close(); err != nil {
				logger(ctx).Error("sqlite.Close", logx.Error(err))
			}
		}

		backend := storage.NewSQLBackend(db)
		if err := backend.Migrate(ctx); err != nil {
			closeDB()
			return nil, nil, fmt.Errorf("backend.Migrate: %w", err)
		}

		logger(ctx).Info("sqlite opened", "path", cfg.SQLite.Path)

		return backend, closeDB, nil

	case config.BackendRedis:
		rd := &connectors.Redis{
			Username:           cfg.Redis.Username,
			Password:           cfg.Redis.Password,
			Address:            cfg.Redis.Address,
			DatabaseNumber:     cfg.Redis.DatabaseNumber,
			PoolSize:           cfg.Redis.PoolSize,
			MinIdleConnections: cfg.Redis.MinIdleConnections,
			MaxIdleConnections: cfg.Redis.MaxIdleConnections,
		}

		backend := storage.NewRedisBackend(rd.Client(ctx), cfg.Redis.KeyPrefix)

		return backend, func() { rd.Close(context.WithoutCancel(ctx)) }, nil

	default:
		logger(ctx).Warn("In-memory storage: state is lost on restart")
		return storage.NewMemory(), func() {}, nil
	}
}
