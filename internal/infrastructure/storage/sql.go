package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"trade_engine/internal/domain"
	"trade_engine/pkg/errcodes"
)

//go:embed schema/kv_entries.sql
var Schema string

// SQLBackend keeps documents in the kv_entries table. The same statements
// run on Postgres (pgx) and SQLite (modernc).
type SQLBackend struct {
	db *sqlx.DB
}

func NewSQLBackend(db *sqlx.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

// Migrate creates kv_entries when missing.
func (b *SQLBackend) Migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, Schema); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to migrate kv_entries")
	}
	return nil
}

// withTx выполняет функцию в транзакции.
func (b *SQLBackend) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return domain.WrapError(
				fmt.Errorf("%w; rollback: %v", err, rbErr),
				errcodes.InternalServerError,
				"transaction failed",
			)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to commit")
	}

	return nil
}

func (b *SQLBackend) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := b.db.GetContext(ctx, &value, b.db.Rebind(`SELECT value FROM kv_entries WHERE key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.WrapError(err, errcodes.InternalServerError, "failed to load entry")
	}

	return []byte(value), true, nil
}

// Save upserts the whole batch atomically.
func (b *SQLBackend) Save(ctx context.Context, entries map[string][]byte) error {
	query := b.db.Rebind(`
		INSERT INTO kv_entries (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at`)

	now := time.Now().UTC()

	return b.withTx(ctx, func(tx *sqlx.Tx) error {
		for key, raw := range entries {
			if _, err := tx.ExecContext(ctx, query, key, string(raw), now); err != nil {
				return domain.WrapError(err, errcodes.InternalServerError,
					fmt.Sprintf("failed to upsert %s", key))
			}
		}
		return nil
	})
}

func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, b.db.Rebind(`DELETE FROM kv_entries WHERE key = ?`), key); err != nil {
		return domain.WrapError(err, errcodes.InternalServerError, "failed to delete entry")
	}
	return nil
}
