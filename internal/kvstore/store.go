// Package kvstore implements a generic key/value table: a single
// `get(key) -> optional[string]` / `set(key, value)` pair over a
// Postgres-backed table, used today for the environment-scoped
// "<env>#recentruns" bounded list.
package kvstore

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/uptrace/bun"

	"github.com/arenaeval/server/pkg/apperror"
	"github.com/arenaeval/server/pkg/logger"
)

// Row is the bun model backing arena.kv_store.
type Row struct {
	bun.BaseModel `bun:"table:arena.kv_store,alias:kv"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}

// Store provides the generic get/set operations; it holds no database handle
// and takes a bun.IDB on every call. It accepts bun.IDB rather than *bun.DB so callers can pass a transaction (or
// database.SafeTx) to make a get-modify-set sequence part of a larger
// atomic commit.
type Store struct {
	log *slog.Logger
}

// NewStore creates a new key/value store helper.
func NewStore(log *slog.Logger) *Store {
	return &Store{log: log.With(logger.Scope("kvstore"))}
}

// Get returns the value stored under key, and false if no row exists.
func (s *Store) Get(ctx context.Context, db bun.IDB, key string) (string, bool, error) {
	var row Row
	err := db.NewSelect().Model(&row).Where("key = ?", key).Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		s.log.Error("failed to read key", logger.Error(err), slog.String("key", key))
		return "", false, apperror.ErrDatabase.WithInternal(err)
	}
	return row.Value, true, nil
}

// GetForUpdate is Get with a row lock, for use inside a read-modify-write
// transaction such as the recentruns append.
func (s *Store) GetForUpdate(ctx context.Context, db bun.IDB, key string) (string, bool, error) {
	var row Row
	err := db.NewSelect().Model(&row).Where("key = ?", key).For("UPDATE").Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		s.log.Error("failed to read key for update", logger.Error(err), slog.String("key", key))
		return "", false, apperror.ErrDatabase.WithInternal(err)
	}
	return row.Value, true, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, db bun.IDB, key, value string) error {
	row := &Row{Key: key, Value: value}
	_, err := db.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	if err != nil {
		s.log.Error("failed to write key", logger.Error(err), slog.String("key", key))
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}
