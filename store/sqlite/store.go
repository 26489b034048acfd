// Package sqlite provides a SQLite kv.Backend on a grove connection.
//
// A commit is a single INSERT into coin_state_commits. Its trigger checks
// the read-set and applies the writes inside that statement, which SQLite
// runs under the database write lock.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/coinledger/id"
	"github.com/xraph/coinledger/kv"
	"github.com/xraph/coinledger/store/internal/commit"
)

// compile-time interface checks
var (
	_ kv.Backend = (*Store)(nil)
	_ kv.Applier = (*Store)(nil)
)

// Store implements kv.Backend using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite backend over a grove connection.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the state and commit tables using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("coinledger/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("coinledger/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, kv.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	m := new(stateModel)
	err := s.sdb.NewSelect(m).
		Where("state_key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("coinledger/sqlite: get %s: %w", key, err)
	}
	return decodeValue(m)
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.Apply(ctx, kv.ReadSet{}, []kv.Write{{Key: key, Value: value}})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.Apply(ctx, kv.ReadSet{}, []kv.Write{{Key: key, Delete: true}})
}

// Scan selects the key range [prefix, kv.PrefixEnd(prefix)).
func (s *Store) Scan(ctx context.Context, prefix string) ([]kv.Entry, error) {
	var models []stateModel
	q := s.sdb.NewSelect(&models).Where("state_key >= ?", prefix)
	if end, ok := kv.PrefixEnd(prefix); ok {
		q = q.Where("state_key < ?", end)
	}
	q = q.OrderExpr("state_key ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("coinledger/sqlite: scan %s: %w", prefix, err)
	}

	entries := make([]kv.Entry, 0, len(models))
	for i := range models {
		if !kv.HasPrefix(models[i].Key, prefix) {
			continue
		}
		v, err := decodeValue(&models[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, kv.Entry{Key: models[i].Key, Value: v})
	}
	return entries, nil
}

// Apply inserts one commit row. The trigger aborts the statement when rs no
// longer holds, which is reported as kv.ErrConflict.
func (s *Store) Apply(ctx context.Context, rs kv.ReadSet, writes []kv.Write) error {
	p, err := commit.Encode(rs, writes)
	if err != nil {
		return fmt.Errorf("coinledger/sqlite: %w", err)
	}

	m := &commitModel{
		ID:     id.NewCommitID().String(),
		Reads:  string(p.Reads),
		Ranges: string(p.Ranges),
		Writes: string(p.Writes),
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		if commit.IsConflict(err) {
			return kv.ErrConflict
		}
		return fmt.Errorf("coinledger/sqlite: apply %d writes: %w", len(writes), err)
	}
	return nil
}

func decodeValue(m *stateModel) ([]byte, error) {
	v, err := hex.DecodeString(m.Value)
	if err != nil {
		return nil, fmt.Errorf("coinledger/sqlite: decode %s: %w", m.Key, err)
	}
	return v, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
