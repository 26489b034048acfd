// Package postgres provides a PostgreSQL kv.Backend on a grove connection.
//
// Reads are plain selects. A commit is a single INSERT into
// coin_state_commits whose trigger takes a transaction-scoped advisory lock,
// checks the read-set against coin_state and applies the writes, so a
// commit is atomic and serialized against every other commit.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements kv.Backend using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL backend over a grove connection.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the state and commit tables using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("coinledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("coinledger/postgres: migration failed: %w", err)
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
	err := s.pg.NewSelect(m).
		Where("state_key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("coinledger/postgres: get %s: %w", key, err)
	}
	return m.Value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.Apply(ctx, kv.ReadSet{}, []kv.Write{{Key: key, Value: value}})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.Apply(ctx, kv.ReadSet{}, []kv.Write{{Key: key, Delete: true}})
}

// Scan selects the key range [prefix, kv.PrefixEnd(prefix)). The key column
// uses the "C" collation, so the range is byte order.
func (s *Store) Scan(ctx context.Context, prefix string) ([]kv.Entry, error) {
	var models []stateModel
	q := s.pg.NewSelect(&models).Where("state_key >= $1", prefix)
	if end, ok := kv.PrefixEnd(prefix); ok {
		q = q.Where("state_key < $2", end)
	}
	q = q.OrderExpr("state_key ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("coinledger/postgres: scan %s: %w", prefix, err)
	}

	entries := make([]kv.Entry, 0, len(models))
	for _, m := range models {
		if kv.HasPrefix(m.Key, prefix) {
			entries = append(entries, kv.Entry{Key: m.Key, Value: m.Value})
		}
	}
	return entries, nil
}

// Apply inserts one commit row. The trigger rejects it with a serialization
// failure when rs no longer holds, which is reported as kv.ErrConflict.
func (s *Store) Apply(ctx context.Context, rs kv.ReadSet, writes []kv.Write) error {
	p, err := commit.Encode(rs, writes)
	if err != nil {
		return fmt.Errorf("coinledger/postgres: %w", err)
	}

	m := &commitModel{
		ID:     id.NewCommitID().String(),
		Reads:  p.Reads,
		Ranges: p.Ranges,
		Writes: p.Writes,
	}
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if commit.IsConflict(err) {
			return kv.ErrConflict
		}
		return fmt.Errorf("coinledger/postgres: apply %d writes: %w", len(writes), err)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
