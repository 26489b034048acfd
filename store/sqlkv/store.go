// Package sqlkv implements kv.Backend on a single SQL table through GORM,
// for PostgreSQL and SQLite addressed by DSN.
package sqlkv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xraph/coinledger/kv"
)

const (
	stateTable      = "coin_state"
	migrationsTable = "coin_migrations"
)

// compile-time interface checks
var (
	_ kv.Backend = (*Store)(nil)
	_ kv.Applier = (*Store)(nil)
)

// Migration is one schema step. Versions are applied in ascending order, once.
type Migration struct {
	Name    string
	Version string
	Up      string
}

// Store implements kv.Backend using GORM.
type Store struct {
	db         *gorm.DB
	name       string
	migrations []Migration
	txOptions  []*sql.TxOptions
}

// Option configures a Store.
type Option func(*Store)

// WithIsolation runs Apply transactions at the given isolation level.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(s *Store) {
		s.txOptions = []*sql.TxOptions{{Isolation: level}}
	}
}

// New wraps db. name prefixes error messages (e.g. "postgres").
func New(db *gorm.DB, name string, migrations []Migration, opts ...Option) *Store {
	sorted := slices.Clone(migrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return strings.Compare(a.Version, b.Version) })

	s := &Store{
		db:         db,
		name:       name,
		migrations: sorted,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying gorm database for direct access.
func (s *Store) DB() *gorm.DB { return s.db }

func (s *Store) errorf(format string, args ...any) error {
	return fmt.Errorf("coinledger/"+s.name+": "+format, args...)
}

// Migrate applies pending migrations, each in its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&migrationModel{}); err != nil {
		return s.errorf("create migrations table: %w", err)
	}

	var applied []string
	if err := db.Model(&migrationModel{}).Pluck("version", &applied).Error; err != nil {
		return s.errorf("list migrations: %w", err)
	}

	for _, m := range s.migrations {
		if slices.Contains(applied, m.Version) {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.Up).Error; err != nil {
				return err
			}
			return tx.Create(&migrationModel{Version: m.Version, Name: m.Name}).Error
		})
		if err != nil {
			return s.errorf("migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&stateModel{}).
		Where("state_key = ?", key).
		Count(&n).Error
	if err != nil {
		return false, s.errorf("has %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var m stateModel
	err := s.db.WithContext(ctx).
		Where("state_key = ?", key).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, kv.ErrNotFound
		}
		return nil, s.errorf("get %s: %w", key, err)
	}
	return m.Value, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := upsert(s.db.WithContext(ctx), key, value); err != nil {
		return s.errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := remove(s.db.WithContext(ctx), key); err != nil {
		return s.errorf("delete %s: %w", key, err)
	}
	return nil
}

// Scan selects the key range [prefix, kv.PrefixEnd(prefix)). The key column uses
// byte-wise collation so the range and the ordering match Go string order.
func (s *Store) Scan(ctx context.Context, prefix string) ([]kv.Entry, error) {
	q := s.db.WithContext(ctx).Where("state_key >= ?", prefix)
	if end, ok := kv.PrefixEnd(prefix); ok {
		q = q.Where("state_key < ?", end)
	}

	var rows []stateModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, s.errorf("scan %s: %w", prefix, err)
	}

	entries := make([]kv.Entry, 0, len(rows))
	for _, r := range rows {
		if kv.HasPrefix(r.Key, prefix) {
			entries = append(entries, kv.Entry{Key: r.Key, Value: r.Value})
		}
	}
	slices.SortFunc(entries, func(a, b kv.Entry) int { return strings.Compare(a.Key, b.Key) })
	return entries, nil
}

// Apply validates rs and writes the batch in one database transaction.
// Validation reads run inside that transaction, so the isolation level set
// with WithIsolation decides what a concurrent writer can slip in.
func (s *Store) Apply(ctx context.Context, rs kv.ReadSet, writes []kv.Write) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view := &Store{db: tx, name: s.name}
		if err := rs.Validate(ctx, view); err != nil {
			return err
		}

		for _, w := range writes {
			var err error
			if w.Delete {
				err = remove(tx, w.Key)
			} else {
				err = upsert(tx, w.Key, w.Value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}, s.txOptions...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, kv.ErrConflict), isSerializationFailure(err):
		return kv.ErrConflict
	default:
		return s.errorf("apply %d writes: %w", len(writes), err)
	}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return s.errorf("ping: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return s.errorf("close: %w", err)
	}
	return sqlDB.Close()
}

func upsert(db *gorm.DB, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "state_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"state_value"}),
	}).Create(&stateModel{Key: key, Value: value}).Error
}

func remove(db *gorm.DB, key string) error {
	return db.Where("state_key = ?", key).Delete(&stateModel{}).Error
}

// isSerializationFailure reports a PostgreSQL serialization failure or
// deadlock, both of which abort the transaction and are safe to retry.
func isSerializationFailure(err error) bool {
	var coded interface{ SQLState() string }
	if !errors.As(err, &coded) {
		return false
	}
	switch coded.SQLState() {
	case "40001", "40P01":
		return true
	}
	return false
}
