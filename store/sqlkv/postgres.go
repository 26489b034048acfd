package sqlkv

import (
	"database/sql"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresMigrations is the schema for the PostgreSQL state table. The key
// column uses the "C" collation so range scans follow byte order.
var PostgresMigrations = []Migration{
	{
		Name:    "create_coin_state",
		Version: "20240101000001",
		Up: `
CREATE TABLE IF NOT EXISTS coin_state (
    state_key   TEXT COLLATE "C" PRIMARY KEY,
    state_value BYTEA NOT NULL
);
`,
	},
}

// OpenPostgres connects to dsn. Call Migrate before first use.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("coinledger/postgres: open: %w", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing gorm connection. Apply runs serializable,
// so a concurrent commit that invalidates the read-set aborts with
// kv.ErrConflict.
func NewPostgres(db *gorm.DB) *Store {
	return New(db, "postgres", PostgresMigrations, WithIsolation(sql.LevelSerializable))
}
