package sqlkv

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteMigrations is the schema for the SQLite state table. TEXT keys
// compare with the default BINARY collation, which is byte order.
var SQLiteMigrations = []Migration{
	{
		Name:    "create_coin_state",
		Version: "20240101000001",
		Up: `
CREATE TABLE IF NOT EXISTS coin_state (
    state_key   TEXT PRIMARY KEY,
    state_value BLOB NOT NULL
);
`,
	},
}

// OpenSQLite opens the database file at path (or a "file:" URI). Call
// Migrate before first use.
func OpenSQLite(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("coinledger/sqlite: open: %w", err)
	}

	// One connection: SQLite has a single writer, and Apply's validation
	// then runs with no other statement in between.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("coinledger/sqlite: open: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return NewSQLite(db), nil
}

// NewSQLite wraps an existing gorm connection.
func NewSQLite(db *gorm.DB) *Store {
	return New(db, "sqlite", SQLiteMigrations)
}
