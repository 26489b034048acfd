// Package backend opens a kv.Backend by driver name and wraps it in a
// store.Store, so the CLI and the Forge extension share one configuration.
//
// Drivers addressed by DSN are opened through GORM (postgres, sqlite), redigo
// and the MongoDB driver. An application that already holds a grove
// connection passes it to FromGrove instead.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/grove"

	"github.com/xraph/coinledger/kv"
	"github.com/xraph/coinledger/store/kvstore"
	"github.com/xraph/coinledger/store/memory"
	"github.com/xraph/coinledger/store/mongo"
	"github.com/xraph/coinledger/store/postgres"
	"github.com/xraph/coinledger/store/redis"
	"github.com/xraph/coinledger/store/sqlite"
	"github.com/xraph/coinledger/store/sqlkv"
)

// Driver names.
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config selects and configures a backend.
type Config struct {
	// Driver is one of memory, redis, postgres, sqlite or mongo (default: memory).
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the driver address: redis host:port, postgres DSN, sqlite file
	// path or mongo URI.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// Database is the mongo database name (default: "coinledger").
	Database string `json:"database" mapstructure:"database" yaml:"database"`

	// Namespace prefixes every redis key.
	Namespace string `json:"namespace" mapstructure:"namespace" yaml:"namespace"`

	// Codec is the record encoding, json or msgpack (default: json).
	Codec string `json:"codec" mapstructure:"codec" yaml:"codec"`
}

// OpenBackend opens the configured kv.Backend.
func OpenBackend(ctx context.Context, cfg Config) (kv.Backend, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverRedis:
		if cfg.DSN == "" {
			return nil, errors.New("backend: redis requires a dsn")
		}
		return redis.New(redis.NewPool(cfg.DSN, 8, 64), redis.WithNamespace(cfg.Namespace)), nil
	case DriverPostgres:
		b, err := sqlkv.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	case DriverSQLite:
		if cfg.DSN == "" {
			return nil, errors.New("backend: sqlite requires a file path")
		}
		b, err := sqlkv.OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	case DriverMongo:
		database := cfg.Database
		if database == "" {
			database = "coinledger"
		}
		b, err := mongo.Connect(ctx, cfg.DSN, database, mongo.DefaultCollection)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("backend: unknown driver %q", cfg.Driver)
	}
}

// FromGrove returns the kv.Backend for a grove connection of the given
// driver: postgres, sqlite or mongo.
func FromGrove(db *grove.DB, driver string) (kv.Backend, error) {
	if db == nil {
		return nil, errors.New("backend: nil grove database")
	}
	switch driver {
	case DriverPostgres:
		return postgres.New(db), nil
	case DriverSQLite:
		return sqlite.New(db), nil
	case DriverMongo:
		return mongo.NewFromGrove(db), nil
	default:
		return nil, fmt.Errorf("backend: grove driver %q is not supported", driver)
	}
}

// Open opens the configured backend and wraps it in a kvstore.Store.
func Open(ctx context.Context, cfg Config) (*kvstore.Store, error) {
	codec, err := kvstore.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	b, err := OpenBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return kvstore.New(b, kvstore.WithCodec(codec)), nil
}

// Wrap wraps an already opened backend with the codec named in cfg.
func Wrap(b kv.Backend, cfg Config) (*kvstore.Store, error) {
	codec, err := kvstore.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	return kvstore.New(b, kvstore.WithCodec(codec)), nil
}
