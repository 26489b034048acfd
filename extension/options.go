package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/coinledger"
	"github.com/xraph/coinledger/plugin"
	"github.com/xraph/coinledger/service"
	"github.com/xraph/coinledger/store"
)

// Option configures the coinledger Forge extension.
type Option func(*Extension)

// WithStore sets the store for the service, bypassing Config.Store.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB stores ledger state in an existing grove connection. driver
// names the grove driver behind db: postgres, sqlite or mongo. Config.Store.Codec
// still selects the value codec.
func WithGroveDB(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		e.groveDriver = driver
	}
}

// WithLedgerOption passes a coinledger.Option through to the engine.
func WithLedgerOption(opt coinledger.Option) Option {
	return func(e *Extension) {
		e.serviceOpts = append(e.serviceOpts, service.WithLedgerOptions(opt))
	}
}

// WithPlugin registers a plugin with the service.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.serviceOpts = append(e.serviceOpts, service.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithRemoveBatchSize sets how many account deletions a coin removal commits at once.
func WithRemoveBatchSize(n int) Option {
	return func(e *Extension) { e.config.RemoveBatchSize = n }
}

// WithPluginTimeout bounds each plugin hook call.
func WithPluginTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.PluginTimeout = d }
}

// WithBackend selects the storage driver and its address.
func WithBackend(driver, dsn string) Option {
	return func(e *Extension) {
		e.config.Store.Driver = driver
		e.config.Store.DSN = dsn
	}
}

// WithCodec sets the record codec (json or msgpack).
func WithCodec(name string) Option {
	return func(e *Extension) { e.config.Store.Codec = name }
}
