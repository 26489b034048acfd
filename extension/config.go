package extension

import (
	"time"

	"github.com/xraph/coinledger/store/backend"
)

// Config holds the coinledger extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.coinledger" or "coinledger" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RemoveBatchSize is the number of account deletions committed together
	// while removing a coin (default: 100).
	RemoveBatchSize int `json:"remove_batch_size" mapstructure:"remove_batch_size" yaml:"remove_batch_size"`

	// PluginTimeout bounds each plugin hook call (default: 5s).
	PluginTimeout time.Duration `json:"plugin_timeout" mapstructure:"plugin_timeout" yaml:"plugin_timeout"`

	// Store selects the storage backend. Ignored when a store is provided
	// with WithStore.
	Store backend.Config `json:"store" mapstructure:"store" yaml:"store"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RemoveBatchSize: 100,
		PluginTimeout:   5 * time.Second,
		Store: backend.Config{
			Driver: backend.DriverMemory,
			Codec:  "json",
		},
	}
}
