// Package extension provides the Forge extension adapter for coinledger.
//
// It implements the forge.Extension interface to integrate the ledger
// service into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.coinledger" or
// "coinledger" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/coinledger"
	"github.com/xraph/coinledger/service"
	"github.com/xraph/coinledger/store"
	"github.com/xraph/coinledger/store/backend"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "coinledger"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Coin balance ledger over a key-value store"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the coinledger service as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	svc         *service.Service
	store       store.Store
	serviceOpts []service.Option

	groveDB     *grove.DB
	groveDriver string
}

// New creates a new coinledger Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Service returns the ledger service.
// This is nil until Register is called.
func (e *Extension) Service() *service.Service { return e.svc }

// Register implements [forge.Extension]. It loads configuration, opens the
// store, builds the service and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.openStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	e.svc = service.New(e.store, e.buildServiceOpts()...)

	return vessel.Provide(fapp.Container(), func() (*service.Service, error) {
		return e.svc, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.svc == nil {
		return errors.New("coinledger: extension not initialized")
	}

	if e.config.DisableMigrate {
		e.svc.Plugins().EmitInit(ctx, e.svc)
	} else if err := e.svc.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.svc != nil {
		if err := e.svc.Stop(ctx); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("coinledger: store not initialized")
	}
	return e.store.Ping(ctx)
}

// openStore opens the store from the injected grove connection if one was
// given, otherwise from Config.Store.
func (e *Extension) openStore() (store.Store, error) {
	if e.groveDB == nil {
		return backend.Open(context.Background(), e.config.Store)
	}
	b, err := backend.FromGrove(e.groveDB, e.groveDriver)
	if err != nil {
		return nil, err
	}
	return backend.Wrap(b, e.config.Store)
}

// buildServiceOpts constructs service options from the resolved config.
func (e *Extension) buildServiceOpts() []service.Option {
	opts := make([]service.Option, 0, len(e.serviceOpts)+1)

	if e.config.RemoveBatchSize > 0 {
		opts = append(opts, service.WithLedgerOptions(coinledger.WithRemoveBatchSize(e.config.RemoveBatchSize)))
	}

	// Append any pass-through options.
	opts = append(opts, e.serviceOpts...)

	if e.config.PluginTimeout > 0 {
		opts = append(opts, func(s *service.Service) {
			s.Plugins().WithTimeout(e.config.PluginTimeout)
		})
	}

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("coinledger: configuration is required but not found in config files; " +
				"ensure 'extensions.coinledger' or 'coinledger' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("coinledger: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("remove_batch_size", e.config.RemoveBatchSize),
		forge.F("plugin_timeout", e.config.PluginTimeout),
		forge.F("store_driver", e.config.Store.Driver),
		forge.F("store_codec", e.config.Store.Codec),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.coinledger", "coinledger"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("coinledger: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("coinledger: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.RemoveBatchSize == 0 {
		cfg.RemoveBatchSize = defaults.RemoveBatchSize
	}
	if cfg.PluginTimeout == 0 {
		cfg.PluginTimeout = defaults.PluginTimeout
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = defaults.Store.Driver
	}
	if cfg.Store.Codec == "" {
		cfg.Store.Codec = defaults.Store.Codec
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.RemoveBatchSize == 0 {
		yamlConfig.RemoveBatchSize = programmaticConfig.RemoveBatchSize
	}
	if yamlConfig.PluginTimeout == 0 {
		yamlConfig.PluginTimeout = programmaticConfig.PluginTimeout
	}
	if yamlConfig.Store.Driver == "" {
		yamlConfig.Store = programmaticConfig.Store
	}
	if yamlConfig.Store.Codec == "" {
		yamlConfig.Store.Codec = programmaticConfig.Store.Codec
	}

	return mergeWithDefaults(yamlConfig)
}
