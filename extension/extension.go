// Package extension provides the Forge extension adapter for entitle.
//
// It implements the forge.Extension interface to integrate the entitlement
// engine into a Forge application with DI registration and lifecycle
// management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.entitle" or "entitle"
// keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/missionhub/entitle"
	"github.com/missionhub/entitle/provider/stripeprovider"
	"github.com/missionhub/entitle/store"
	"github.com/missionhub/entitle/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "entitle"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Entitlement and credit core for the mission marketplace"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the entitle engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *entitle.Engine
	store      store.Store
	engineOpts []entitle.Option
}

// New creates a new entitle Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine instance.
// This is nil until Register is called.
func (e *Extension) Engine() *entitle.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	eng := entitle.New(e.store, e.buildEngineOpts()...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*entitle.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("entitle: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
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
		return errors.New("entitle: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs entitle.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []entitle.Option {
	opts := make([]entitle.Option, 0, len(e.engineOpts)+2)

	if e.config.JournalBatchSize > 0 || e.config.JournalFlushInterval > 0 {
		batchSize := e.config.JournalBatchSize
		flushInterval := e.config.JournalFlushInterval
		defaults := DefaultConfig()
		if batchSize == 0 {
			batchSize = defaults.JournalBatchSize
		}
		if flushInterval == 0 {
			flushInterval = defaults.JournalFlushInterval
		}
		opts = append(opts, entitle.WithJournalConfig(batchSize, flushInterval))
	}

	if e.config.StripeAPIKey != "" {
		stripeOpts := []stripeprovider.Option{}
		if e.config.StripeWebhookSecret != "" {
			stripeOpts = append(stripeOpts, stripeprovider.WithWebhookSecret(e.config.StripeWebhookSecret))
		}
		opts = append(opts, entitle.WithProvider(stripeprovider.New(e.config.StripeAPIKey, stripeOpts...)))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("entitle: configuration is required but not found in config files; " +
				"ensure 'extensions.entitle' or 'entitle' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("entitle: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("journal_batch_size", e.config.JournalBatchSize),
		forge.F("journal_flush_interval", e.config.JournalFlushInterval),
		forge.F("stripe_configured", e.config.StripeAPIKey != ""),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.entitle" first (namespaced pattern).
	if cm.IsSet("extensions.entitle") {
		if err := cm.Bind("extensions.entitle", &cfg); err == nil {
			e.Logger().Debug("entitle: loaded config from file",
				forge.F("key", "extensions.entitle"),
			)
			return cfg, true
		}
		e.Logger().Warn("entitle: failed to bind extensions.entitle config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "entitle" key.
	if cm.IsSet("entitle") {
		if err := cm.Bind("entitle", &cfg); err == nil {
			e.Logger().Debug("entitle: loaded config from file",
				forge.F("key", "entitle"),
			)
			return cfg, true
		}
		e.Logger().Warn("entitle: failed to bind entitle config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.JournalBatchSize == 0 {
		cfg.JournalBatchSize = defaults.JournalBatchSize
	}
	if cfg.JournalFlushInterval == 0 {
		cfg.JournalFlushInterval = defaults.JournalFlushInterval
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.StripeAPIKey == "" && programmaticConfig.StripeAPIKey != "" {
		yamlConfig.StripeAPIKey = programmaticConfig.StripeAPIKey
	}
	if yamlConfig.StripeWebhookSecret == "" && programmaticConfig.StripeWebhookSecret != "" {
		yamlConfig.StripeWebhookSecret = programmaticConfig.StripeWebhookSecret
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.JournalBatchSize == 0 && programmaticConfig.JournalBatchSize != 0 {
		yamlConfig.JournalBatchSize = programmaticConfig.JournalBatchSize
	}
	if yamlConfig.JournalFlushInterval == 0 && programmaticConfig.JournalFlushInterval != 0 {
		yamlConfig.JournalFlushInterval = programmaticConfig.JournalFlushInterval
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
