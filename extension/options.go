package extension

import (
	"time"

	"github.com/missionhub/entitle"
	"github.com/missionhub/entitle/plugin"
	"github.com/missionhub/entitle/provider"
	"github.com/missionhub/entitle/store"
)

// Option configures the entitle Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes an entitle.Option through to the underlying engine.
func WithEngineOption(opt entitle.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an engine plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, entitle.WithPlugin(p))
	}
}

// WithProvider sets the billing provider, overriding any Stripe config.
func WithProvider(p provider.Provider) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, entitle.WithProvider(p))
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

// WithJournalBatchSize sets the number of journal entries to buffer before flushing.
func WithJournalBatchSize(size int) Option {
	return func(e *Extension) { e.config.JournalBatchSize = size }
}

// WithJournalFlushInterval sets how frequently the journal buffer is flushed.
func WithJournalFlushInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.JournalFlushInterval = d }
}

// WithStripe configures the Stripe billing provider.
func WithStripe(apiKey, webhookSecret string) Option {
	return func(e *Extension) {
		e.config.StripeAPIKey = apiKey
		e.config.StripeWebhookSecret = webhookSecret
	}
}
