package extension

import "time"

// Config holds the entitle extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.entitle" or "entitle" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// JournalBatchSize is the number of journal entries to buffer before
	// flushing to the store (default: 100).
	JournalBatchSize int `json:"journal_batch_size" mapstructure:"journal_batch_size" yaml:"journal_batch_size"`

	// JournalFlushInterval is how frequently the journal buffer is flushed
	// even if the batch size has not been reached (default: 5s).
	JournalFlushInterval time.Duration `json:"journal_flush_interval" mapstructure:"journal_flush_interval" yaml:"journal_flush_interval"`

	// StripeAPIKey enables the Stripe billing provider when set.
	StripeAPIKey string `json:"stripe_api_key" mapstructure:"stripe_api_key" yaml:"stripe_api_key"`

	// StripeWebhookSecret verifies incoming Stripe webhook signatures.
	StripeWebhookSecret string `json:"stripe_webhook_secret" mapstructure:"stripe_webhook_secret" yaml:"stripe_webhook_secret"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		JournalBatchSize:     100,
		JournalFlushInterval: 5 * time.Second,
	}
}
