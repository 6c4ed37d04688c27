// Package plugin provides an extensible plugin system for the entitlement
// engine. Plugins hook into lifecycle events to extend functionality
// (metrics, audit trails, notifications) without touching the core paths.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanGranted is called when a user is granted a plan tier
// (signup, upgrade, or manual grant).
type OnPlanGranted interface {
	Plugin
	OnPlanGranted(ctx context.Context, userID, tier string) error
}

// OnPlanExpired is called when lazy reconciliation downgrades a lapsed
// plan to the free tier.
type OnPlanExpired interface {
	Plugin
	OnPlanExpired(ctx context.Context, userID, fromTier string) error
}

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditsConsumed is called after a successful credit decrement.
type OnCreditsConsumed interface {
	Plugin
	OnCreditsConsumed(ctx context.Context, userID, kind string, amount, remaining int64) error
}

// OnCreditsDenied is called when a consume is rejected for insufficient
// balance. Denials are expected business outcomes, not faults.
type OnCreditsDenied interface {
	Plugin
	OnCreditsDenied(ctx context.Context, userID, kind string, requested int64) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a subscription record is created.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub interface{}) error
}

// OnCancelRequested is called after a user-initiated cancellation has been
// acknowledged by the provider and committed locally.
type OnCancelRequested interface {
	Plugin
	OnCancelRequested(ctx context.Context, sub interface{}) error
}

// OnProviderEventApplied is called when a provider-pushed status change has
// been applied to the local subscription record.
type OnProviderEventApplied interface {
	Plugin
	OnProviderEventApplied(ctx context.Context, event interface{}) error
}

// ──────────────────────────────────────────────────
// Journal hooks
// ──────────────────────────────────────────────────

// OnJournalFlushed is called when buffered journal entries are flushed to
// the store.
type OnJournalFlushed interface {
	Plugin
	OnJournalFlushed(ctx context.Context, count int, elapsed time.Duration) error
}
