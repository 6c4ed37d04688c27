package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// Plugin interfaces are cached at registration time so emission is a slice
// walk, not a type assertion per event.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onPlanGranted          []OnPlanGranted
	onPlanExpired          []OnPlanExpired
	onCreditsConsumed      []OnCreditsConsumed
	onCreditsDenied        []OnCreditsDenied
	onSubscriptionCreated  []OnSubscriptionCreated
	onCancelRequested      []OnCancelRequested
	onProviderEventApplied []OnProviderEventApplied
	onJournalFlushed       []OnJournalFlushed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPlanGranted); ok {
		r.onPlanGranted = append(r.onPlanGranted, v)
	}
	if v, ok := p.(OnPlanExpired); ok {
		r.onPlanExpired = append(r.onPlanExpired, v)
	}
	if v, ok := p.(OnCreditsConsumed); ok {
		r.onCreditsConsumed = append(r.onCreditsConsumed, v)
	}
	if v, ok := p.(OnCreditsDenied); ok {
		r.onCreditsDenied = append(r.onCreditsDenied, v)
	}
	if v, ok := p.(OnSubscriptionCreated); ok {
		r.onSubscriptionCreated = append(r.onSubscriptionCreated, v)
	}
	if v, ok := p.(OnCancelRequested); ok {
		r.onCancelRequested = append(r.onCancelRequested, v)
	}
	if v, ok := p.(OnProviderEventApplied); ok {
		r.onProviderEventApplied = append(r.onProviderEventApplied, v)
	}
	if v, ok := p.(OnJournalFlushed); ok {
		r.onJournalFlushed = append(r.onJournalFlushed, v)
	}

	r.logger.Info("plugin registered", "name", p.Name())

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPlanGranted emits a plan granted event.
func (r *Registry) EmitPlanGranted(ctx context.Context, userID, tier string) {
	r.mu.RLock()
	plugins := r.onPlanGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPlanGranted(ctx, userID, tier)
		}); err != nil {
			r.logger.Warn("plugin OnPlanGranted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPlanExpired emits a plan expired event.
func (r *Registry) EmitPlanExpired(ctx context.Context, userID, fromTier string) {
	r.mu.RLock()
	plugins := r.onPlanExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPlanExpired(ctx, userID, fromTier)
		}); err != nil {
			r.logger.Warn("plugin OnPlanExpired failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCreditsConsumed emits a credits consumed event.
func (r *Registry) EmitCreditsConsumed(ctx context.Context, userID, kind string, amount, remaining int64) {
	r.mu.RLock()
	plugins := r.onCreditsConsumed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsConsumed(ctx, userID, kind, amount, remaining)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsConsumed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCreditsDenied emits a credits denied event.
func (r *Registry) EmitCreditsDenied(ctx context.Context, userID, kind string, requested int64) {
	r.mu.RLock()
	plugins := r.onCreditsDenied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsDenied(ctx, userID, kind, requested)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsDenied failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitSubscriptionCreated emits a subscription created event.
func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionCreated(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionCreated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitCancelRequested emits a cancellation requested event.
func (r *Registry) EmitCancelRequested(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onCancelRequested
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCancelRequested(ctx, sub)
		}); err != nil {
			r.logger.Warn("plugin OnCancelRequested failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitProviderEventApplied emits a provider event applied event.
func (r *Registry) EmitProviderEventApplied(ctx context.Context, event interface{}) {
	r.mu.RLock()
	plugins := r.onProviderEventApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnProviderEventApplied(ctx, event)
		}); err != nil {
			r.logger.Warn("plugin OnProviderEventApplied failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitJournalFlushed emits a journal flushed event.
func (r *Registry) EmitJournalFlushed(ctx context.Context, count int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onJournalFlushed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnJournalFlushed(ctx, count, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnJournalFlushed failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the entitlement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
