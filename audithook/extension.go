// Package audithook bridges engine lifecycle events to an audit trail
// backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/missionhub/entitle/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                 = (*Extension)(nil)
	_ plugin.OnPlanGranted          = (*Extension)(nil)
	_ plugin.OnPlanExpired          = (*Extension)(nil)
	_ plugin.OnCreditsConsumed      = (*Extension)(nil)
	_ plugin.OnCreditsDenied        = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated  = (*Extension)(nil)
	_ plugin.OnCancelRequested      = (*Extension)(nil)
	_ plugin.OnProviderEventApplied = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement. It is
// defined locally so callers inject their concrete audit client at wiring
// time without this package importing it.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges engine lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanGranted implements plugin.OnPlanGranted.
func (e *Extension) OnPlanGranted(ctx context.Context, userID, tier string) error {
	return e.record(ctx, ActionPlanGranted, SeverityInfo, OutcomeSuccess,
		ResourcePlan, userID, CategoryEntitlement, nil,
		"user_id", userID,
		"tier", tier,
	)
}

// OnPlanExpired implements plugin.OnPlanExpired.
func (e *Extension) OnPlanExpired(ctx context.Context, userID, fromTier string) error {
	return e.record(ctx, ActionPlanExpired, SeverityInfo, OutcomeSuccess,
		ResourcePlan, userID, CategoryEntitlement, nil,
		"user_id", userID,
		"from_tier", fromTier,
	)
}

// ──────────────────────────────────────────────────
// Credit lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditsConsumed implements plugin.OnCreditsConsumed.
func (e *Extension) OnCreditsConsumed(_ context.Context, _, _ string, _, _ int64) error {
	// Successful consumes already land in the journal; auditing them here
	// would duplicate every entry.
	return nil
}

// OnCreditsDenied implements plugin.OnCreditsDenied.
func (e *Extension) OnCreditsDenied(ctx context.Context, userID, kind string, requested int64) error {
	return e.record(ctx, ActionCreditsDenied, SeverityWarning, OutcomeFailure,
		ResourceCredits, userID, CategoryAccess, nil,
		"user_id", userID,
		"kind", kind,
		"requested", requested,
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, "", CategorySubscription, nil,
		"event", "subscription_created",
	)
}

// OnCancelRequested implements plugin.OnCancelRequested.
func (e *Extension) OnCancelRequested(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionCancelRequested, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, "", CategorySubscription, nil,
		"event", "cancel_requested",
	)
}

// OnProviderEventApplied implements plugin.OnProviderEventApplied.
func (e *Extension) OnProviderEventApplied(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionProviderEventApplied, SeverityInfo, OutcomeSuccess,
		ResourceProvider, "", CategoryIntegration, nil,
		"event", "provider_event_applied",
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
