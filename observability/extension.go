// Package observability provides a metrics extension for the entitle engine
// that records lifecycle event counts. The default factory is backed by
// Prometheus; any MetricFactory implementation can be substituted.
package observability

import (
	"context"
	"time"

	"github.com/missionhub/entitle/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                 = (*MetricsExtension)(nil)
	_ plugin.OnInit                 = (*MetricsExtension)(nil)
	_ plugin.OnPlanGranted          = (*MetricsExtension)(nil)
	_ plugin.OnPlanExpired          = (*MetricsExtension)(nil)
	_ plugin.OnCreditsConsumed      = (*MetricsExtension)(nil)
	_ plugin.OnCreditsDenied        = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated  = (*MetricsExtension)(nil)
	_ plugin.OnCancelRequested      = (*MetricsExtension)(nil)
	_ plugin.OnProviderEventApplied = (*MetricsExtension)(nil)
	_ plugin.OnJournalFlushed       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an engine plugin to automatically track entitlement metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Plan metrics
	PlanGranted Counter
	PlanExpired Counter

	// Credit metrics
	CreditsConsumed Counter
	CreditsDenied   Counter
	ConsumeAmount   Histogram

	// Subscription metrics
	SubscriptionCreated   Counter
	CancelRequested       Counter
	ProviderEventsApplied Counter

	// Journal metrics
	JournalBatchSize    Histogram
	JournalFlushLatency Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Plan metrics
		PlanGranted: factory.Counter("entitle.plan.granted"),
		PlanExpired: factory.Counter("entitle.plan.expired"),

		// Credit metrics
		CreditsConsumed: factory.Counter("entitle.credits.consumed"),
		CreditsDenied:   factory.Counter("entitle.credits.denied"),
		ConsumeAmount:   factory.Histogram("entitle.credits.consume_amount"),

		// Subscription metrics
		SubscriptionCreated:   factory.Counter("entitle.subscription.created"),
		CancelRequested:       factory.Counter("entitle.subscription.cancel_requested"),
		ProviderEventsApplied: factory.Counter("entitle.provider.events_applied"),

		// Journal metrics
		JournalBatchSize:    factory.Histogram("entitle.journal.batch.size"),
		JournalFlushLatency: factory.Histogram("entitle.journal.flush.latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Plan lifecycle hooks
// ──────────────────────────────────────────────────

// OnPlanGranted implements plugin.OnPlanGranted.
func (m *MetricsExtension) OnPlanGranted(_ context.Context, _, _ string) error {
	m.PlanGranted.Inc()
	return nil
}

// OnPlanExpired implements plugin.OnPlanExpired.
func (m *MetricsExtension) OnPlanExpired(_ context.Context, _, _ string) error {
	m.PlanExpired.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Credit lifecycle hooks
// ──────────────────────────────────────────────────

// OnCreditsConsumed implements plugin.OnCreditsConsumed.
func (m *MetricsExtension) OnCreditsConsumed(_ context.Context, _, _ string, amount, _ int64) error {
	m.CreditsConsumed.Inc()
	m.ConsumeAmount.Observe(float64(amount))
	return nil
}

// OnCreditsDenied implements plugin.OnCreditsDenied.
func (m *MetricsExtension) OnCreditsDenied(_ context.Context, _, _ string, _ int64) error {
	m.CreditsDenied.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ interface{}) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnCancelRequested implements plugin.OnCancelRequested.
func (m *MetricsExtension) OnCancelRequested(_ context.Context, _ interface{}) error {
	m.CancelRequested.Inc()
	return nil
}

// OnProviderEventApplied implements plugin.OnProviderEventApplied.
func (m *MetricsExtension) OnProviderEventApplied(_ context.Context, _ interface{}) error {
	m.ProviderEventsApplied.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Journal lifecycle hooks
// ──────────────────────────────────────────────────

// OnJournalFlushed implements plugin.OnJournalFlushed.
func (m *MetricsExtension) OnJournalFlushed(_ context.Context, count int, elapsed time.Duration) error {
	m.JournalBatchSize.Observe(float64(count))
	m.JournalFlushLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
