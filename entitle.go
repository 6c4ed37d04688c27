package entitle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/missionhub/entitle/entitlement"
	"github.com/missionhub/entitle/id"
	"github.com/missionhub/entitle/journal"
	"github.com/missionhub/entitle/plan"
	"github.com/missionhub/entitle/plugin"
	"github.com/missionhub/entitle/provider"
	"github.com/missionhub/entitle/store"
	"github.com/missionhub/entitle/subscription"
	"github.com/missionhub/entitle/types"
)

// Engine is the entitlement core: plan state, credit balances and the
// subscription bridge behind one façade. Every read reconciles expiry
// before answering; every consume is a single conditional decrement in the
// store. The engine holds no in-process locks over entitlement state, so it
// is safe to run multiple instances against the same backend.
type Engine struct {
	store    store.Store
	provider provider.Provider
	plugins  *plugin.Registry
	logger   *slog.Logger
	now      func() time.Time

	// Background workers
	journalBuffer chan *journal.Entry
	stopChan      chan struct{}
	wg            sync.WaitGroup

	// Configuration
	journalBatchSize     int
	journalFlushInterval time.Duration
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:                s,
		plugins:              plugin.NewRegistry(),
		logger:               slog.Default(),
		now:                  time.Now,
		journalBuffer:        make(chan *journal.Entry, 10000),
		stopChan:             make(chan struct{}),
		journalBatchSize:     100,
		journalFlushInterval: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithProvider sets the billing provider used by the subscription bridge.
// Without one, CancelSubscription fails with ErrProviderNotConfigured.
func WithProvider(p provider.Provider) Option {
	return func(e *Engine) {
		e.provider = p
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithJournalConfig configures journal flushing parameters.
func WithJournalConfig(batchSize int, flushInterval time.Duration) Option {
	return func(e *Engine) {
		e.journalBatchSize = batchSize
		e.journalFlushInterval = flushInterval
	}
}

// WithClock overrides the engine clock. Tests use this to move a plan past
// its expiry without sleeping.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Start begins background workers.
func (e *Engine) Start(ctx context.Context) error {
	// Migrate database
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	e.plugins.EmitInit(ctx, e)

	// Start journal flush worker
	e.wg.Add(1)
	go e.journalFlushWorker(ctx)

	e.logger.Info("entitle engine started",
		"batch_size", e.journalBatchSize,
		"flush_interval", e.journalFlushInterval,
		"provider", e.providerName(),
	)

	return nil
}

// Stop shuts down the Engine.
func (e *Engine) Stop() error {
	close(e.stopChan)
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

func (e *Engine) providerName() string {
	if e.provider == nil {
		return "none"
	}
	return e.provider.Name()
}

// ──────────────────────────────────────────────────
// Entitlement Lifecycle
// ──────────────────────────────────────────────────

// CreateEntitlement creates the free-tier entitlement record for a new
// user. Called once at signup.
func (e *Engine) CreateEntitlement(ctx context.Context, userID id.UserID) (*entitlement.Entitlement, error) {
	if userID.IsNil() {
		return nil, ValidationError{Field: "user_id", Message: "must not be empty"}
	}

	ent := entitlement.New(userID)
	if err := e.store.CreateEntitlement(ctx, ent); err != nil {
		return nil, err
	}

	e.plugins.EmitPlanGranted(ctx, userID.String(), string(ent.Tier))
	return ent, nil
}

// GrantPlan puts a user on a tier, resetting both credit balances to the
// tier's grant in the same write. A nil expiresAt means the plan never
// lapses; the free tier always carries a nil expiry.
func (e *Engine) GrantPlan(ctx context.Context, userID id.UserID, tier plan.Tier, expiresAt *time.Time) error {
	if !tier.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}
	if tier == plan.TierFree {
		expiresAt = nil
	}

	if err := e.store.SetPlan(ctx, userID, tier, expiresAt, plan.Defaults(tier)); err != nil {
		return err
	}

	e.plugins.EmitPlanGranted(ctx, userID.String(), string(tier))

	e.logger.Info("plan granted",
		"user_id", userID,
		"tier", tier,
	)
	return nil
}

// GetPlan returns the user's reconciled plan state. If the stored plan has
// lapsed, this read applies the downgrade to free before answering and the
// returned view carries Expired=true.
func (e *Engine) GetPlan(ctx context.Context, userID id.UserID) (*entitlement.PlanView, error) {
	ent, expired, err := e.reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ent.View(expired), nil
}

// GetEntitlement returns the full reconciled entitlement record, balances
// included.
func (e *Engine) GetEntitlement(ctx context.Context, userID id.UserID) (*entitlement.Entitlement, error) {
	ent, _, err := e.reconcile(ctx, userID)
	return ent, err
}

// ResetCredits restores both balances to the grant of the user's current
// (reconciled) tier. Idempotent; used by period-rollover handling in hosts.
func (e *Engine) ResetCredits(ctx context.Context, userID id.UserID) error {
	ent, _, err := e.reconcile(ctx, userID)
	if err != nil {
		return err
	}
	return e.store.ResetCredits(ctx, userID, plan.Defaults(ent.Tier))
}

// reconcile loads the entitlement and lazily applies expiry. If the record
// has lapsed, the store downgrades it to free in one conditional write; a
// concurrent reconcile racing us may win, in which case the transition
// simply did not fire here and the reloaded record is already free. Either
// way the caller sees post-transition state.
func (e *Engine) reconcile(ctx context.Context, userID id.UserID) (*entitlement.Entitlement, bool, error) {
	ent, err := e.store.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	now := e.now()
	if !ent.Lapsed(now) {
		return ent, false, nil
	}

	fired, err := e.store.ExpireLapsed(ctx, userID, now, plan.Defaults(plan.TierFree))
	if err != nil {
		return nil, false, err
	}
	if fired {
		e.plugins.EmitPlanExpired(ctx, userID.String(), string(ent.Tier))
		e.logger.Info("plan expired",
			"user_id", userID,
			"from_tier", ent.Tier,
		)
	}

	ent, err = e.store.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return ent, fired, nil
}

// ──────────────────────────────────────────────────
// Credit Consumption
// ──────────────────────────────────────────────────

// TryConsume atomically spends amount credits of the given kind. The plan
// is reconciled first, so a lapsed paid balance can never be spent; the
// decrement itself is conditional in the store, so concurrent consumers of
// the same balance can never overspend it. Returns the remaining balance on
// success and ErrInsufficientCredits (with nothing written) on denial.
func (e *Engine) TryConsume(ctx context.Context, userID id.UserID, kind entitlement.CreditKind, amount int64) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCreditKind, kind)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}

	if _, _, err := e.reconcile(ctx, userID); err != nil {
		return 0, err
	}

	remaining, err := e.store.ConsumeCredits(ctx, userID, kind, amount)
	if err != nil {
		if IsDenial(err) {
			e.plugins.EmitCreditsDenied(ctx, userID.String(), string(kind), amount)
		}
		return 0, err
	}

	e.plugins.EmitCreditsConsumed(ctx, userID.String(), string(kind), amount, remaining)
	e.journalConsume(userID, kind, amount, remaining)

	return remaining, nil
}

// journalConsume enqueues a journal entry for a successful consume. The
// journal is observability-only: a full buffer drops the entry with a
// warning rather than failing the consume that already committed.
func (e *Engine) journalConsume(userID id.UserID, kind entitlement.CreditKind, amount, remaining int64) {
	entry := &journal.Entry{
		ID:        id.NewJournalEntryID(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Remaining: remaining,
		Timestamp: e.now(),
	}

	select {
	case e.journalBuffer <- entry:
	default:
		e.logger.Warn("journal buffer full, dropping entry",
			"user_id", userID,
			"kind", kind,
		)
	}
}

// QueryJournal returns a user's consumption history, newest first.
func (e *Engine) QueryJournal(ctx context.Context, userID id.UserID, opts journal.QueryOpts) ([]*journal.Entry, error) {
	return e.store.QueryJournal(ctx, userID, opts)
}

// journalFlushWorker flushes journal entries to the store.
func (e *Engine) journalFlushWorker(ctx context.Context) {
	defer e.wg.Done()

	batch := make([]*journal.Entry, 0, e.journalBatchSize)
	ticker := time.NewTicker(e.journalFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			// Final flush
			if len(batch) > 0 {
				e.flushJournalBatch(ctx, batch)
			}
			return

		case entry := <-e.journalBuffer:
			batch = append(batch, entry)
			if len(batch) >= e.journalBatchSize {
				e.flushJournalBatch(ctx, batch)
				batch = make([]*journal.Entry, 0, e.journalBatchSize)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				e.flushJournalBatch(ctx, batch)
				batch = make([]*journal.Entry, 0, e.journalBatchSize)
			}
		}
	}
}

func (e *Engine) flushJournalBatch(ctx context.Context, batch []*journal.Entry) {
	start := time.Now()

	if err := e.store.AppendJournal(ctx, batch); err != nil {
		e.logger.Error("failed to flush journal batch",
			"error", err,
			"batch_size", len(batch),
		)
		return
	}

	elapsed := time.Since(start)
	e.plugins.EmitJournalFlushed(ctx, len(batch), elapsed)

	e.logger.Debug("flushed journal batch",
		"batch_size", len(batch),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Subscription Bridge
// ──────────────────────────────────────────────────

// CreateSubscription records a subscription created at the provider, on
// first paid purchase.
func (e *Engine) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub.ID.IsNil() {
		sub.ID = id.NewSubscriptionID()
	}
	sub.Entity = types.NewEntity()
	if sub.Status == "" {
		sub.Status = subscription.StatusActive
	}

	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return err
	}

	e.plugins.EmitSubscriptionCreated(ctx, sub)
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// GetSubscriptionByUser retrieves a user's subscription.
func (e *Engine) GetSubscriptionByUser(ctx context.Context, userID id.UserID) (*subscription.Subscription, error) {
	return e.store.GetSubscriptionByUser(ctx, userID)
}

// CancelSubscription schedules the user's subscription to lapse at the end
// of the current paid period.
//
// Order is strict: guards, then the provider call, then the local write.
// The local record is touched only after the provider acknowledges, so a
// provider failure or timeout leaves nothing to undo and the whole
// operation can be retried as-is. The terminal cancelled transition arrives
// later as a provider event.
func (e *Engine) CancelSubscription(ctx context.Context, userID id.UserID) error {
	if e.provider == nil {
		return ErrProviderNotConfigured
	}

	sub, err := e.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return err
	}
	if sub.Cancelled() {
		return ErrAlreadyCancelled
	}
	if !sub.ProviderManaged() {
		return ErrProviderIDMissing
	}

	if err := e.provider.CancelAtPeriodEnd(ctx, sub.ProviderSubscriptionID); err != nil {
		if !IsRetryable(err) {
			err = fmt.Errorf("%w: %v", ErrProviderFailure, err)
		}
		e.logger.Error("provider cancel failed",
			"user_id", userID,
			"subscription_id", sub.ID,
			"error", err,
		)
		return err
	}

	if err := e.store.MarkCancelAtPeriodEnd(ctx, sub.ID); err != nil {
		return err
	}

	e.plugins.EmitCancelRequested(ctx, sub)

	e.logger.Info("subscription cancel scheduled",
		"user_id", userID,
		"subscription_id", sub.ID,
	)
	return nil
}

// ApplyProviderEvent applies a provider-pushed subscription state change.
// Events are keyed by the provider's subscription ID and go through the
// same conditional update as the cancel path; cancelled is terminal, so a
// late or replayed event against a cancelled record is a no-op.
func (e *Engine) ApplyProviderEvent(ctx context.Context, ev *provider.Event) error {
	if ev.ProviderSubID == "" {
		return fmt.Errorf("%w: event has no provider subscription id", ErrInvalidInput)
	}

	if err := e.store.ApplyProviderStatus(ctx, ev.ProviderSubID, ev.Status, ev.CancelAtPeriodEnd, ev.PeriodEnd); err != nil {
		return err
	}

	e.plugins.EmitProviderEventApplied(ctx, ev)

	e.logger.Info("provider event applied",
		"type", ev.Type,
		"provider_sub_id", ev.ProviderSubID,
		"status", ev.Status,
	)
	return nil
}

// ──────────────────────────────────────────────────
// Plugins
// ──────────────────────────────────────────────────

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry {
	return e.plugins
}
