// Package memory provides an in-memory Store used in tests and examples.
// The conditional-write semantics match the SQL backends: every mutation
// checks its predicate and applies its write under one lock acquisition.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/missionhub/entitle"
	"github.com/missionhub/entitle/entitlement"
	"github.com/missionhub/entitle/id"
	"github.com/missionhub/entitle/journal"
	"github.com/missionhub/entitle/plan"
	entitlestore "github.com/missionhub/entitle/store"
	"github.com/missionhub/entitle/subscription"
)

var _ entitlestore.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Entitlement storage, keyed by user ID
	entitlements map[string]*entitlement.Entitlement

	// Subscription storage, keyed by subscription ID
	subscriptions map[string]*subscription.Subscription

	// Journal storage
	entries []journal.Entry
}

func New() *Store {
	return &Store{
		entitlements:  make(map[string]*entitlement.Entitlement),
		subscriptions: make(map[string]*subscription.Subscription),
		entries:       make([]journal.Entry, 0),
	}
}

// Entitlement Store implementation

func (s *Store) CreateEntitlement(_ context.Context, e *entitlement.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entitlements[e.UserID.String()]; exists {
		return entitle.ErrAlreadyExists
	}
	s.entitlements[e.UserID.String()] = cloneEntitlement(e)
	return nil
}

func (s *Store) GetEntitlement(_ context.Context, userID id.UserID) (*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entitlements[userID.String()]; ok {
		return cloneEntitlement(e), nil
	}
	return nil, entitle.ErrRecordNotFound
}

func (s *Store) SetPlan(_ context.Context, userID id.UserID, tier plan.Tier, expiresAt *time.Time, credits plan.Credits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entitlements[userID.String()]
	if !ok {
		return entitle.ErrRecordNotFound
	}

	e.Tier = tier
	e.ExpiresAt = cloneTime(expiresAt)
	e.ApplicationCredits = credits.Applications
	e.MissionCredits = credits.Missions
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ExpireLapsed(_ context.Context, userID id.UserID, now time.Time, defaults plan.Credits) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entitlements[userID.String()]
	if !ok {
		return false, entitle.ErrRecordNotFound
	}

	// Predicate and write under one lock: a racing caller sees either the
	// lapsed record (and fires) or the already-downgraded one (and doesn't).
	if e.ExpiresAt == nil || !e.ExpiresAt.Before(now) {
		return false, nil
	}

	e.Tier = plan.TierFree
	e.ExpiresAt = nil
	e.ApplicationCredits = defaults.Applications
	e.MissionCredits = defaults.Missions
	e.UpdatedAt = now
	return true, nil
}

func (s *Store) ConsumeCredits(_ context.Context, userID id.UserID, kind entitlement.CreditKind, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entitlements[userID.String()]
	if !ok {
		return 0, entitle.ErrRecordNotFound
	}

	switch kind {
	case entitlement.KindApplication:
		if e.ApplicationCredits < amount {
			return 0, entitle.ErrInsufficientCredits
		}
		e.ApplicationCredits -= amount
		e.UpdatedAt = time.Now().UTC()
		return e.ApplicationCredits, nil

	case entitlement.KindMission:
		if e.MissionCredits < amount {
			return 0, entitle.ErrInsufficientCredits
		}
		e.MissionCredits -= amount
		e.UpdatedAt = time.Now().UTC()
		return e.MissionCredits, nil

	default:
		return 0, entitle.ErrUnknownCreditKind
	}
}

func (s *Store) ResetCredits(_ context.Context, userID id.UserID, credits plan.Credits) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entitlements[userID.String()]
	if !ok {
		return entitle.ErrRecordNotFound
	}

	e.ApplicationCredits = credits.Applications
	e.MissionCredits = credits.Missions
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// Subscription Store implementation

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return entitle.ErrAlreadyExists
	}
	for _, existing := range s.subscriptions {
		if existing.UserID == sub.UserID && !existing.Cancelled() {
			return entitle.ErrSubscriptionExists
		}
	}
	s.subscriptions[sub.ID.String()] = cloneSubscription(sub)
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return cloneSubscription(sub), nil
	}
	return nil, entitle.ErrSubscriptionNotFound
}

func (s *Store) GetSubscriptionByUser(_ context.Context, userID id.UserID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Prefer the live subscription; cancelled records are kept for audit.
	var cancelled *subscription.Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID != userID {
			continue
		}
		if !sub.Cancelled() {
			return cloneSubscription(sub), nil
		}
		cancelled = sub
	}
	if cancelled != nil {
		return cloneSubscription(cancelled), nil
	}
	return nil, entitle.ErrSubscriptionNotFound
}

func (s *Store) MarkCancelAtPeriodEnd(_ context.Context, subID id.SubscriptionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return entitle.ErrSubscriptionNotFound
	}
	if sub.Cancelled() {
		return entitle.ErrAlreadyCancelled
	}

	sub.CancelAtPeriodEnd = true
	sub.Touch()
	return nil
}

func (s *Store) ApplyProviderStatus(_ context.Context, providerSubID string, status subscription.Status, cancelAtPeriodEnd bool, periodEnd *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subscriptions {
		if sub.ProviderSubscriptionID != providerSubID {
			continue
		}
		// Cancelled is terminal; a replayed or out-of-order event is a no-op.
		if sub.Cancelled() {
			return nil
		}
		sub.Status = status
		sub.CancelAtPeriodEnd = cancelAtPeriodEnd
		if periodEnd != nil {
			sub.CurrentPeriodEnd = cloneTime(periodEnd)
		}
		sub.Touch()
		return nil
	}
	return entitle.ErrSubscriptionNotFound
}

// Journal Store implementation

func (s *Store) AppendJournal(_ context.Context, entries []*journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.entries = append(s.entries, *e)
	}
	return nil
}

func (s *Store) QueryJournal(_ context.Context, userID id.UserID, opts journal.QueryOpts) ([]*journal.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*journal.Entry, 0)
	// Newest first
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.UserID != userID {
			continue
		}
		if opts.Kind != "" && string(e.Kind) != opts.Kind {
			continue
		}
		if !opts.Start.IsZero() && e.Timestamp.Before(opts.Start) {
			continue
		}
		if !opts.End.IsZero() && !e.Timestamp.Before(opts.End) {
			continue
		}
		entry := e
		matched = append(matched, &entry)
	}

	// Apply limit/offset
	start := opts.Offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(matched) {
		end = len(matched)
	}

	return matched[start:end], nil
}

func (s *Store) PurgeJournal(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	kept := make([]journal.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Timestamp.Before(before) {
			count++
		} else {
			kept = append(kept, e)
		}
	}
	s.entries = kept
	return count, nil
}

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions

func cloneEntitlement(e *entitlement.Entitlement) *entitlement.Entitlement {
	out := *e
	out.ExpiresAt = cloneTime(e.ExpiresAt)
	return &out
}

func cloneSubscription(sub *subscription.Subscription) *subscription.Subscription {
	out := *sub
	out.CurrentPeriodEnd = cloneTime(sub.CurrentPeriodEnd)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
