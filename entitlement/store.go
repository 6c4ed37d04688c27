package entitlement

import (
	"context"
	"time"

	"github.com/missionhub/entitle/id"
	"github.com/missionhub/entitle/plan"
)

// Store is the per-domain storage contract for entitlement records.
//
// ConsumeCredits and ExpireLapsed are the two conditional primitives the
// whole core leans on: each is a single "update iff predicate holds"
// operation against the backing store, never a read followed by a write, so
// concurrent callers cannot double-decrement a balance or double-apply an
// expiry.
type Store interface {
	// CreateEntitlement inserts a new entitlement record. A record for the
	// same user must not already exist.
	CreateEntitlement(ctx context.Context, e *Entitlement) error

	// GetEntitlement returns the entitlement for a user, or a not-found
	// error.
	GetEntitlement(ctx context.Context, userID id.UserID) (*Entitlement, error)

	// SetPlan sets the tier and expiry and resets both credit balances to
	// the given grant in one write. Used by the grant (upgrade) path and by
	// explicit resets; it is last-writer-wins and idempotent.
	SetPlan(ctx context.Context, userID id.UserID, tier plan.Tier, expiresAt *time.Time, credits plan.Credits) error

	// ExpireLapsed downgrades the user to the free tier iff the record's
	// expiry is set and strictly before now: tier becomes free, expiry is
	// cleared, and both balances are reset to the free grant, all in one
	// conditional write. Returns whether the transition fired; a record
	// that is current (or already free) is left untouched and returns
	// false.
	ExpireLapsed(ctx context.Context, userID id.UserID, now time.Time, defaults plan.Credits) (bool, error)

	// ConsumeCredits decrements one balance iff it currently holds at least
	// amount, returning the remaining balance. An insufficient balance
	// fails with a denial error and writes nothing.
	ConsumeCredits(ctx context.Context, userID id.UserID, kind CreditKind, amount int64) (int64, error)

	// ResetCredits sets both balances to the given grant without touching
	// tier or expiry. Idempotent.
	ResetCredits(ctx context.Context, userID id.UserID, credits plan.Credits) error
}
