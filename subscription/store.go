package subscription

import (
	"context"
	"time"

	"github.com/missionhub/entitle/id"
)

// Store is the per-domain storage contract for subscription records.
//
// Two distinct write paths converge here, the user-initiated cancel flag
// and provider-pushed status events, and both go through conditional
// updates so they cannot race destructively.
type Store interface {
	// CreateSubscription inserts a new subscription record on first paid
	// purchase.
	CreateSubscription(ctx context.Context, s *Subscription) error

	// GetSubscription returns a subscription by its local ID.
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)

	// GetSubscriptionByUser returns the subscription owned by a user.
	GetSubscriptionByUser(ctx context.Context, userID id.UserID) (*Subscription, error)

	// MarkCancelAtPeriodEnd sets the cancel flag iff the subscription is not
	// already in the terminal cancelled state. Called only after the
	// provider has acknowledged the cancellation request.
	MarkCancelAtPeriodEnd(ctx context.Context, subID id.SubscriptionID) error

	// ApplyProviderStatus applies a provider-pushed state change keyed by
	// the provider's subscription ID. Cancelled is terminal: a record
	// already cancelled is left untouched.
	ApplyProviderStatus(ctx context.Context, providerSubID string, status Status, cancelAtPeriodEnd bool, periodEnd *time.Time) error
}
