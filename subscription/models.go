// Package subscription models the local mirror of a user's recurring-billing
// subscription. The billing provider is authoritative; this record is a
// write-through cache updated on explicit user actions and on
// provider-pushed events, and it is never physically deleted.
package subscription

import (
	"time"

	"github.com/missionhub/entitle/id"
	"github.com/missionhub/entitle/types"
)

// Status is the provider-aligned subscription state.
type Status string

const (
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusUnpaid    Status = "unpaid"
)

// Subscription is one user's billing subscription record.
//
// StatusCancelled is terminal. CancelAtPeriodEnd=true with StatusActive is
// the valid intermediate state after a user-initiated cancellation: the
// subscription keeps running until the paid period ends, at which point the
// provider pushes the final cancelled transition.
type Subscription struct {
	types.Entity
	ID                     id.SubscriptionID `json:"id"`
	UserID                 id.UserID         `json:"user_id"`
	ProviderSubscriptionID string            `json:"provider_subscription_id,omitempty"` // Empty for legacy/manual grants
	Status                 Status            `json:"status"`
	CancelAtPeriodEnd      bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd       *time.Time        `json:"current_period_end,omitempty"`
}

// Cancelled reports whether the subscription has reached its terminal state.
func (s *Subscription) Cancelled() bool {
	return s.Status == StatusCancelled
}

// ProviderManaged reports whether the subscription can be cancelled through
// the billing provider. Manual grants have no provider record and cannot be.
func (s *Subscription) ProviderManaged() bool {
	return s.ProviderSubscriptionID != ""
}
