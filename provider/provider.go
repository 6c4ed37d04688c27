// Package provider defines the contract between the entitlement core and
// the external recurring-billing system. The provider is the source of
// truth for subscription state; the core only ever asks it to schedule a
// cancellation and applies the events it pushes back.
package provider

import (
	"context"
	"time"

	"github.com/missionhub/entitle/subscription"
)

// Provider is the outbound billing-provider contract.
//
// CancelAtPeriodEnd must be called with a deadline-carrying context; an
// unknown outcome (timeout, connection reset) is indistinguishable from
// failure and must be reported as an error so the caller never commits
// local state ahead of provider confirmation.
type Provider interface {
	// Name identifies the provider implementation, e.g. "stripe".
	Name() string

	// CancelAtPeriodEnd asks the provider to let the subscription lapse at
	// the end of the current paid period. The call is binding once it
	// returns nil.
	CancelAtPeriodEnd(ctx context.Context, providerSubID string) error
}

// EventType classifies a provider-pushed subscription event.
type EventType string

const (
	// EventSubscriptionUpdated signals any change to a live subscription:
	// status transitions, period rollover, cancel flag changes.
	EventSubscriptionUpdated EventType = "subscription.updated"
	// EventSubscriptionDeleted signals the terminal cancellation.
	EventSubscriptionDeleted EventType = "subscription.deleted"
)

// Event is a provider-pushed subscription state change, already verified
// and normalized by the provider adapter. The engine applies it to the
// local subscription record through the same conditional-update primitive
// the cancel path uses.
type Event struct {
	Type              EventType
	ProviderSubID     string
	Status            subscription.Status
	CancelAtPeriodEnd bool
	PeriodEnd         *time.Time
}
