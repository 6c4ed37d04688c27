// Package stripeprovider implements the billing-provider contract on top of
// Stripe. It covers the two directions the core needs: asking Stripe to
// schedule a cancellation, and turning Stripe webhook payloads into
// normalized provider events.
package stripeprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	entitle "github.com/missionhub/entitle"
	"github.com/missionhub/entitle/provider"
	"github.com/missionhub/entitle/subscription"
)

// DefaultTimeout bounds every outbound Stripe call. A call that exceeds it
// is treated exactly like a provider failure: no local state may change.
const DefaultTimeout = 10 * time.Second

// ErrEventIgnored is returned by ParseEvent for webhook events the core
// does not consume. Callers should acknowledge the webhook and move on.
var ErrEventIgnored = errors.New("stripeprovider: event ignored")

// Compile-time interface check.
var _ provider.Provider = (*Provider)(nil)

// Provider talks to Stripe's subscription API.
type Provider struct {
	sc            *client.API
	timeout       time.Duration
	webhookSecret string
}

// Option configures a Provider.
type Option func(*Provider)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithWebhookSecret sets the endpoint secret used by VerifyEvent.
func WithWebhookSecret(secret string) Option {
	return func(p *Provider) { p.webhookSecret = secret }
}

// New creates a Stripe-backed provider with the given API key.
func New(apiKey string, opts ...Option) *Provider {
	sc := &client.API{}
	sc.Init(apiKey, nil)

	p := &Provider{
		sc:      sc,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements provider.Provider.
func (p *Provider) Name() string { return "stripe" }

// CancelAtPeriodEnd implements provider.Provider. It asks Stripe to let the
// subscription lapse at the end of the current paid period. Any error,
// including a timeout, leaves the outcome unknown and is reported as a
// provider failure.
func (p *Provider) CancelAtPeriodEnd(ctx context.Context, providerSubID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	}

	if _, err := p.sc.Subscriptions.Update(providerSubID, params); err != nil {
		return fmt.Errorf("%w: stripe cancel %s: %v", entitle.ErrProviderFailure, providerSubID, err)
	}
	return nil
}

// VerifyEvent parses a webhook payload using the secret configured via
// WithWebhookSecret.
func (p *Provider) VerifyEvent(payload []byte, sigHeader string) (*provider.Event, error) {
	return ParseEvent(payload, sigHeader, p.webhookSecret)
}

// ParseEvent verifies a Stripe webhook signature and maps the payload to a
// normalized provider event. Events the core does not consume return
// ErrEventIgnored.
func ParseEvent(payload []byte, sigHeader, secret string) (*provider.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return nil, fmt.Errorf("stripeprovider: verify webhook: %w", err)
	}

	switch event.Type {
	case "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("stripeprovider: decode %s: %w", event.Type, err)
		}
		return mapSubscription(event.Type, &sub), nil
	default:
		return nil, ErrEventIgnored
	}
}

func mapSubscription(eventType stripe.EventType, sub *stripe.Subscription) *provider.Event {
	evt := &provider.Event{
		Type:              provider.EventSubscriptionUpdated,
		ProviderSubID:     sub.ID,
		Status:            mapStatus(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}

	if eventType == "customer.subscription.deleted" {
		evt.Type = provider.EventSubscriptionDeleted
		evt.Status = subscription.StatusCancelled
	}

	if sub.CurrentPeriodEnd > 0 {
		periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		evt.PeriodEnd = &periodEnd
	}

	return evt
}

// mapStatus translates Stripe subscription statuses to the local enum.
// States the local model does not distinguish collapse to their nearest
// billing meaning.
func mapStatus(s stripe.SubscriptionStatus) subscription.Status {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return subscription.StatusActive
	case stripe.SubscriptionStatusPastDue:
		return subscription.StatusPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return subscription.StatusCancelled
	default:
		return subscription.StatusUnpaid
	}
}
