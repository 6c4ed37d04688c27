package stripeprovider

import (
	"testing"
	"time"

	"github.com/stripe/stripe-go/v78"

	"github.com/missionhub/entitle/provider"
	"github.com/missionhub/entitle/subscription"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   stripe.SubscriptionStatus
		want subscription.Status
	}{
		{stripe.SubscriptionStatusActive, subscription.StatusActive},
		{stripe.SubscriptionStatusTrialing, subscription.StatusActive},
		{stripe.SubscriptionStatusPastDue, subscription.StatusPastDue},
		{stripe.SubscriptionStatusCanceled, subscription.StatusCancelled},
		{stripe.SubscriptionStatusIncompleteExpired, subscription.StatusCancelled},
		{stripe.SubscriptionStatusUnpaid, subscription.StatusUnpaid},
		{stripe.SubscriptionStatusIncomplete, subscription.StatusUnpaid},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			if got := mapStatus(tt.in); got != tt.want {
				t.Errorf("mapStatus(%q): got %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMapSubscriptionUpdated(t *testing.T) {
	periodEnd := time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC)
	sub := &stripe.Subscription{
		ID:                "sub_stripe123",
		Status:            stripe.SubscriptionStatusActive,
		CancelAtPeriodEnd: true,
		CurrentPeriodEnd:  periodEnd.Unix(),
	}

	evt := mapSubscription("customer.subscription.updated", sub)

	if evt.Type != provider.EventSubscriptionUpdated {
		t.Errorf("type: got %q", evt.Type)
	}
	if evt.ProviderSubID != "sub_stripe123" {
		t.Errorf("provider sub id: got %q", evt.ProviderSubID)
	}
	if evt.Status != subscription.StatusActive {
		t.Errorf("status: got %q", evt.Status)
	}
	if !evt.CancelAtPeriodEnd {
		t.Error("cancel flag should carry through")
	}
	if evt.PeriodEnd == nil || !evt.PeriodEnd.Equal(periodEnd) {
		t.Errorf("period end: got %v, want %v", evt.PeriodEnd, periodEnd)
	}
}

func TestMapSubscriptionDeletedForcesCancelled(t *testing.T) {
	sub := &stripe.Subscription{
		ID:     "sub_stripe123",
		Status: stripe.SubscriptionStatusActive, // Stale status in the payload
	}

	evt := mapSubscription("customer.subscription.deleted", sub)

	if evt.Type != provider.EventSubscriptionDeleted {
		t.Errorf("type: got %q", evt.Type)
	}
	if evt.Status != subscription.StatusCancelled {
		t.Errorf("deleted event must map to cancelled, got %q", evt.Status)
	}
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	_, err := ParseEvent([]byte(`{}`), "bad-signature", "whsec_test")
	if err == nil {
		t.Fatal("expected signature verification error")
	}
}
