package subscription_test

import (
	"testing"

	"github.com/missionhub/entitle/subscription"
)

func TestCancelled(t *testing.T) {
	tests := []struct {
		status subscription.Status
		want   bool
	}{
		{subscription.StatusActive, false},
		{subscription.StatusPastDue, false},
		{subscription.StatusUnpaid, false},
		{subscription.StatusCancelled, true},
	}

	for _, tt := range tests {
		s := &subscription.Subscription{Status: tt.status}
		if got := s.Cancelled(); got != tt.want {
			t.Errorf("Cancelled() with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestProviderManaged(t *testing.T) {
	manual := &subscription.Subscription{Status: subscription.StatusActive}
	if manual.ProviderManaged() {
		t.Error("manual grant reported as provider managed")
	}

	managed := &subscription.Subscription{ProviderSubscriptionID: "sub_ext_123"}
	if !managed.ProviderManaged() {
		t.Error("subscription with provider id not reported as managed")
	}
}
