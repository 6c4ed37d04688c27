package entitlement_test

import (
	"testing"
	"time"

	"github.com/missionhub/entitle/entitlement"
	"github.com/missionhub/entitle/id"
	"github.com/missionhub/entitle/plan"
)

func TestNewStartsOnFreeDefaults(t *testing.T) {
	e := entitlement.New(id.NewUserID())

	if e.Tier != plan.TierFree {
		t.Errorf("tier: got %q, want %q", e.Tier, plan.TierFree)
	}
	if e.ExpiresAt != nil {
		t.Error("free tier must have no expiry")
	}

	defaults := plan.Defaults(plan.TierFree)
	if e.ApplicationCredits != defaults.Applications {
		t.Errorf("application credits: got %d, want %d", e.ApplicationCredits, defaults.Applications)
	}
	if e.MissionCredits != defaults.Missions {
		t.Errorf("mission credits: got %d, want %d", e.MissionCredits, defaults.Missions)
	}
}

func TestLapsed(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiry never lapses", nil, false},
		{"past expiry lapses", &past, true},
		{"future expiry does not lapse", &future, false},
		{"expiry exactly now is not yet lapsed", &now, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &entitlement.Entitlement{ExpiresAt: tt.expiresAt}
			if got := e.Lapsed(now); got != tt.want {
				t.Errorf("Lapsed: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBalance(t *testing.T) {
	e := &entitlement.Entitlement{ApplicationCredits: 7, MissionCredits: 2}

	if got := e.Balance(entitlement.KindApplication); got != 7 {
		t.Errorf("application balance: got %d, want 7", got)
	}
	if got := e.Balance(entitlement.KindMission); got != 2 {
		t.Errorf("mission balance: got %d, want 2", got)
	}
	if got := e.Balance(entitlement.CreditKind("bogus")); got != 0 {
		t.Errorf("unknown kind balance: got %d, want 0", got)
	}
}

func TestCreditKindValid(t *testing.T) {
	if !entitlement.KindApplication.Valid() || !entitlement.KindMission.Valid() {
		t.Error("known kinds must be valid")
	}
	if entitlement.CreditKind("seats").Valid() {
		t.Error("unknown kind must be invalid")
	}
}

func TestView(t *testing.T) {
	exp := time.Now().Add(24 * time.Hour)
	e := &entitlement.Entitlement{Tier: plan.TierPro, ExpiresAt: &exp}

	v := e.View(false)
	if v.Tier != plan.TierPro || v.Expired || v.ExpiresAt == nil {
		t.Errorf("unexpected view: %+v", v)
	}
}
