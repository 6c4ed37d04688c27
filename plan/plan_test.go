package plan_test

import (
	"testing"

	"github.com/missionhub/entitle/plan"
)

func TestTierValid(t *testing.T) {
	tests := []struct {
		tier  plan.Tier
		valid bool
	}{
		{plan.TierFree, true},
		{plan.TierStarter, true},
		{plan.TierPro, true},
		{plan.Tier("enterprise"), false},
		{plan.Tier(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			if got := tt.tier.Valid(); got != tt.valid {
				t.Errorf("Valid(%q): got %v, want %v", tt.tier, got, tt.valid)
			}
		})
	}
}

func TestTierPaid(t *testing.T) {
	if plan.TierFree.Paid() {
		t.Error("free tier must not be paid")
	}
	if !plan.TierStarter.Paid() || !plan.TierPro.Paid() {
		t.Error("starter and pro tiers must be paid")
	}
}

func TestCatalogCoversAllTiers(t *testing.T) {
	for _, tier := range []plan.Tier{plan.TierFree, plan.TierStarter, plan.TierPro} {
		if plan.Find(tier) == nil {
			t.Errorf("catalog missing tier %q", tier)
		}
	}
}

func TestDefaults(t *testing.T) {
	free := plan.Defaults(plan.TierFree)
	if free.Applications != 3 || free.Missions != 1 {
		t.Errorf("unexpected free defaults: %+v", free)
	}

	pro := plan.Defaults(plan.TierPro)
	if pro.Applications <= free.Applications || pro.Missions <= free.Missions {
		t.Errorf("pro defaults should exceed free: %+v vs %+v", pro, free)
	}
}

func TestDefaultsUnknownTierFallsBackToFree(t *testing.T) {
	got := plan.Defaults(plan.Tier("bogus"))
	if got != plan.Defaults(plan.TierFree) {
		t.Errorf("unknown tier should fall back to free defaults, got %+v", got)
	}
}

func TestFreeHasNoPrice(t *testing.T) {
	d := plan.Find(plan.TierFree)
	if !d.Price.IsZero() {
		t.Errorf("free tier must be priced at zero, got %s", d.Price)
	}
}
