// Package plan defines the subscription tiers sold by the marketplace and
// the per-tier credit grants enforced by the entitlement ledger.
package plan

import "github.com/missionhub/entitle/types"

// Tier names a subscription plan level.
type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierStarter, TierPro:
		return true
	}
	return false
}

// Paid reports whether t is a paying tier. Paid tiers carry an expiry on the
// entitlement record; the free tier never does.
func (t Tier) Paid() bool {
	return t == TierStarter || t == TierPro
}

// Credits is the consumable allowance granted by a tier for one billing
// period. Both balances are non-negative by construction.
type Credits struct {
	Applications int64 `json:"applications"` // Mission applications a freelancer may submit
	Missions     int64 `json:"missions"`     // Mission postings a company may publish
}

// Definition describes one tier of the plan catalog: the credit grant and
// the public list price. Pricing is display-only here; the billing provider
// owns actual charging.
type Definition struct {
	Tier    Tier        `json:"tier"`
	Name    string      `json:"name"`
	Price   types.Money `json:"price"` // Per month
	Credits Credits     `json:"credits"`
}

// Catalog is the ordered set of tiers offered to marketplace users.
var Catalog = []Definition{
	{
		Tier:    TierFree,
		Name:    "Free",
		Price:   types.Zero("usd"),
		Credits: Credits{Applications: 3, Missions: 1},
	},
	{
		Tier:    TierStarter,
		Name:    "Starter",
		Price:   types.USD(2900),
		Credits: Credits{Applications: 20, Missions: 5},
	},
	{
		Tier:    TierPro,
		Name:    "Pro",
		Price:   types.USD(9900),
		Credits: Credits{Applications: 100, Missions: 25},
	},
}

// Find returns the catalog definition for a tier, or nil if unknown.
func Find(t Tier) *Definition {
	for i := range Catalog {
		if Catalog[i].Tier == t {
			return &Catalog[i]
		}
	}
	return nil
}

// Defaults returns the credit grant for a tier. Unknown tiers fall back to
// the free grant so a corrupt tier value can never inflate an allowance.
func Defaults(t Tier) Credits {
	if d := Find(t); d != nil {
		return d.Credits
	}
	return Find(TierFree).Credits
}
