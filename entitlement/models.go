// Package entitlement holds the per-user plan and credit state enforced by
// the ledger: which tier a user is on, when it lapses, and how many credits
// of each kind remain in the current period.
package entitlement

import (
	"time"

	"github.com/missionhub/entitle/id"
	"github.com/missionhub/entitle/plan"
)

// CreditKind names one consumable allowance on the entitlement record.
type CreditKind string

const (
	// KindApplication is consumed when a freelancer applies to a mission.
	KindApplication CreditKind = "application"
	// KindMission is consumed when a company posts a mission.
	KindMission CreditKind = "mission"
)

// Valid reports whether k is a known credit kind.
func (k CreditKind) Valid() bool {
	return k == KindApplication || k == KindMission
}

// Entitlement is the per-user plan and credit record.
//
// Invariants:
//   - Tier == plan.TierFree implies ExpiresAt == nil.
//   - Credit balances never go negative; a consume that would underflow
//     fails instead of clamping.
//
// Only the store's conditional primitives mutate these fields.
type Entitlement struct {
	UserID             id.UserID  `json:"user_id"`
	Tier               plan.Tier  `json:"tier"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"` // nil means no expiry
	ApplicationCredits int64      `json:"application_credits"`
	MissionCredits     int64      `json:"mission_credits"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Lapsed reports whether the plan has expired as of now. A nil ExpiresAt
// never lapses; expiry is strict ("at" the instant is not yet lapsed).
func (e *Entitlement) Lapsed(now time.Time) bool {
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// Balance returns the current balance for a credit kind.
func (e *Entitlement) Balance(kind CreditKind) int64 {
	switch kind {
	case KindApplication:
		return e.ApplicationCredits
	case KindMission:
		return e.MissionCredits
	}
	return 0
}

// New returns a fresh free-tier entitlement with the default credit grant,
// as created on signup.
func New(userID id.UserID) *Entitlement {
	defaults := plan.Defaults(plan.TierFree)
	now := time.Now().UTC()
	return &Entitlement{
		UserID:             userID,
		Tier:               plan.TierFree,
		ApplicationCredits: defaults.Applications,
		MissionCredits:     defaults.Missions,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// PlanView is the reconciled plan state returned by every read. Expired is
// true only when the read itself performed the downgrade to free.
type PlanView struct {
	Tier      plan.Tier  `json:"tier"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`
}

// View builds a PlanView from the current record state.
func (e *Entitlement) View(expired bool) *PlanView {
	return &PlanView{
		Tier:      e.Tier,
		ExpiresAt: e.ExpiresAt,
		Expired:   expired,
	}
}
