// Package journal records successful credit consumptions for audit and
// analytics. The journal is observability-only: entitlement correctness
// never depends on it, and entries are flushed in batches by a background
// worker in the engine.
package journal

import (
	"time"

	"github.com/missionhub/entitle/entitlement"
	"github.com/missionhub/entitle/id"
)

// Entry is one successful credit consumption.
type Entry struct {
	ID        id.JournalEntryID      `json:"id"`
	UserID    id.UserID              `json:"user_id"`
	Kind      entitlement.CreditKind `json:"kind"`
	Amount    int64                  `json:"amount"`
	Remaining int64                  `json:"remaining"` // Balance after the decrement
	Timestamp time.Time              `json:"timestamp"`
}
