package journal

import (
	"context"
	"time"

	"github.com/missionhub/entitle/id"
)

// Store is the per-domain storage contract for the consumption journal.
type Store interface {
	// AppendJournal persists a batch of journal entries.
	AppendJournal(ctx context.Context, entries []*Entry) error

	// QueryJournal returns a user's journal entries, newest first.
	QueryJournal(ctx context.Context, userID id.UserID, opts QueryOpts) ([]*Entry, error)

	// PurgeJournal deletes entries older than before, returning the count
	// removed.
	PurgeJournal(ctx context.Context, before time.Time) (int64, error)
}

// QueryOpts filters journal queries.
type QueryOpts struct {
	Kind   string // Empty matches all kinds
	Start  time.Time
	End    time.Time
	Limit  int
	Offset int
}
