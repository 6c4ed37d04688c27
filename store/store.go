package store

import (
	"context"

	"github.com/missionhub/entitle/entitlement"
	"github.com/missionhub/entitle/journal"
	"github.com/missionhub/entitle/subscription"
)

// Store is the unified storage interface for all entitle entities,
// composed from the per-domain contracts plus backend lifecycle.
//
// Every mutation of entitlement and subscription state is a conditional
// write ("update iff predicate holds") executed inside the backend, so the
// engine can be deployed multi-process without in-process locks.
type Store interface {
	entitlement.Store
	subscription.Store
	journal.Store

	// Migrate applies the backend's schema, creating tables and indexes as
	// needed. Idempotent.
	Migrate(ctx context.Context) error

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
