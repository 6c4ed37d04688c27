// Package entitle provides the entitlement and credit core for a
// mission-based marketplace: plan tiers, credit balances, subscription
// cancellation against an external billing provider, and canonical pub/sub
// channel addressing.
//
// Entitle is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - Per-user plan tiers (free, starter, pro) with lazy read-time expiry
//   - Atomic credit consumption that can never overspend under concurrency
//   - A subscription bridge that never commits local state before the
//     billing provider acknowledges (Stripe built-in)
//   - A batched consumption journal for audit and analytics
//   - Canonical, deterministic channel names for mission and direct chat
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/missionhub/entitle"
//	    "github.com/missionhub/entitle/store/postgres"
//	)
//
//	// Initialize store
//	store, err := postgres.New(ctx, databaseURL)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Create engine
//	eng := entitle.New(store,
//	    entitle.WithProvider(stripeprovider.New(apiKey)),
//	)
//
//	// Start the engine (begins background workers)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Every user has one entitlement record: a tier, an optional expiry, and
// two credit balances. Reads reconcile expiry lazily:
//
//	view, err := eng.GetPlan(ctx, userID)
//	if view.Expired {
//	    // This read just downgraded a lapsed plan to free
//	}
//
// Credits are spent with a single atomic conditional decrement:
//
//	remaining, err := eng.TryConsume(ctx, userID, entitlement.KindApplication, 1)
//	if errors.Is(err, entitle.ErrInsufficientCredits) {
//	    // Denied; nothing was written
//	}
//
// Cancellation talks to the provider first and only then records the
// intent locally:
//
//	err := eng.CancelSubscription(ctx, userID)
//
// Channel names are pure functions, computable by any party without
// coordination:
//
//	channel.Mission(missionID)      // "mission:msn_..."
//	channel.Direct(userA, userB)    // order-independent
//
// # Concurrency
//
// All entitlement mutations are conditional writes executed inside the
// store backend, so N concurrent consumers of a balance holding N credits
// succeed exactly N times regardless of interleaving, and racing expiry
// reconciles converge on the same free-tier state.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	user_01h2xcejqtf2nbrexx3vqjhp41  // User ID
//	msn_01h2xcejqtf2nbrexx3vqjhp41   // Mission ID
//	sub_01h455vb4pex5vsknk084sn02q   // Subscription ID
//
// TypeIDs are K-sortable and their canonical strings contain no ":", which
// makes them safe inside channel names.
package entitle
