package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/missionhub/entitle"
	"github.com/missionhub/entitle/entitlement"
	"github.com/missionhub/entitle/id"
	"github.com/missionhub/entitle/journal"
	"github.com/missionhub/entitle/plan"
	"github.com/missionhub/entitle/store/memory"
	"github.com/missionhub/entitle/subscription"
	"github.com/missionhub/entitle/types"
)

func newUserWithCredits(t *testing.T, s *memory.Store, apps, missions int64) id.UserID {
	t.Helper()
	userID := id.NewUserID()
	ent := entitlement.New(userID)
	ent.ApplicationCredits = apps
	ent.MissionCredits = missions
	if err := s.CreateEntitlement(context.Background(), ent); err != nil {
		t.Fatalf("CreateEntitlement: %v", err)
	}
	return userID
}

func TestCreateEntitlementDuplicate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	ent := entitlement.New(id.NewUserID())
	if err := s.CreateEntitlement(ctx, ent); err != nil {
		t.Fatalf("CreateEntitlement: %v", err)
	}
	if err := s.CreateEntitlement(ctx, ent); !errors.Is(err, entitle.ErrAlreadyExists) {
		t.Fatalf("duplicate create error = %v, want ErrAlreadyExists", err)
	}
}

func TestGetEntitlementNotFound(t *testing.T) {
	s := memory.New()

	_, err := s.GetEntitlement(context.Background(), id.NewUserID())
	if !errors.Is(err, entitle.ErrRecordNotFound) {
		t.Fatalf("err = %v, want ErrRecordNotFound", err)
	}
}

func TestConsumeCredits(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	userID := newUserWithCredits(t, s, 3, 1)

	remaining, err := s.ConsumeCredits(ctx, userID, entitlement.KindApplication, 2)
	if err != nil {
		t.Fatalf("ConsumeCredits: %v", err)
	}
	if remaining != 1 {
		t.Errorf("remaining = %d, want 1", remaining)
	}

	// Insufficient balance writes nothing
	if _, err := s.ConsumeCredits(ctx, userID, entitlement.KindApplication, 2); !errors.Is(err, entitle.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	ent, err := s.GetEntitlement(ctx, userID)
	if err != nil {
		t.Fatalf("GetEntitlement: %v", err)
	}
	if ent.ApplicationCredits != 1 {
		t.Errorf("balance after denial = %d, want 1", ent.ApplicationCredits)
	}

	// The other kind is untouched
	if ent.MissionCredits != 1 {
		t.Errorf("mission balance = %d, want 1", ent.MissionCredits)
	}
}

func TestConsumeCreditsConcurrent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	const credits = 10
	const attempts = 50
	userID := newUserWithCredits(t, s, credits, 0)

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeCredits(ctx, userID, entitlement.KindApplication, 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var granted, denied int
	for err := range results {
		switch {
		case err == nil:
			granted++
		case errors.Is(err, entitle.ErrInsufficientCredits):
			denied++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if granted != credits {
		t.Errorf("granted = %d, want exactly %d", granted, credits)
	}
	if denied != attempts-credits {
		t.Errorf("denied = %d, want %d", denied, attempts-credits)
	}

	ent, err := s.GetEntitlement(ctx, userID)
	if err != nil {
		t.Fatalf("GetEntitlement: %v", err)
	}
	if ent.ApplicationCredits != 0 {
		t.Errorf("final balance = %d, want 0", ent.ApplicationCredits)
	}
}

func TestExpireLapsed(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	userID := newUserWithCredits(t, s, 50, 10)

	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	if err := s.SetPlan(ctx, userID, plan.TierPro, &yesterday, plan.Defaults(plan.TierPro)); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}

	now := time.Now().UTC()
	free := plan.Defaults(plan.TierFree)

	fired, err := s.ExpireLapsed(ctx, userID, now, free)
	if err != nil {
		t.Fatalf("ExpireLapsed: %v", err)
	}
	if !fired {
		t.Fatal("expected expiry to fire on lapsed plan")
	}

	ent, err := s.GetEntitlement(ctx, userID)
	if err != nil {
		t.Fatalf("GetEntitlement: %v", err)
	}
	if ent.Tier != plan.TierFree {
		t.Errorf("tier = %q, want free", ent.Tier)
	}
	if ent.ExpiresAt != nil {
		t.Errorf("expiry = %v, want nil", ent.ExpiresAt)
	}
	if ent.ApplicationCredits != free.Applications || ent.MissionCredits != free.Missions {
		t.Errorf("credits = %d/%d, want %d/%d",
			ent.ApplicationCredits, ent.MissionCredits, free.Applications, free.Missions)
	}

	// Second run is a no-op
	fired, err = s.ExpireLapsed(ctx, userID, now, free)
	if err != nil {
		t.Fatalf("ExpireLapsed: %v", err)
	}
	if fired {
		t.Error("expiry fired twice")
	}
}

func TestExpireLapsedCurrentPlan(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	userID := newUserWithCredits(t, s, 3, 1)

	tomorrow := time.Now().UTC().Add(24 * time.Hour)
	if err := s.SetPlan(ctx, userID, plan.TierStarter, &tomorrow, plan.Defaults(plan.TierStarter)); err != nil {
		t.Fatalf("SetPlan: %v", err)
	}

	fired, err := s.ExpireLapsed(ctx, userID, time.Now().UTC(), plan.Defaults(plan.TierFree))
	if err != nil {
		t.Fatalf("ExpireLapsed: %v", err)
	}
	if fired {
		t.Error("expiry fired on a current plan")
	}

	ent, _ := s.GetEntitlement(ctx, userID)
	if ent.Tier != plan.TierStarter {
		t.Errorf("tier = %q, want starter", ent.Tier)
	}
}

func TestResetCreditsIdempotent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	userID := newUserWithCredits(t, s, 0, 0)

	grant := plan.Defaults(plan.TierStarter)
	for i := 0; i < 3; i++ {
		if err := s.ResetCredits(ctx, userID, grant); err != nil {
			t.Fatalf("ResetCredits: %v", err)
		}
	}

	ent, _ := s.GetEntitlement(ctx, userID)
	if ent.ApplicationCredits != grant.Applications || ent.MissionCredits != grant.Missions {
		t.Errorf("credits = %d/%d, want %d/%d",
			ent.ApplicationCredits, ent.MissionCredits, grant.Applications, grant.Missions)
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	userID := id.NewUserID()

	sub := &subscription.Subscription{
		Entity:                 types.NewEntity(),
		ID:                     id.NewSubscriptionID(),
		UserID:                 userID,
		ProviderSubscriptionID: "sub_ext_123",
		Status:                 subscription.StatusActive,
	}
	if err := s.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	// One live subscription per user
	dup := &subscription.Subscription{
		Entity: types.NewEntity(),
		ID:     id.NewSubscriptionID(),
		UserID: userID,
		Status: subscription.StatusActive,
	}
	if err := s.CreateSubscription(ctx, dup); !errors.Is(err, entitle.ErrSubscriptionExists) {
		t.Fatalf("duplicate user create error = %v, want ErrSubscriptionExists", err)
	}

	got, err := s.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		t.Fatalf("GetSubscriptionByUser: %v", err)
	}
	if got.ID != sub.ID {
		t.Errorf("got subscription %s, want %s", got.ID, sub.ID)
	}

	if err := s.MarkCancelAtPeriodEnd(ctx, sub.ID); err != nil {
		t.Fatalf("MarkCancelAtPeriodEnd: %v", err)
	}
	got, _ = s.GetSubscription(ctx, sub.ID)
	if !got.CancelAtPeriodEnd {
		t.Error("cancel flag not set")
	}
	if got.Status != subscription.StatusActive {
		t.Errorf("status = %q, want active until provider confirms", got.Status)
	}
}

func TestApplyProviderStatusTerminal(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	sub := &subscription.Subscription{
		Entity:                 types.NewEntity(),
		ID:                     id.NewSubscriptionID(),
		UserID:                 id.NewUserID(),
		ProviderSubscriptionID: "sub_ext_456",
		Status:                 subscription.StatusActive,
	}
	if err := s.CreateSubscription(ctx, sub); err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	if err := s.ApplyProviderStatus(ctx, "sub_ext_456", subscription.StatusCancelled, true, nil); err != nil {
		t.Fatalf("ApplyProviderStatus: %v", err)
	}
	got, _ := s.GetSubscription(ctx, sub.ID)
	if got.Status != subscription.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", got.Status)
	}

	// A replayed event against a cancelled record is a no-op
	if err := s.ApplyProviderStatus(ctx, "sub_ext_456", subscription.StatusActive, false, nil); err != nil {
		t.Fatalf("replayed ApplyProviderStatus: %v", err)
	}
	got, _ = s.GetSubscription(ctx, sub.ID)
	if got.Status != subscription.StatusCancelled {
		t.Errorf("status = %q, cancelled must be terminal", got.Status)
	}

	if err := s.ApplyProviderStatus(ctx, "sub_unknown", subscription.StatusActive, false, nil); !errors.Is(err, entitle.ErrSubscriptionNotFound) {
		t.Fatalf("unknown provider id error = %v, want ErrSubscriptionNotFound", err)
	}
}

func TestJournalQueryAndPurge(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	userID := id.NewUserID()

	base := time.Now().UTC().Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		err := s.AppendJournal(ctx, []*journal.Entry{{
			ID:        id.NewJournalEntryID(),
			UserID:    userID,
			Kind:      entitlement.KindApplication,
			Amount:    1,
			Remaining: int64(2 - i),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}})
		if err != nil {
			t.Fatalf("AppendJournal: %v", err)
		}
	}

	entries, err := s.QueryJournal(ctx, userID, journal.QueryOpts{})
	if err != nil {
		t.Fatalf("QueryJournal: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	// Newest first
	if entries[0].Remaining != 0 {
		t.Errorf("entries[0].Remaining = %d, want 0", entries[0].Remaining)
	}

	entries, err = s.QueryJournal(ctx, userID, journal.QueryOpts{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("QueryJournal paged: %v", err)
	}
	if len(entries) != 1 || entries[0].Remaining != 1 {
		t.Errorf("paged query = %+v, want the middle entry", entries)
	}

	purged, err := s.PurgeJournal(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("PurgeJournal: %v", err)
	}
	if purged != 2 {
		t.Errorf("purged = %d, want 2", purged)
	}
}
