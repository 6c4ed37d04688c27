// Package mongo implements store.Store on MongoDB. Conditional entitlement
// writes ride on single-document atomicity: the predicate lives in the
// update filter, so a decrement or downgrade either matches and applies or
// touches nothing.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/missionhub/entitle"
	"github.com/missionhub/entitle/entitlement"
	"github.com/missionhub/entitle/id"
	"github.com/missionhub/entitle/journal"
	"github.com/missionhub/entitle/plan"
	entitlestore "github.com/missionhub/entitle/store"
	"github.com/missionhub/entitle/subscription"
)

// Collection name constants.
const (
	colEntitlements  = "entitle_entitlements"
	colSubscriptions = "entitle_subscriptions"
	colJournal       = "entitle_journal"
)

// compile-time interface check
var _ entitlestore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New creates a new MongoDB store.
func New(uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("entitle/mongo: connect: %w", err)
	}
	return &Store{
		client: client,
		db:     client.Database(database),
	}, nil
}

// NewWithDatabase wraps an existing database handle, which the caller keeps
// ownership of.
func NewWithDatabase(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Database returns the underlying database for direct access.
func (s *Store) Database() *mongo.Database { return s.db }

// Migrate creates indexes for all entitle collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: %s indexes: %v", entitle.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close disconnects the client if this store owns it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

// ==================== Entitlement Store ====================

func (s *Store) CreateEntitlement(ctx context.Context, e *entitlement.Entitlement) error {
	_, err := s.db.Collection(colEntitlements).InsertOne(ctx, toEntitlementModel(e))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return entitle.ErrAlreadyExists
		}
		return fmt.Errorf("entitle/mongo: create entitlement: %w", err)
	}
	return nil
}

func (s *Store) GetEntitlement(ctx context.Context, userID id.UserID) (*entitlement.Entitlement, error) {
	var m entitlementModel
	err := s.db.Collection(colEntitlements).
		FindOne(ctx, bson.M{"_id": userID.String()}).
		Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entitle.ErrRecordNotFound
		}
		return nil, fmt.Errorf("entitle/mongo: get entitlement: %w", err)
	}
	return fromEntitlementModel(&m)
}

func (s *Store) SetPlan(ctx context.Context, userID id.UserID, tier plan.Tier, expiresAt *time.Time, credits plan.Credits) error {
	set := bson.M{
		"tier":                string(tier),
		"application_credits": credits.Applications,
		"mission_credits":     credits.Missions,
		"updated_at":          time.Now().UTC(),
	}
	update := bson.M{"$set": set}
	if expiresAt != nil {
		set["expires_at"] = *expiresAt
	} else {
		update["$unset"] = bson.M{"expires_at": ""}
	}

	res, err := s.db.Collection(colEntitlements).
		UpdateOne(ctx, bson.M{"_id": userID.String()}, update)
	if err != nil {
		return fmt.Errorf("entitle/mongo: set plan: %w", err)
	}
	if res.MatchedCount == 0 {
		return entitle.ErrRecordNotFound
	}
	return nil
}

func (s *Store) ExpireLapsed(ctx context.Context, userID id.UserID, now time.Time, defaults plan.Credits) (bool, error) {
	// $lt never matches a missing or null expires_at, so the filter is
	// exactly the lapse predicate.
	res, err := s.db.Collection(colEntitlements).UpdateOne(ctx,
		bson.M{"_id": userID.String(), "expires_at": bson.M{"$lt": now}},
		bson.M{
			"$set": bson.M{
				"tier":                string(plan.TierFree),
				"application_credits": defaults.Applications,
				"mission_credits":     defaults.Missions,
				"updated_at":          now,
			},
			"$unset": bson.M{"expires_at": ""},
		},
	)
	if err != nil {
		return false, fmt.Errorf("entitle/mongo: expire lapsed: %w", err)
	}
	if res.ModifiedCount > 0 {
		return true, nil
	}

	return false, s.entitlementExists(ctx, userID)
}

func (s *Store) ConsumeCredits(ctx context.Context, userID id.UserID, kind entitlement.CreditKind, amount int64) (int64, error) {
	field, err := creditField(kind)
	if err != nil {
		return 0, err
	}

	var m entitlementModel
	err = s.db.Collection(colEntitlements).FindOneAndUpdate(ctx,
		bson.M{"_id": userID.String(), field: bson.M{"$gte": amount}},
		bson.M{
			"$inc": bson.M{field: -amount},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			if err := s.entitlementExists(ctx, userID); err != nil {
				return 0, err
			}
			return 0, entitle.ErrInsufficientCredits
		}
		return 0, fmt.Errorf("entitle/mongo: consume credits: %w", err)
	}

	if kind == entitlement.KindApplication {
		return m.ApplicationCredits, nil
	}
	return m.MissionCredits, nil
}

func (s *Store) ResetCredits(ctx context.Context, userID id.UserID, credits plan.Credits) error {
	res, err := s.db.Collection(colEntitlements).UpdateOne(ctx,
		bson.M{"_id": userID.String()},
		bson.M{"$set": bson.M{
			"application_credits": credits.Applications,
			"mission_credits":     credits.Missions,
			"updated_at":          time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("entitle/mongo: reset credits: %w", err)
	}
	if res.MatchedCount == 0 {
		return entitle.ErrRecordNotFound
	}
	return nil
}

func (s *Store) entitlementExists(ctx context.Context, userID id.UserID) error {
	count, err := s.db.Collection(colEntitlements).
		CountDocuments(ctx, bson.M{"_id": userID.String()}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("entitle/mongo: entitlement exists: %w", err)
	}
	if count == 0 {
		return entitle.ErrRecordNotFound
	}
	return nil
}

func creditField(kind entitlement.CreditKind) (string, error) {
	switch kind {
	case entitlement.KindApplication:
		return "application_credits", nil
	case entitlement.KindMission:
		return "mission_credits", nil
	default:
		return "", entitle.ErrUnknownCreditKind
	}
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.db.Collection(colSubscriptions).InsertOne(ctx, toSubscriptionModel(sub))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return entitle.ErrSubscriptionExists
		}
		return fmt.Errorf("entitle/mongo: create subscription: %w", err)
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.db.Collection(colSubscriptions).
		FindOne(ctx, bson.M{"_id": subID.String()}).
		Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entitle.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("entitle/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) GetSubscriptionByUser(ctx context.Context, userID id.UserID) (*subscription.Subscription, error) {
	var m subscriptionModel

	// The live record if there is one
	err := s.db.Collection(colSubscriptions).
		FindOne(ctx, bson.M{"user_id": userID.String(), "live": true}).
		Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Fall back to the latest cancelled one, kept for audit
		err = s.db.Collection(colSubscriptions).
			FindOne(ctx, bson.M{"user_id": userID.String()},
				options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})).
			Decode(&m)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, entitle.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("entitle/mongo: get subscription by user: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) MarkCancelAtPeriodEnd(ctx context.Context, subID id.SubscriptionID) error {
	res, err := s.db.Collection(colSubscriptions).UpdateOne(ctx,
		bson.M{"_id": subID.String(), "status": bson.M{"$ne": string(subscription.StatusCancelled)}},
		bson.M{"$set": bson.M{
			"cancel_at_period_end": true,
			"updated_at":           time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("entitle/mongo: mark cancel: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return err
	}
	return entitle.ErrAlreadyCancelled
}

func (s *Store) ApplyProviderStatus(ctx context.Context, providerSubID string, status subscription.Status, cancelAtPeriodEnd bool, periodEnd *time.Time) error {
	set := bson.M{
		"status":               string(status),
		"cancel_at_period_end": cancelAtPeriodEnd,
		"live":                 status != subscription.StatusCancelled,
		"updated_at":           time.Now().UTC(),
	}
	if periodEnd != nil {
		set["current_period_end"] = *periodEnd
	}

	res, err := s.db.Collection(colSubscriptions).UpdateOne(ctx,
		bson.M{
			"provider_subscription_id": providerSubID,
			"status":                   bson.M{"$ne": string(subscription.StatusCancelled)},
		},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("entitle/mongo: apply provider status: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Cancelled is terminal: a replayed event against a cancelled record is
	// a no-op, an unknown provider id is an error.
	count, err := s.db.Collection(colSubscriptions).
		CountDocuments(ctx, bson.M{"provider_subscription_id": providerSubID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("entitle/mongo: apply provider status: %w", err)
	}
	if count == 0 {
		return entitle.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Journal Store ====================

func (s *Store) AppendJournal(ctx context.Context, entries []*journal.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]any, len(entries))
	for i, e := range entries {
		docs[i] = toJournalEntryModel(e)
	}

	_, err := s.db.Collection(colJournal).
		InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("entitle/mongo: append journal: %w", err)
	}
	return nil
}

func (s *Store) QueryJournal(ctx context.Context, userID id.UserID, opts journal.QueryOpts) ([]*journal.Entry, error) {
	filter := bson.M{"user_id": userID.String()}
	if opts.Kind != "" {
		filter["kind"] = opts.Kind
	}
	ts := bson.M{}
	if !opts.Start.IsZero() {
		ts["$gte"] = opts.Start
	}
	if !opts.End.IsZero() {
		ts["$lt"] = opts.End
	}
	if len(ts) > 0 {
		filter["ts"] = ts
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "ts", Value: -1}})
	if opts.Limit > 0 {
		findOpts = findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts = findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colJournal).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("entitle/mongo: query journal: %w", err)
	}
	defer cursor.Close(ctx)

	result := make([]*journal.Entry, 0)
	for cursor.Next(ctx) {
		var m journalEntryModel
		if err := cursor.Decode(&m); err != nil {
			return nil, err
		}
		entry, err := fromJournalEntryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, cursor.Err()
}

func (s *Store) PurgeJournal(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(colJournal).
		DeleteMany(ctx, bson.M{"ts": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("entitle/mongo: purge journal: %w", err)
	}
	return res.DeletedCount, nil
}

// ==================== Helpers ====================

// migrationIndexes returns the index definitions for all entitle collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{
				// One live subscription per user
				Keys: bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"live": true}),
			},
			{Keys: bson.D{{Key: "provider_subscription_id", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colJournal: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "ts", Value: -1}}},
			{Keys: bson.D{{Key: "ts", Value: -1}}},
		},
	}
}
