// Package postgres implements store.Store on PostgreSQL via pgx. All
// conditional entitlement writes are single UPDATE statements whose WHERE
// clause carries the predicate, so atomicity comes from the database and
// multiple engine instances can share one schema.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/missionhub/entitle"
	"github.com/missionhub/entitle/entitlement"
	"github.com/missionhub/entitle/id"
	"github.com/missionhub/entitle/journal"
	"github.com/missionhub/entitle/plan"
	entitlestore "github.com/missionhub/entitle/store"
	"github.com/missionhub/entitle/subscription"
)

// compile-time interface check
var _ entitlestore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store from a connection string.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("entitle/postgres: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool, which the caller keeps ownership of.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool returns the underlying connection pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", entitle.ErrMigrationFailed, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Entitlement Store ====================

func (s *Store) CreateEntitlement(ctx context.Context, e *entitlement.Entitlement) error {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO entitle_entitlements
			(user_id, tier, expires_at, application_credits, mission_credits, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING`,
		e.UserID.String(), string(e.Tier), e.ExpiresAt,
		e.ApplicationCredits, e.MissionCredits, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return entitle.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetEntitlement(ctx context.Context, userID id.UserID) (*entitlement.Entitlement, error) {
	var (
		e       entitlement.Entitlement
		rawUser string
		rawTier string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, tier, expires_at, application_credits, mission_credits, created_at, updated_at
		FROM entitle_entitlements
		WHERE user_id = $1`,
		userID.String(),
	).Scan(&rawUser, &rawTier, &e.ExpiresAt, &e.ApplicationCredits, &e.MissionCredits, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entitle.ErrRecordNotFound
		}
		return nil, err
	}

	e.UserID, err = id.ParseUserID(rawUser)
	if err != nil {
		return nil, err
	}
	e.Tier = plan.Tier(rawTier)
	return &e, nil
}

func (s *Store) SetPlan(ctx context.Context, userID id.UserID, tier plan.Tier, expiresAt *time.Time, credits plan.Credits) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE entitle_entitlements
		SET tier = $2, expires_at = $3, application_credits = $4, mission_credits = $5, updated_at = now()
		WHERE user_id = $1`,
		userID.String(), string(tier), expiresAt, credits.Applications, credits.Missions,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return entitle.ErrRecordNotFound
	}
	return nil
}

func (s *Store) ExpireLapsed(ctx context.Context, userID id.UserID, now time.Time, defaults plan.Credits) (bool, error) {
	// Predicate and write in one statement: of N racing reconciles exactly
	// one sees rows affected.
	ct, err := s.pool.Exec(ctx, `
		UPDATE entitle_entitlements
		SET tier = $2, expires_at = NULL, application_credits = $3, mission_credits = $4, updated_at = $5
		WHERE user_id = $1 AND expires_at IS NOT NULL AND expires_at < $5`,
		userID.String(), string(plan.TierFree), defaults.Applications, defaults.Missions, now,
	)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() > 0 {
		return true, nil
	}

	return false, s.entitlementExists(ctx, userID)
}

func (s *Store) ConsumeCredits(ctx context.Context, userID id.UserID, kind entitlement.CreditKind, amount int64) (int64, error) {
	col, err := creditColumn(kind)
	if err != nil {
		return 0, err
	}

	var remaining int64
	err = s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE entitle_entitlements
		SET %[1]s = %[1]s - $2, updated_at = now()
		WHERE user_id = $1 AND %[1]s >= $2
		RETURNING %[1]s`, col),
		userID.String(), amount,
	).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}

	// No row updated: either the user is unknown or the balance is short.
	if err := s.entitlementExists(ctx, userID); err != nil {
		return 0, err
	}
	return 0, entitle.ErrInsufficientCredits
}

func (s *Store) ResetCredits(ctx context.Context, userID id.UserID, credits plan.Credits) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE entitle_entitlements
		SET application_credits = $2, mission_credits = $3, updated_at = now()
		WHERE user_id = $1`,
		userID.String(), credits.Applications, credits.Missions,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return entitle.ErrRecordNotFound
	}
	return nil
}

func (s *Store) entitlementExists(ctx context.Context, userID id.UserID) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entitle_entitlements WHERE user_id = $1)`,
		userID.String(),
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return entitle.ErrRecordNotFound
	}
	return nil
}

func creditColumn(kind entitlement.CreditKind) (string, error) {
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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO entitle_subscriptions
			(id, user_id, provider_subscription_id, status, cancel_at_period_end, current_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sub.ID.String(), sub.UserID.String(), sub.ProviderSubscriptionID,
		string(sub.Status), sub.CancelAtPeriodEnd, sub.CurrentPeriodEnd,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return entitle.ErrSubscriptionExists
		}
		return err
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return s.scanSubscription(ctx, `
		SELECT id, user_id, provider_subscription_id, status, cancel_at_period_end, current_period_end, created_at, updated_at
		FROM entitle_subscriptions
		WHERE id = $1`,
		subID.String())
}

func (s *Store) GetSubscriptionByUser(ctx context.Context, userID id.UserID) (*subscription.Subscription, error) {
	// The live record if there is one, otherwise the latest cancelled one.
	return s.scanSubscription(ctx, `
		SELECT id, user_id, provider_subscription_id, status, cancel_at_period_end, current_period_end, created_at, updated_at
		FROM entitle_subscriptions
		WHERE user_id = $1
		ORDER BY (status <> 'cancelled') DESC, created_at DESC
		LIMIT 1`,
		userID.String())
}

func (s *Store) scanSubscription(ctx context.Context, query string, arg any) (*subscription.Subscription, error) {
	var (
		sub     subscription.Subscription
		rawID   string
		rawUser string
		rawStat string
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&rawID, &rawUser, &sub.ProviderSubscriptionID, &rawStat,
		&sub.CancelAtPeriodEnd, &sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entitle.ErrSubscriptionNotFound
		}
		return nil, err
	}

	if sub.ID, err = id.ParseSubscriptionID(rawID); err != nil {
		return nil, err
	}
	if sub.UserID, err = id.ParseUserID(rawUser); err != nil {
		return nil, err
	}
	sub.Status = subscription.Status(rawStat)
	return &sub, nil
}

func (s *Store) MarkCancelAtPeriodEnd(ctx context.Context, subID id.SubscriptionID) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE entitle_subscriptions
		SET cancel_at_period_end = TRUE, updated_at = now()
		WHERE id = $1 AND status <> 'cancelled'`,
		subID.String(),
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return err
	}
	return entitle.ErrAlreadyCancelled
}

func (s *Store) ApplyProviderStatus(ctx context.Context, providerSubID string, status subscription.Status, cancelAtPeriodEnd bool, periodEnd *time.Time) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE entitle_subscriptions
		SET status = $2, cancel_at_period_end = $3,
			current_period_end = COALESCE($4, current_period_end),
			updated_at = now()
		WHERE provider_subscription_id = $1 AND status <> 'cancelled'`,
		providerSubID, string(status), cancelAtPeriodEnd, periodEnd,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	// Cancelled is terminal: a replayed event against a cancelled record is
	// a no-op, an unknown provider id is an error.
	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entitle_subscriptions WHERE provider_subscription_id = $1)`,
		providerSubID,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return entitle.ErrSubscriptionNotFound
	}
	return nil
}

// ==================== Journal Store ====================

func (s *Store) AppendJournal(ctx context.Context, entries []*journal.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO entitle_journal (id, user_id, kind, amount, remaining, ts)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			e.ID.String(), e.UserID.String(), string(e.Kind), e.Amount, e.Remaining, e.Timestamp,
		)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *Store) QueryJournal(ctx context.Context, userID id.UserID, opts journal.QueryOpts) ([]*journal.Entry, error) {
	query := `
		SELECT id, user_id, kind, amount, remaining, ts
		FROM entitle_journal
		WHERE user_id = $1`
	args := []any{userID.String()}

	if opts.Kind != "" {
		args = append(args, opts.Kind)
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if !opts.Start.IsZero() {
		args = append(args, opts.Start)
		query += fmt.Sprintf(" AND ts >= $%d", len(args))
	}
	if !opts.End.IsZero() {
		args = append(args, opts.End)
		query += fmt.Sprintf(" AND ts < $%d", len(args))
	}
	query += " ORDER BY ts DESC"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]*journal.Entry, 0)
	for rows.Next() {
		var (
			e       journal.Entry
			rawID   string
			rawUser string
			rawKind string
		)
		if err := rows.Scan(&rawID, &rawUser, &rawKind, &e.Amount, &e.Remaining, &e.Timestamp); err != nil {
			return nil, err
		}
		if e.ID, err = id.ParseJournalEntryID(rawID); err != nil {
			return nil, err
		}
		if e.UserID, err = id.ParseUserID(rawUser); err != nil {
			return nil, err
		}
		e.Kind = entitlement.CreditKind(rawKind)
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (s *Store) PurgeJournal(ctx context.Context, before time.Time) (int64, error) {
	ct, err := s.pool.Exec(ctx, `DELETE FROM entitle_journal WHERE ts < $1`, before)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// ==================== Helpers ====================

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
