// Package sqlite implements store.Store on SQLite via database/sql and
// mattn/go-sqlite3. Suited to single-process deployments and integration
// tests; the conditional-write statements mirror the postgres backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

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

// Store implements store.Store using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store. Use ":memory:" for an ephemeral database.
func New(path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		// Serialize writers instead of surfacing SQLITE_BUSY.
		dsn += "?_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("entitle/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// DB returns the underlying database handle for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate creates the required tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", entitle.ErrMigrationFailed, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Entitlement Store ====================

func (s *Store) CreateEntitlement(ctx context.Context, e *entitlement.Entitlement) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO entitle_entitlements
			(user_id, tier, expires_at, application_credits, mission_credits, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.UserID.String(), string(e.Tier), nullTime(e.ExpiresAt),
		e.ApplicationCredits, e.MissionCredits, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entitle.ErrAlreadyExists
	}
	return nil
}

func (s *Store) GetEntitlement(ctx context.Context, userID id.UserID) (*entitlement.Entitlement, error) {
	var (
		e       entitlement.Entitlement
		rawUser string
		rawTier string
		expires sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, tier, expires_at, application_credits, mission_credits, created_at, updated_at
		FROM entitle_entitlements
		WHERE user_id = ?`,
		userID.String(),
	).Scan(&rawUser, &rawTier, &expires, &e.ApplicationCredits, &e.MissionCredits, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entitle.ErrRecordNotFound
		}
		return nil, err
	}

	e.UserID, err = id.ParseUserID(rawUser)
	if err != nil {
		return nil, err
	}
	e.Tier = plan.Tier(rawTier)
	if expires.Valid {
		t := expires.Time
		e.ExpiresAt = &t
	}
	return &e, nil
}

func (s *Store) SetPlan(ctx context.Context, userID id.UserID, tier plan.Tier, expiresAt *time.Time, credits plan.Credits) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entitle_entitlements
		SET tier = ?, expires_at = ?, application_credits = ?, mission_credits = ?, updated_at = ?
		WHERE user_id = ?`,
		string(tier), nullTime(expiresAt), credits.Applications, credits.Missions,
		time.Now().UTC(), userID.String(),
	)
	if err != nil {
		return err
	}
	return requireRow(res, entitle.ErrRecordNotFound)
}

func (s *Store) ExpireLapsed(ctx context.Context, userID id.UserID, now time.Time, defaults plan.Credits) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entitle_entitlements
		SET tier = ?, expires_at = NULL, application_credits = ?, mission_credits = ?, updated_at = ?
		WHERE user_id = ? AND expires_at IS NOT NULL AND expires_at < ?`,
		string(plan.TierFree), defaults.Applications, defaults.Missions, now,
		userID.String(), now,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	return false, s.entitlementExists(ctx, userID)
}

func (s *Store) ConsumeCredits(ctx context.Context, userID id.UserID, kind entitlement.CreditKind, amount int64) (int64, error) {
	col, err := creditColumn(kind)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", entitle.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE entitle_entitlements
		SET %[1]s = %[1]s - ?, updated_at = ?
		WHERE user_id = ? AND %[1]s >= ?`, col),
		amount, time.Now().UTC(), userID.String(), amount,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM entitle_entitlements WHERE user_id = ?)`,
			userID.String(),
		).Scan(&exists)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, entitle.ErrRecordNotFound
		}
		return 0, entitle.ErrInsufficientCredits
	}

	var remaining int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT %s FROM entitle_entitlements WHERE user_id = ?`, col),
		userID.String(),
	).Scan(&remaining)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", entitle.ErrTransactionFailed, err)
	}
	return remaining, nil
}

func (s *Store) ResetCredits(ctx context.Context, userID id.UserID, credits plan.Credits) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entitle_entitlements
		SET application_credits = ?, mission_credits = ?, updated_at = ?
		WHERE user_id = ?`,
		credits.Applications, credits.Missions, time.Now().UTC(), userID.String(),
	)
	if err != nil {
		return err
	}
	return requireRow(res, entitle.ErrRecordNotFound)
}

func (s *Store) entitlementExists(ctx context.Context, userID id.UserID) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM entitle_entitlements WHERE user_id = ?)`,
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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entitle_subscriptions
			(id, user_id, provider_subscription_id, status, cancel_at_period_end, current_period_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID.String(), sub.UserID.String(), sub.ProviderSubscriptionID,
		string(sub.Status), sub.CancelAtPeriodEnd, nullTime(sub.CurrentPeriodEnd),
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
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
		WHERE id = ?`,
		subID.String())
}

func (s *Store) GetSubscriptionByUser(ctx context.Context, userID id.UserID) (*subscription.Subscription, error) {
	return s.scanSubscription(ctx, `
		SELECT id, user_id, provider_subscription_id, status, cancel_at_period_end, current_period_end, created_at, updated_at
		FROM entitle_subscriptions
		WHERE user_id = ?
		ORDER BY (status <> 'cancelled') DESC, created_at DESC
		LIMIT 1`,
		userID.String())
}

func (s *Store) scanSubscription(ctx context.Context, query string, arg any) (*subscription.Subscription, error) {
	var (
		sub       subscription.Subscription
		rawID     string
		rawUser   string
		rawStat   string
		periodEnd sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&rawID, &rawUser, &sub.ProviderSubscriptionID, &rawStat,
		&sub.CancelAtPeriodEnd, &periodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	if periodEnd.Valid {
		t := periodEnd.Time
		sub.CurrentPeriodEnd = &t
	}
	return &sub, nil
}

func (s *Store) MarkCancelAtPeriodEnd(ctx context.Context, subID id.SubscriptionID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entitle_subscriptions
		SET cancel_at_period_end = 1, updated_at = ?
		WHERE id = ? AND status <> 'cancelled'`,
		time.Now().UTC(), subID.String(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if _, err := s.GetSubscription(ctx, subID); err != nil {
		return err
	}
	return entitle.ErrAlreadyCancelled
}

func (s *Store) ApplyProviderStatus(ctx context.Context, providerSubID string, status subscription.Status, cancelAtPeriodEnd bool, periodEnd *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entitle_subscriptions
		SET status = ?, cancel_at_period_end = ?,
			current_period_end = COALESCE(?, current_period_end),
			updated_at = ?
		WHERE provider_subscription_id = ? AND status <> 'cancelled'`,
		string(status), cancelAtPeriodEnd, nullTime(periodEnd), time.Now().UTC(), providerSubID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM entitle_subscriptions WHERE provider_subscription_id = ?)`,
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", entitle.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO entitle_journal (id, user_id, kind, amount, remaining, ts)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.ID.String(), e.UserID.String(), string(e.Kind), e.Amount, e.Remaining, e.Timestamp,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) QueryJournal(ctx context.Context, userID id.UserID, opts journal.QueryOpts) ([]*journal.Entry, error) {
	query := `
		SELECT id, user_id, kind, amount, remaining, ts
		FROM entitle_journal
		WHERE user_id = ?`
	args := []any{userID.String()}

	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, opts.Kind)
	}
	if !opts.Start.IsZero() {
		query += " AND ts >= ?"
		args = append(args, opts.Start)
	}
	if !opts.End.IsZero() {
		query += " AND ts < ?"
		args = append(args, opts.End)
	}
	query += " ORDER BY ts DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		// SQLite requires a LIMIT clause before OFFSET; -1 means unbounded.
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM entitle_journal WHERE ts < ?`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ==================== Helpers ====================

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
