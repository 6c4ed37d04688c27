package sqlite

// Migrations are applied in order by Migrate. Each statement is idempotent
// so re-running a deploy is safe.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS entitle_entitlements (
	user_id             TEXT PRIMARY KEY,
	tier                TEXT NOT NULL,
	expires_at          TIMESTAMP,
	application_credits INTEGER NOT NULL DEFAULT 0 CHECK (application_credits >= 0),
	mission_credits     INTEGER NOT NULL DEFAULT 0 CHECK (mission_credits >= 0),
	created_at          TIMESTAMP NOT NULL,
	updated_at          TIMESTAMP NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS entitle_subscriptions (
	id                       TEXT PRIMARY KEY,
	user_id                  TEXT NOT NULL,
	provider_subscription_id TEXT,
	status                   TEXT NOT NULL,
	cancel_at_period_end     INTEGER NOT NULL DEFAULT 0,
	current_period_end       TIMESTAMP,
	created_at               TIMESTAMP NOT NULL,
	updated_at               TIMESTAMP NOT NULL
)`,
	// One live subscription per user; cancelled records stay for audit.
	`
CREATE UNIQUE INDEX IF NOT EXISTS entitle_subscriptions_live_user
	ON entitle_subscriptions (user_id)
	WHERE status <> 'cancelled'`,
	`
CREATE INDEX IF NOT EXISTS entitle_subscriptions_provider
	ON entitle_subscriptions (provider_subscription_id)`,
	`
CREATE TABLE IF NOT EXISTS entitle_journal (
	id        TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL,
	kind      TEXT NOT NULL,
	amount    INTEGER NOT NULL,
	remaining INTEGER NOT NULL,
	ts        TIMESTAMP NOT NULL
)`,
	`
CREATE INDEX IF NOT EXISTS entitle_journal_user_ts
	ON entitle_journal (user_id, ts DESC)`,
}
