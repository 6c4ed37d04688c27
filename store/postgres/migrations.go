package postgres

// Migrations are applied in order by Migrate. Each statement is idempotent
// so re-running a deploy is safe.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS entitle_entitlements (
	user_id             TEXT PRIMARY KEY,
	tier                TEXT NOT NULL,
	expires_at          TIMESTAMPTZ,
	application_credits BIGINT NOT NULL DEFAULT 0 CHECK (application_credits >= 0),
	mission_credits     BIGINT NOT NULL DEFAULT 0 CHECK (mission_credits >= 0),
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
)`,
	`
CREATE TABLE IF NOT EXISTS entitle_subscriptions (
	id                       TEXT PRIMARY KEY,
	user_id                  TEXT NOT NULL,
	provider_subscription_id TEXT,
	status                   TEXT NOT NULL,
	cancel_at_period_end     BOOLEAN NOT NULL DEFAULT FALSE,
	current_period_end       TIMESTAMPTZ,
	created_at               TIMESTAMPTZ NOT NULL,
	updated_at               TIMESTAMPTZ NOT NULL
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
	amount    BIGINT NOT NULL,
	remaining BIGINT NOT NULL,
	ts        TIMESTAMPTZ NOT NULL
)`,
	`
CREATE INDEX IF NOT EXISTS entitle_journal_user_ts
	ON entitle_journal (user_id, ts DESC)`,
}
