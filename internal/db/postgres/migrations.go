package postgres

// SQL-миграции встроены в код для упрощения деплоя.
var migrations = []struct {
	version int
	sql     string
}{
	{1, migration001Wallets},
	{2, migration002Plans},
	{3, migration003Redemption},
	{4, migration004Referrals},
	{5, migration005Members},
}

var migration001Wallets = `
CREATE TABLE IF NOT EXISTS wallets (
    user_id BIGINT PRIMARY KEY,
    package_tokens_remaining BIGINT NOT NULL DEFAULT 0 CHECK (package_tokens_remaining >= 0),
    independent_tokens BIGINT NOT NULL DEFAULT 0 CHECK (independent_tokens >= 0),
    daily_usage_count INTEGER NOT NULL DEFAULT 0,
    daily_usage_reset_at TIMESTAMPTZ NOT NULL,
    manual_reset_count INTEGER NOT NULL DEFAULT 0,
    manual_reset_at TIMESTAMPTZ NOT NULL,
    last_recovery_at TIMESTAMPTZ NOT NULL,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS ledger_entries (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES wallets(user_id),
    type VARCHAR(16) NOT NULL CHECK (type IN ('income', 'expense')),
    bucket VARCHAR(16) NOT NULL CHECK (bucket IN ('package', 'independent', 'mixed')),
    amount BIGINT NOT NULL CHECK (amount >= 0),
    package_before BIGINT NOT NULL,
    package_after BIGINT NOT NULL,
    independent_before BIGINT NOT NULL,
    independent_after BIGINT NOT NULL,
    reason VARCHAR(32) NOT NULL,
    metadata JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_user ON ledger_entries(user_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_invitee ON ledger_entries(reason, (metadata->>'invitee_id'));
`

var migration002Plans = `
CREATE TABLE IF NOT EXISTS plans (
    code VARCHAR(32) PRIMARY KEY,
    title VARCHAR(64) NOT NULL,
    tier INTEGER NOT NULL,
    credit_cap BIGINT NOT NULL CHECK (credit_cap >= 0),
    recovery_rate BIGINT NOT NULL CHECK (recovery_rate >= 0),
    daily_usage_limit INTEGER NOT NULL,
    manual_reset_per_day INTEGER NOT NULL,
    price_minor BIGINT NOT NULL DEFAULT 0
);
INSERT INTO plans (code, title, tier, credit_cap, recovery_rate, daily_usage_limit, manual_reset_per_day, price_minor) VALUES
    ('basic', 'Базовый', 1, 100, 10, 200, 1, 29900),
    ('pro', 'Про', 2, 500, 50, 1000, 3, 99900),
    ('ultra', 'Ультра', 3, 2000, 200, 5000, 5, 299900)
ON CONFLICT (code) DO NOTHING;
CREATE TABLE IF NOT EXISTS subscriptions (
    user_id BIGINT PRIMARY KEY,
    plan_code VARCHAR(32) NOT NULL REFERENCES plans(code),
    status VARCHAR(16) NOT NULL,
    started_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    source VARCHAR(32) NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS payments (
    order_no VARCHAR(128) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    amount_minor BIGINT NOT NULL,
    plan_code VARCHAR(32) NOT NULL DEFAULT '',
    processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

var migration003Redemption = `
CREATE TABLE IF NOT EXISTS redemption_codes (
    code VARCHAR(64) PRIMARY KEY,
    batch_id VARCHAR(64) NOT NULL,
    code_type VARCHAR(16) NOT NULL CHECK (code_type IN ('credits', 'plan')),
    code_value VARCHAR(64) NOT NULL,
    valid_days INTEGER NOT NULL DEFAULT 0,
    status VARCHAR(16) NOT NULL DEFAULT 'active',
    expires_at TIMESTAMPTZ,
    used_by BIGINT,
    used_at TIMESTAMPTZ,
    created_by BIGINT NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_redemption_codes_batch ON redemption_codes(batch_id);
CREATE INDEX IF NOT EXISTS idx_redemption_codes_expiry ON redemption_codes(expires_at) WHERE status = 'active';
`

var migration004Referrals = `
CREATE TABLE IF NOT EXISTS invite_codes (
    user_id BIGINT PRIMARY KEY,
    code VARCHAR(32) UNIQUE NOT NULL,
    changed_at TIMESTAMPTZ NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS referrals (
    invitee_id BIGINT PRIMARY KEY,
    inviter_id BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (invitee_id <> inviter_id)
);
CREATE INDEX IF NOT EXISTS idx_referrals_inviter ON referrals(inviter_id);
`

var migration005Members = `
CREATE TABLE IF NOT EXISTS members (
    user_id BIGINT PRIMARY KEY,
    username VARCHAR(255) NOT NULL DEFAULT '',
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    last_name VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_members_username ON members(LOWER(username));
`
