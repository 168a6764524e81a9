package postgres

// Schema holds the DDL for the service's two tables. usages is an
// append-only ledger: leftover_bundles on the newest row is the
// enrollment's current bundle state. The partial unique index on
// enrollments keeps at most one active freemium enrollment per user so
// concurrent lazy creation degrades to a no-op insert.
const Schema = `
CREATE TABLE IF NOT EXISTS enrollments (
    uid              VARCHAR(50)    PRIMARY KEY,
    user_id          VARCHAR(50)    NOT NULL,
    price            NUMERIC(20, 9) NOT NULL DEFAULT 0,
    invoice_id       VARCHAR(50),
    acquisition_type VARCHAR(20)    NOT NULL DEFAULT 'purchase',
    started_at       TIMESTAMPTZ    NOT NULL,
    expired_at       TIMESTAMPTZ,
    status           VARCHAR(20)    NOT NULL DEFAULT 'active',
    bundles          JSONB          NOT NULL,
    variant          VARCHAR(100),
    due_date         TIMESTAMPTZ,
    is_paid          BOOLEAN        NOT NULL DEFAULT false,
    is_deleted       BOOLEAN        NOT NULL DEFAULT false,
    meta_data        JSONB,
    business_name    VARCHAR(100)   NOT NULL,
    created_at       TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
    created_by       VARCHAR(50),
    updated_by       VARCHAR(50)
);

CREATE INDEX IF NOT EXISTS idx_enrollments_user_active
    ON enrollments (business_name, user_id, status, started_at, expired_at)
    WHERE is_deleted = false;

CREATE INDEX IF NOT EXISTS idx_enrollments_bundles
    ON enrollments USING GIN (bundles jsonb_path_ops);

CREATE UNIQUE INDEX IF NOT EXISTS uq_enrollments_active_freemium
    ON enrollments (business_name, user_id, COALESCE(variant, ''))
    WHERE acquisition_type = 'freemium'
      AND status = 'active'
      AND is_deleted = false;

CREATE TABLE IF NOT EXISTS usages (
    uid              VARCHAR(50)    PRIMARY KEY,
    user_id          VARCHAR(50)    NOT NULL,
    enrollment_id    VARCHAR(50)    NOT NULL REFERENCES enrollments (uid),
    asset            VARCHAR(100)   NOT NULL,
    amount           NUMERIC(20, 9) NOT NULL CHECK (amount > 0),
    variant          VARCHAR(100),
    leftover_bundles JSONB          NOT NULL,
    meta_data        JSONB,
    business_name    VARCHAR(100)   NOT NULL,
    created_at       TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ    NOT NULL DEFAULT NOW(),
    created_by       VARCHAR(50),
    updated_by       VARCHAR(50)
);

CREATE INDEX IF NOT EXISTS idx_usages_ledger_tail
    ON usages (enrollment_id, created_at DESC, uid DESC);

CREATE INDEX IF NOT EXISTS idx_usages_user
    ON usages (business_name, user_id, created_at DESC);
`
