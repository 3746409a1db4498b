package postgres

// schema is applied by Migrate. Records are stored as JSONB documents with
// the columns needed for guarded updates and listing lifted out.
const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id          TEXT PRIMARY KEY,
	agency_id   TEXT NOT NULL,
	status      TEXT NOT NULL,
	version     BIGINT NOT NULL DEFAULT 0,
	document    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_agency_status ON submissions (agency_id, status);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions (created_at DESC);

CREATE TABLE IF NOT EXISTS quotes (
	id             TEXT PRIMARY KEY,
	submission_id  TEXT NOT NULL REFERENCES submissions (id),
	status         TEXT NOT NULL,
	version        BIGINT NOT NULL DEFAULT 0,
	document       JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_quotes_submission ON quotes (submission_id);

CREATE TABLE IF NOT EXISTS finance_plans (
	quote_id    TEXT PRIMARY KEY REFERENCES quotes (id),
	id          TEXT NOT NULL,
	locked      BOOLEAN NOT NULL DEFAULT FALSE,
	document    JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	id          TEXT PRIMARY KEY,
	quote_id    TEXT NOT NULL REFERENCES quotes (id),
	document    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_quote ON payments (quote_id);
`
