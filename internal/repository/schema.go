package repository

// Schema definitions for the Kestrel record store.
// Compatible with both SQLite and PostgreSQL.

// ts keeps the submitted offset (RFC 3339); ts_unix orders rows.
const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    sender TEXT NOT NULL,
    receiver TEXT NOT NULL,
    amount TEXT NOT NULL,
    device TEXT NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    ts TEXT NOT NULL,
    ts_unix BIGINT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_ts ON transactions(ts_unix, id);
CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(sender);
CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions(receiver);
`

// seq preserves insertion order across realtime and batch writes.
const schemaFlagged = `
CREATE TABLE IF NOT EXISTS flagged_transactions (
    id TEXT PRIMARY KEY,
    seq BIGINT NOT NULL,
    tx_id TEXT NOT NULL,
    sender TEXT NOT NULL,
    receiver TEXT NOT NULL,
    amount TEXT NOT NULL,
    device TEXT NOT NULL,
    location TEXT NOT NULL DEFAULT '',
    ts TEXT NOT NULL,
    reasons TEXT NOT NULL,
    is_fraud INTEGER NOT NULL,
    checked_at TIMESTAMP NOT NULL,
    source TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flagged_seq ON flagged_transactions(seq);
CREATE INDEX IF NOT EXISTS idx_flagged_tx ON flagged_transactions(tx_id);
`

const schemaBlockedSenders = `
CREATE TABLE IF NOT EXISTS blocked_senders (
    upi_id TEXT PRIMARY KEY,
    reason TEXT NOT NULL,
    blocked_at TIMESTAMP NOT NULL
);
`

const schemaModelArtifacts = `
CREATE TABLE IF NOT EXISTS model_artifacts (
    version TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    samples INTEGER NOT NULL,
    trained_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_model_artifacts_trained ON model_artifacts(trained_at);
`

// leases coordinate exclusive jobs across processes sharing the store.
const schemaLeases = `
CREATE TABLE IF NOT EXISTS leases (
    name TEXT PRIMARY KEY,
    holder TEXT NOT NULL,
    expires_unix BIGINT NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaFlagged,
		schemaBlockedSenders,
		schemaModelArtifacts,
		schemaLeases,
	}
}
