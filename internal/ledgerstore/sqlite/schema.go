package sqlite

// Timestamps are unix milliseconds; 0 means unset. Amounts are decimal
// strings. Every row carries a version bumped on each write, used for
// optimistic conflict detection.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0',
		last_updated INTEGER NOT NULL DEFAULT 0,
		card_identifier TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		day TEXT NOT NULL,
		balance TEXT NOT NULL,
		ts INTEGER NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		is_auto_import INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 1,
		UNIQUE(account_id, day)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entries_account_ts ON ledger_entries(account_id, ts)`,
	`CREATE TABLE IF NOT EXISTS movement_logs (
		account_id TEXT PRIMARY KEY REFERENCES accounts(id),
		items TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	)`,
}

const (
	accountColumns = `id, name, kind, type, currency, balance, last_updated, card_identifier, version`
	ledgerColumns  = `id, account_id, day, balance, ts, source, is_auto_import, version`
)
