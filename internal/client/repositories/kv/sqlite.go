package kv

import "database/sql"

// SQLiteRepository stores entries in the kv_entries table of a local SQLite
// database. Open it with OpenSQLite so the schema is migrated.
type SQLiteRepository struct {
	sqlStore
}

var sqliteDialect = dialect{
	get: `SELECT value FROM kv_entries WHERE key = ?`,
	// SQLite locks the whole database for the writing transaction.
	getForUpdate: `SELECT value FROM kv_entries WHERE key = ?`,
	set: `
		INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`,
	keys: `SELECT key FROM kv_entries WHERE substr(key, 1, ?) = ? ORDER BY key`,
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{sqlStore{db: db, q: sqliteDialect}}
}
