package kv

import "database/sql"

// PostgresRepository stores entries in a shared PostgreSQL database, letting
// several devices of one user keep their offline mirrors server side.
type PostgresRepository struct {
	sqlStore
}

var postgresDialect = dialect{
	get:          `SELECT value FROM kv_entries WHERE key = $1`,
	getForUpdate: `SELECT value FROM kv_entries WHERE key = $1 FOR UPDATE`,
	// A concurrent reserve of the same key blocks on the unique index until
	// the first transaction ends, so two first writers cannot both see the
	// key as absent.
	reserve: `
		INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, '', NOW())
		ON CONFLICT (key) DO NOTHING
	`,
	set: `
		INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`,
	keys: `SELECT key FROM kv_entries WHERE substr(key, 1, $1) = $2 ORDER BY key`,
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{sqlStore{db: db, q: postgresDialect}}
}
