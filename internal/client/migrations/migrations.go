// Package migrations embeds the goose migrations of the local KV schema.
// The SQL is portable between SQLite and PostgreSQL.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
