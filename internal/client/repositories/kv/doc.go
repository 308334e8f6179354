// Package kv provides the durable string key-value storage the offline store
// persists its scopes into.
//
// # Overview
//
// The contract is deliberately small: Get returns the value and whether the
// key exists, Set overwrites it. One key holds one scope's JSON array.
//
//	type Storage interface {
//	    Get(ctx, key) (string, bool, error)
//	    Set(ctx, key, value) error
//	}
//
// Backends that can run a read-modify-write atomically also implement Updater;
// the offline store uses it when available so two processes sharing a database
// cannot lose each other's writes.
//
// # Backends
//
//   - SQLiteRepository: local file (modernc.org/sqlite), default for the CLI.
//   - PostgresRepository: shared database through the pgx stdlib driver.
//   - S3Repository: one object per key in an S3 compatible bucket.
//   - Encrypted: wraps any Storage and seals values with AES-GCM.
//
// # Errors
//
// Absent keys are not errors. A stored value that cannot be decoded by the
// backend itself (for example, a ciphertext failing authentication) is
// reported as ErrCorrupt, which callers treat like unreadable data rather than
// an I/O failure. Other errors are wrapped as "failed to <op> kv[<key>]: ...".
package kv
