package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/bizkeeper/internal/dbx"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	get          string
	getForUpdate string
	// reserve inserts an empty placeholder row when the key is absent, so
	// getForUpdate has a row to lock. Empty when the backend locks the
	// whole database instead.
	reserve      string
	set          string
	keys         string
}

// sqlStore implements Storage, Updater and Lister over database/sql.
// SQLiteRepository and PostgresRepository embed it with their dialect.
type sqlStore struct {
	db *sql.DB
	q  dialect
}

func (s *sqlStore) Get(ctx context.Context, key string) (string, bool, error) {
	return s.get(ctx, s.db, s.q.get, key)
}

func (s *sqlStore) Set(ctx context.Context, key string, value string) error {
	return s.set(ctx, s.db, key, value)
}

// Update runs fn between a locking read and the write, in one transaction.
func (s *sqlStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		reserved, err := s.reserve(ctx, tx, key)
		if err != nil {
			return err
		}
		current, ok, err := s.get(ctx, tx, s.q.getForUpdate, key)
		if err != nil {
			return err
		}
		if reserved {
			current, ok = "", false
		}
		next, err := fn(current, ok)
		if err != nil {
			return err
		}
		return s.set(ctx, tx, key, next)
	})
	if err != nil {
		return fmt.Errorf("failed to update kv[%s]: %w", key, err)
	}
	return nil
}

func (s *sqlStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q.keys, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list kv keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan kv key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kv keys: %w", err)
	}
	return keys, nil
}

func (s *sqlStore) get(ctx context.Context, db dbx.DBTX, query, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get kv[%s]: %w", key, err)
	}
	return value, true, nil
}

// reserve reports whether it inserted the placeholder row, i.e. whether the
// key was absent. A rolled back transaction removes the placeholder again.
func (s *sqlStore) reserve(ctx context.Context, db dbx.DBTX, key string) (bool, error) {
	if s.q.reserve == "" {
		return false, nil
	}
	res, err := db.ExecContext(ctx, s.q.reserve, key)
	if err != nil {
		return false, fmt.Errorf("failed to reserve kv[%s]: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to reserve kv[%s]: %w", key, err)
	}
	return n == 1, nil
}

func (s *sqlStore) set(ctx context.Context, db dbx.DBTX, key, value string) error {
	if _, err := db.ExecContext(ctx, s.q.set, key, value); err != nil {
		return fmt.Errorf("failed to set kv[%s]: %w", key, err)
	}
	return nil
}
