// Package dbx holds the thin database plumbing shared by the repositories:
// the DBTX querying surface that lets the same repository code run against
// either *sql.DB or *sql.Tx, and WithTx for multi-statement work that has
// to land atomically.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the part of database/sql the repositories actually call.
// Both *sql.DB and *sql.Tx satisfy it, so a repository constructed over a
// transaction behaves exactly like one constructed over the pool.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction: commit when fn returns nil, rollback
// when it returns an error or panics. Panics keep propagating after the
// rollback. A commit failure is returned as-is.
//
//	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    repo := s.repos.Objects(tx)
//	    if err := repo.Create(ctx, obj); err != nil {
//	        return err
//	    }
//	    return repo.Update(ctx, prev)
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
