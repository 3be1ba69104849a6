package dbx

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// The in-memory database lives per connection, so the pool must stay at one.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE journal (id INTEGER PRIMARY KEY, note TEXT NOT NULL)`)
	require.NoError(t, err)
	return db
}

func journalSize(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM journal`).Scan(&n))
	return n
}

func TestWithTx_CommitsOnNil(t *testing.T) {
	db := newTestDB(t)

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO journal(note) VALUES ('committed')`)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, journalSize(t, db))
}

func TestWithTx_RollsBackAllStatementsOnError(t *testing.T) {
	db := newTestDB(t)
	errBoom := errors.New("boom")

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		for _, note := range []string{"first", "second"} {
			_, e := tx.ExecContext(ctx, `INSERT INTO journal(note) VALUES (?)`, note)
			require.NoError(t, e)
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom, "fn error must come back unwrapped")

	// Откатиться должны обе вставки, а не только последняя.
	require.Equal(t, 0, journalSize(t, db))
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic to propagate")
		}
		require.Equal(t, 0, journalSize(t, db), "must rollback on panic")
	}()

	_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		_, e := tx.ExecContext(ctx, `INSERT INTO journal(note) VALUES ('doomed')`)
		require.NoError(t, e)
		panic("kaput")
	})
}

func TestWithTx_ReportsBeginFailure(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Close()) // ломаем соединение

	err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx DBTX) error {
		t.Fatal("fn must not run when BeginTx fails")
		return nil
	})
	require.Error(t, err)
}
