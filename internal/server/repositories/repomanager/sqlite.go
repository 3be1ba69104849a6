package repomanager

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/mosaicedu/notevault/internal/dbx"
	sqlitemigrations "github.com/mosaicedu/notevault/internal/server/migrations/sqlite"
	"github.com/mosaicedu/notevault/internal/server/repositories/objects"
)

// SQLiteRepositoryManager vends SQLite-backed repositories and runs the
// SQLite migration set.
type SQLiteRepositoryManager struct{}

// NewSQLiteRepositoryManager constructs a SQLite-backed RepositoryManager.
func NewSQLiteRepositoryManager() *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{}
}

// Objects returns an objects.Repository bound to the provided DBTX.
func (m *SQLiteRepositoryManager) Objects(db dbx.DBTX) objects.Repository {
	return objects.NewSQLiteRepository(db)
}

// RunMigrations sets up goose with the embedded SQLite migrations and runs
// them against the provided database connection.
func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(sqlitemigrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}
