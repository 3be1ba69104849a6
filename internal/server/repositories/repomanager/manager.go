package repomanager

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mosaicedu/notevault/internal/dbx"
	"github.com/mosaicedu/notevault/internal/server/repositories/objects"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Objects(db dbx.DBTX) objects.Repository
}

// ForDSN picks the SQL driver and matching manager for a database DSN.
// PostgreSQL URLs go through pgx; anything else is treated as a SQLite
// file path, which keeps single-node deployments free of an external
// database.
func ForDSN(dsn string) (driverName string, m RepositoryManager) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx", NewPostgresRepositoryManager()
	}
	return "sqlite", NewSQLiteRepositoryManager()
}
