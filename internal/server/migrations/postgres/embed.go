// Package postgres embeds the PostgreSQL schema migrations applied through
// goose at startup.
package postgres

import "embed"

//go:embed *.sql
var Migrations embed.FS
