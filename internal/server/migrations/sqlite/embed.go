// Package sqlite embeds the SQLite schema migrations applied through goose
// at startup.
package sqlite

import "embed"

//go:embed *.sql
var Migrations embed.FS
