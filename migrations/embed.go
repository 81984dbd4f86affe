// Package migrations embeds the SQL schema migrations into the binary.
package migrations

import "embed"

// FS holds the migration files, named YYYYMMDD_HHMMSS_description.up.sql
// and .down.sql, at its root.
//
//go:embed *.sql
var FS embed.FS
