// Package migrations embeds the Postgres schema applied by "timetable migrate".
package migrations

import "embed"

// FS holds the *.sql migration files.
//
//go:embed *.sql
var FS embed.FS
