// Package migrations embeds the schema migration files for the
// metadata store.
package migrations

import "embed"

// FS holds every .sql migration, embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
