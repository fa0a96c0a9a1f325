// Package migrations embeds the SQL schema for the document collections.
package migrations

import "embed"

// FS holds every *.sql migration, ordered by goose version prefix.
//
//go:embed *.sql
var FS embed.FS
