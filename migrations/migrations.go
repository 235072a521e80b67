// Package migrations embeds the gateway's PostgreSQL schema.
package migrations

import "embed"

// FS holds the numbered up/down migration files.
//
//go:embed *.sql
var FS embed.FS
