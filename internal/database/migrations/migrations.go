// Package migrations embeds the SQL schema of the gorm store backend, one
// goose directory per dialect.
package migrations

import "embed"

// FS holds the postgres/ and sqlite/ migration directories
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
