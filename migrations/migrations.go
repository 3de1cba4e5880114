// Package migrations embeds the SQL migration files so the binary
// carries its own schema and never depends on a migrations directory
// being present at runtime.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
