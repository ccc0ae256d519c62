// Package migrations embeds the Postgres schema applied by `classboard migrate`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
