// Package migrations embeds the Postgres schema in goose format.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
