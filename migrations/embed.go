// Package migrations embeds the goose SQL migrations of furni-api.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
