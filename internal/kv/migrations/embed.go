// Package migrations embeds the goose migrations applied to the sqlite slot
// schema on open.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
