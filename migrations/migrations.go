// Package migrations embeds the SQL schema migrations so the server
// binary can bring its own database up to date at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
