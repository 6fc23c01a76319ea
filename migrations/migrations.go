// Package migrations embeds the goose SQL migrations so the deployed binary
// carries its own schema and does not depend on the working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
