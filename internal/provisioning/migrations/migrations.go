// Package migrations holds the control-plane registry schema
package migrations

import "embed"

// Dir is the directory passed to database.DB.Migrate
const Dir = "."

// FS embeds the goose SQL migrations
//
//go:embed *.sql
var FS embed.FS
