// Package migrations embeds the goose SQL migrations so binaries carry their
// own schema.
package migrations

import "embed"

// FS holds the migration files under sql/.
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory inside FS goose reads from.
const Dir = "sql"
