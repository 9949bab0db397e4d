// Package migrations embeds the SQL schema migrations into the binary
// and registers them with the database package.
//
// Import for side effects:
//
//	import _ "github.com/pulsegrid/pulse-core/migrations"
package migrations

import (
	"embed"

	"github.com/pulsegrid/pulse-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
