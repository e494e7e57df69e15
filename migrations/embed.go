// Package migrations embeds the SQL migration files into the binary,
// one directory per database dialect.
package migrations

import (
	"embed"

	"github.com/nerrad567/sensorhub-core/internal/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
