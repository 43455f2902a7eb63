// Package migrations holds the gateway's SQL schema, compiled into the
// binary. Importing it registers the files with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-twin/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.RegisterMigrations(files, ".")
}
