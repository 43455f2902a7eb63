// Package database opens the gateway's SQLite store and applies its schema.
//
// The store is small: value history written by the history recorder and
// the schema_migrations ledger. One connection is kept open because SQLite
// serialises writers anyway; WAL mode lets history reads proceed while the
// recorder writes. The file is created with 0600 permissions.
//
// Schema files are named YYYYMMDD_HHMMSS_name.up.sql (and an optional
// .down.sql) and are registered with RegisterMigrations, normally by
// importing the migrations package:
//
//	import _ "github.com/nerrad567/gray-twin/migrations"
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
