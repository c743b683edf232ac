// Package database opens the SQLite file behind the event journal and
// applies schema migrations.
//
// Migrations are read from any fs.FS (the migrations package embeds the
// real ones) and recorded in schema_migrations. Each runs in its own
// transaction.
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
