// Package database provides SQLite connectivity for FlashCue Core.
//
// It owns the connection setup (WAL, busy timeout, foreign keys, a single
// pooled connection) and a small forward-only migration runner. Schema files
// live in the top-level migrations package and are embedded into the binary.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := migrations.Apply(ctx, db); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
