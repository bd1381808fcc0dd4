package database

import "github.com/cockroachdb/errors"

// dialect holds the SQL fragments that differ between supported drivers.
type dialect struct {
	name string
	// autoIncrementPK declares an auto-assigned integer primary key column.
	autoIncrementPK string
	// tableExists counts tables with the given name; takes one bind argument.
	tableExists string
}

var dialects = map[string]dialect{
	DriverSQLite: {
		name:            DriverSQLite,
		autoIncrementPK: "INTEGER PRIMARY KEY AUTOINCREMENT",
		tableExists:     "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?",
	},
	DriverPostgres: {
		name:            DriverPostgres,
		autoIncrementPK: "BIGSERIAL PRIMARY KEY",
		tableExists:     "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?",
	},
}

func dialectFor(driver string) (dialect, error) {
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, errors.Newf("unsupported database driver %q (want %q or %q)", driver, DriverSQLite, DriverPostgres)
	}
	return d, nil
}
