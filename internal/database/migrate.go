package database

import (
	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const createVersionTable = `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)`

// getSchemaVersion returns the highest applied migration, creating the
// bookkeeping table on first use.
func getSchemaVersion(conn *sqlx.DB) (int, error) {
	if _, err := conn.Exec(createVersionTable); err != nil {
		return 0, errors.Wrap(err, "creating schema_migrations")
	}
	var version int
	if err := conn.Get(&version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return 0, errors.Wrap(err, "reading schema version")
	}
	return version, nil
}

// isLegacyDB returns true if the labeling tables exist but no migration was
// ever recorded. Such databases predate versioning and match migration 1.
func isLegacyDB(conn *sqlx.DB, d dialect) (bool, error) {
	var count int
	if err := conn.Get(&count, conn.Rebind(d.tableExists), "submissions"); err != nil {
		return false, errors.Wrap(err, "checking for legacy tables")
	}
	return count > 0, nil
}

// migrate brings the database schema up to the latest version. Each migration
// and its version stamp commit in the same transaction.
func (db *DB) migrate() error {
	current, err := getSchemaVersion(db.conn)
	if err != nil {
		return err
	}

	if current == 0 {
		legacy, err := isLegacyDB(db.conn, db.dialect)
		if err != nil {
			return err
		}
		if legacy {
			db.log.Info("detected legacy database, stamping as version 1")
			if _, err := db.conn.Exec(db.conn.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), 1); err != nil {
				return errors.Wrap(err, "stamping legacy version")
			}
			current = 1
		}
	}

	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		db.log.Info("applying migration", zap.Int("version", m.Version), zap.String("description", m.Description))

		tx, err := db.conn.Beginx()
		if err != nil {
			return errors.Wrapf(err, "begin migration %d", m.Version)
		}

		if err := m.Up(tx, db.dialect); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "migration %d (%s)", m.Version, m.Description)
		}

		if _, err := tx.Exec(tx.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), m.Version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "recording version %d", m.Version)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit migration %d", m.Version)
		}
	}

	return nil
}
