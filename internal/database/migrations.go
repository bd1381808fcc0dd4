package database

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sqlx.Tx, d dialect) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sqlx.Tx, d dialect) error {
			// Column names match unversioned labeling databases so they can be
			// adopted in place.
			stmts := []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS submissions (
    id %s,
    text TEXT NOT NULL,
    category VARCHAR(32) NOT NULL,
    platform VARCHAR(64) NOT NULL DEFAULT 'Reddit',
    status VARCHAR(32) DEFAULT 'pending',
    timestamp TIMESTAMP
)`, d.autoIncrementPK),
				`CREATE TABLE IF NOT EXISTS classification_progress (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    current_row BIGINT NOT NULL DEFAULT 0,
    total_processed BIGINT DEFAULT 0,
    total_skipped BIGINT DEFAULT 0,
    last_updated TIMESTAMP
)`,
			}
			return execAll(tx, stmts)
		},
	},
	{
		Version:     2,
		Description: "labeling passes",
		Up: func(tx *sqlx.Tx, d dialect) error {
			stmts := []string{
				`ALTER TABLE submissions ADD COLUMN row_index BIGINT`,
				`ALTER TABLE submissions ADD COLUMN pass_id VARCHAR(36) NOT NULL DEFAULT ''`,
				`ALTER TABLE classification_progress ADD COLUMN pass_id VARCHAR(36) NOT NULL DEFAULT ''`,
				`CREATE INDEX IF NOT EXISTS idx_submissions_category ON submissions(category)`,
				`CREATE INDEX IF NOT EXISTS idx_submissions_pass ON submissions(pass_id)`,
			}
			if err := execAll(tx, stmts); err != nil {
				return err
			}
			// Progress rows that predate passes start one now.
			_, err := tx.Exec(
				tx.Rebind(`UPDATE classification_progress SET pass_id = ? WHERE pass_id = ''`),
				uuid.NewString(),
			)
			return err
		},
	},
	{
		Version:     3,
		Description: "single progress row",
		Up: func(tx *sqlx.Tx, d dialect) error {
			// Unversioned databases may hold progress under any id, or under
			// several. The lowest id becomes the singleton.
			return execAll(tx, []string{
				`DELETE FROM classification_progress
    WHERE id <> (SELECT MIN(id) FROM classification_progress)`,
				`UPDATE classification_progress SET id = 1 WHERE id <> 1`,
			})
		},
	},
}

func execAll(tx *sqlx.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
