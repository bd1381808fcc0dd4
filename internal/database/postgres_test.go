package database

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// openPostgresTestDB connects to LABELDESK_TEST_POSTGRES_DSN, dropping the
// labeling tables before and after the test. Skipped when the variable is unset.
func openPostgresTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("LABELDESK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LABELDESK_TEST_POSTGRES_DSN not set")
	}

	drop := func(db *DB) {
		_, err := db.conn.Exec(`DROP TABLE IF EXISTS submissions, classification_progress, schema_migrations`)
		require.NoError(t, err)
	}

	db, err := Open(DriverPostgres, dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	drop(db)
	db.Close()

	db, err = Open(DriverPostgres, dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		drop(db)
		db.Close()
	})
	return db
}

func TestPostgresMigrationsAndStore(t *testing.T) {
	db := openPostgresTestDB(t)

	version, err := getSchemaVersion(db.conn)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), version)

	first, err := db.LoadProgress(ctx())
	require.NoError(t, err)
	again, err := db.LoadProgress(ctx())
	require.NoError(t, err)
	assert.Equal(t, first.PassID, again.PassID)

	var rows int
	require.NoError(t, db.conn.Get(&rows, "SELECT COUNT(*) FROM classification_progress"))
	assert.Equal(t, 1, rows)

	err = db.InTx(ctx(), func(q Queries) error {
		p, err := q.LoadProgress(ctx())
		if err != nil {
			return err
		}
		if _, err := q.AppendSubmission(ctx(), newSubmission("a", CategoryReligion, 0, p.PassID)); err != nil {
			return err
		}
		p.CurrentRow++
		p.TotalProcessed++
		return q.SaveProgress(ctx(), p)
	})
	require.NoError(t, err)

	counts, err := db.CountByCategoryForPass(ctx(), first.PassID)
	require.NoError(t, err)
	assert.Equal(t, map[Category]int{CategoryReligion: 1}, counts)

	subs, err := db.ListSubmissions(ctx())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 0, subs[0].Row)
}
