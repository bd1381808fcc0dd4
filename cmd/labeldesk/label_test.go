package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/labeldesk/internal/annotate"
	"github.com/TobiSchelling/labeldesk/internal/database"
)

func TestExpectedRow(t *testing.T) {
	assert.Equal(t, annotate.AnyRow, expectedRow(0), "unset flag")
	assert.Equal(t, 2, expectedRow(3))
}

func TestConfirm(t *testing.T) {
	for in, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "": false} {
		assert.Equal(t, want, confirm(strings.NewReader(in), ""), "confirm(%q)", in)
	}
}

func TestPrintStatistics(t *testing.T) {
	var buf bytes.Buffer
	printStatistics(&buf, &annotate.Statistics{
		CountsByCategory:     map[database.Category]int{database.CategoryNormal: 3},
		PassCountsByCategory: map[database.Category]int{database.CategoryNormal: 1},
		TotalSubmissions:     3,
		Progress:             database.Progress{CurrentRow: 2, TotalProcessed: 1, TotalSkipped: 1, PassID: "p"},
		TotalRows:            2,
		PercentComplete:      100,
		Complete:             true,
	})

	out := buf.String()
	for _, want := range []string{"row 2 of 2", "All rows processed", "Language/Caste", "Normal", "1 / 3"} {
		assert.Contains(t, out, want)
	}
}

func exportFixture() []database.Submission {
	return []database.Submission{{
		ID:        1,
		Text:      "hello",
		Category:  database.CategoryNormal,
		Platform:  "Reddit",
		Status:    database.StatusPending,
		Row:       0,
		PassID:    "p",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}
}

func TestWriteExportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	var stdout bytes.Buffer

	require.NoError(t, writeExport(&stdout, path, "csv", exportFixture()))
	assert.Zero(t, stdout.Len(), "nothing written to stdout")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello,normal,Reddit,pending,0,p")
}

func TestWriteExportToStdout(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, writeExport(&stdout, "", "json", exportFixture()))
	assert.Contains(t, stdout.String(), `"category": "normal"`)
}

func TestWriteExportErrors(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "out.xml")
	assert.Error(t, writeExport(nil, path, "xml", exportFixture()))
	assert.NoFileExists(t, path, "unknown format creates no file")

	assert.Error(t, writeExport(nil, filepath.Join(dir, "missing", "out.csv"), "csv", exportFixture()))
}
