package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	require.NoError(t, err, "failed to parse default config")

	assert.NotEmpty(t, cfg.Collect.Feeds)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "Reddit", cfg.Submission.Platform)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.NotEmpty(t, cfg.Guidelines)
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
dataset:
  path: posts.csv
server:
  port: 9000
`)
	cfg, err := parse(data)
	require.NoError(t, err, "failed to parse minimal config")

	assert.Equal(t, "posts.csv", cfg.Dataset.Path)
	assert.Equal(t, 9000, cfg.Server.Port)
	// Defaults should still be set for unspecified fields
	assert.Equal(t, "text", cfg.Dataset.TextColumn)
	assert.Equal(t, "label", cfg.Dataset.LabelColumn)
	assert.Equal(t, "INFO", cfg.Logging.Level)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"driver":      "database:\n  driver: mysql\n",
		"port":        "server:\n  port: 70000\n",
		"text column": "dataset:\n  text_column: \"\"\n",
		"yaml":        "server: [\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfigYAML, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Collect.Feeds, "feeds populated from file")
}

func TestResolveConfigPathExplicit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	_, err := ResolveConfigPath(path)
	assert.Error(t, err, "missing explicit config")

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	got, err := ResolveConfigPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestGetDataDir(t *testing.T) {
	cfg := &Config{}
	assert.NotEmpty(t, cfg.GetDataDir())

	cfg.Output.DataDir = "/custom/path"
	assert.Equal(t, "/custom/path", cfg.GetDataDir())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		Database: Database{Driver: "sqlite"},
		Output:   Output{DataDir: "/data"},
	}
	assert.Equal(t, filepath.Join("/data", "labeldesk.db"), cfg.DatabaseDSN())

	t.Setenv("LABELDESK_TEST_PW", "s3cret")
	cfg.Database = Database{Driver: "postgres", DSN: "postgres://u:${LABELDESK_TEST_PW}@db/annotations"}
	assert.Equal(t, "postgres://u:s3cret@db/annotations", cfg.DatabaseDSN())
}
