package config

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Dataset    Dataset    `yaml:"dataset"`
	Database   Database   `yaml:"database"`
	Submission Submission `yaml:"submission"`
	Collect    Collect    `yaml:"collect"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	// Guidelines is markdown shown above the category buttons.
	Guidelines string `yaml:"guidelines"`
}

type Dataset struct {
	Path        string `yaml:"path"`
	TextColumn  string `yaml:"text_column"`
	LabelColumn string `yaml:"label_column"`
}

type Database struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN may reference environment variables as ${NAME}. Empty selects a
	// SQLite file in the data directory.
	DSN string `yaml:"dsn"`
}

type Submission struct {
	Platform string `yaml:"platform"`
}

type Collect struct {
	Feeds         []Feed `yaml:"feeds"`
	FetchFullText bool   `yaml:"fetch_full_text"`
	// MinTextLength drops entries shorter than this after extraction.
	MinTextLength int `yaml:"min_text_length"`
	// Label is written as the original label of every collected row.
	Label string `yaml:"label"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// ConfigDir returns the XDG config directory for labeldesk.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "labeldesk")
}

// DataDir returns the XDG data directory for labeldesk.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "labeldesk")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/labeldesk/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", errors.Newf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", errors.Newf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'labeldesk init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Dataset: Dataset{
			TextColumn:  "text",
			LabelColumn: "label",
		},
		Database:   Database{Driver: "sqlite"},
		Submission: Submission{Platform: "Reddit"},
		Collect:    Collect{MinTextLength: 20},
		Server:     Server{Port: 8000},
		Logging:    Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return errors.Newf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port out of range: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Dataset.TextColumn) == "" {
		return errors.New("dataset.text_column must not be empty")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return expandPath(c.Output.DataDir)
	}
	return DataDir()
}

// DatabaseDSN returns the DSN with environment variables expanded. For SQLite
// an empty DSN resolves to labeldesk.db in the data directory.
func (c *Config) DatabaseDSN() string {
	dsn := os.ExpandEnv(c.Database.DSN)
	if dsn == "" && c.Database.Driver == "sqlite" {
		return filepath.Join(c.GetDataDir(), "labeldesk.db")
	}
	if c.Database.Driver == "sqlite" {
		return expandPath(dsn)
	}
	return dsn
}

// DatasetPath returns the dataset path with ~ and environment variables expanded.
func (c *Config) DatasetPath() string {
	return expandPath(c.Dataset.Path)
}

func expandPath(p string) string {
	p = os.ExpandEnv(p)
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
