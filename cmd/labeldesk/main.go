package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TobiSchelling/labeldesk/internal/annotate"
	"github.com/TobiSchelling/labeldesk/internal/collect"
	"github.com/TobiSchelling/labeldesk/internal/config"
	"github.com/TobiSchelling/labeldesk/internal/database"
	"github.com/TobiSchelling/labeldesk/internal/dataset"
	"github.com/TobiSchelling/labeldesk/internal/logging"
	"github.com/TobiSchelling/labeldesk/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     = zap.NewNop()
)

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "labeldesk",
	Short:   "Manual text annotation",
	Long:    "labeldesk presents dataset rows one at a time, records the chosen category and tracks progress across sessions.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return errors.Wrap(err, "loading config")
		}

		logger, err = logging.New(cfg.Logging.Level, verbose, cfg.Logging.JSON)
		if err != nil {
			return errors.Wrap(err, "configuring logging")
		}
		logger.Debug("config loaded", zap.String("path", path))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(nextCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(skipCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(jumpCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("labeldesk", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/labeldesk/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return errors.Wrap(err, "creating config directory")
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return errors.Wrap(err, "writing config")
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to point dataset.path at the CSV to label.")
		return nil
	},
}

// --- collect command ---

var collectOut string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Build a dataset snapshot CSV from the configured feeds",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(cfg.Collect.Feeds) == 0 {
			return errors.New("no feeds configured under collect.feeds")
		}
		fmt.Println("Collecting entries from feeds...")

		items, result := collect.NewCollector(cfg, logger).Collect(cmd.Context())
		if len(items) == 0 {
			return errors.New("no entries collected; snapshot not written")
		}
		if err := collect.WriteSnapshot(collectOut, items); err != nil {
			return err
		}

		fmt.Println("\nCollection complete:")
		fmt.Printf("  Total found: %d\n", result.TotalFound)
		fmt.Printf("  Rows written: %d\n", result.Kept)
		fmt.Printf("  Duplicates skipped: %d\n", result.Duplicates)
		fmt.Printf("  Too short: %d\n", result.TooShort)
		if result.FullText > 0 {
			fmt.Printf("  Full text fetched: %d\n", result.FullText)
		}

		if len(result.Sources) > 0 {
			fmt.Println("\nRows by source:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		fmt.Printf("\nSnapshot: %s\n", collectOut)
		return nil
	},
}

func init() {
	collectCmd.Flags().StringVarP(&collectOut, "out", "o", "", "Snapshot CSV to create (must not exist)")
	_ = collectCmd.MarkFlagRequired("out")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the labeling web UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, db, err := openController()
		if err != nil {
			return err
		}
		defer db.Close()

		srv, err := server.New(ctrl, server.Options{Guidelines: cfg.Guidelines, Health: db}, logger)
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.Serve(ctx, srv, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func openDB() (*database.DB, error) {
	return database.Open(cfg.Database.Driver, cfg.DatabaseDSN(), logger)
}

// openController loads the dataset and opens the store. The caller closes the DB.
func openController() (*annotate.Controller, *database.DB, error) {
	path := cfg.DatasetPath()
	if path == "" {
		return nil, nil, errors.New("dataset.path is not set in the config")
	}
	ds, err := dataset.Load(path, dataset.Columns{
		Text:  cfg.Dataset.TextColumn,
		Label: cfg.Dataset.LabelColumn,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("dataset loaded", zap.String("path", path), zap.Int("rows", ds.Len()))

	db, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	ctrl := annotate.New(db, ds, annotate.Options{Platform: cfg.Submission.Platform}, logger)
	return ctrl, db, nil
}
