package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/patrion/internal/adapter/storage"
	"github.com/rl1809/patrion/internal/config"
	"github.com/rl1809/patrion/internal/importer"
	"github.com/rl1809/patrion/internal/logging"
)

var (
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "patrion",
	Short:         "Asset inventory service",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err = logging.New(cfg.Logging)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and gRPC health servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the MySQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, storage.Migrate)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the latest migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, storage.Rollback)
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd, storage.MigrationStatus)
	},
}

// sector command
var sectorCmd = &cobra.Command{
	Use:   "sector",
	Short: "Manage sectors",
}

var sectorAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a sector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		sector, err := a.sectorService().Create(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("creating sector: %w", err)
		}
		fmt.Printf("Created sector %s (%s)\n", sector.Name, sector.ID)
		return nil
	},
}

var sectorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		sectors, err := a.sectorService().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing sectors: %w", err)
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME")
		for _, s := range sectors {
			fmt.Fprintf(tw, "%s\t%s\n", s.ID, s.Name)
		}
		return tw.Flush()
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import the legacy semicolon-separated inventory export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening export: %w", err)
		}
		defer f.Close()

		a, err := newApp(cmd.Context(), cfg, logger, false)
		if err != nil {
			return err
		}
		defer a.Close()

		im := importer.New(a.inventoryService(), a.sectorService(), logger)
		report, err := im.Import(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("importing %s: %w", filepath.Base(args[0]), err)
		}

		fmt.Printf("Imported: %d\n", report.Imported)
		fmt.Printf("Skipped:  %d\n", report.Skipped)
		fmt.Printf("Sectors created: %d\n", report.SectorsCreated)
		for _, rowErr := range report.Errors {
			fmt.Printf("  %v\n", rowErr)
		}
		if len(report.Errors) > 0 {
			return fmt.Errorf("%d rows failed", len(report.Errors))
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write the effective configuration to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(args[0]); err == nil {
			return fmt.Errorf("%s already exists", args[0])
		}
		if err := cfg.Save(args[0]); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "patrion.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateStatusCmd)
	sectorCmd.AddCommand(sectorAddCmd, sectorListCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, sectorCmd, importCmd, configCmd)
}
