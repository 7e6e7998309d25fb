package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/garage/billing/internal/infrastructure/config"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/garage/billing/internal/infrastructure/migration"
	"github.com/garage/billing/internal/infrastructure/persistence"
	"github.com/garage/billing/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type migrateCLI struct {
	configFile string
	path       string
	logLevel   string

	cfg *config.Config
	log *zap.Logger
}

func newRootCommand() *cobra.Command {
	c := &migrateCLI{}
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the garage billing database schema",
		Long: `Apply, roll back and inspect the versioned billing schema. Without --path
the schema embedded for the configured driver is used.

Connection settings come from config.yaml and BILLING_DATABASE_* variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "Path to config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&c.path, "path", "", "Migrations directory for the configured driver (default: embedded)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	root.AddCommand(
		c.upCommand(),
		c.downCommand(),
		c.stepCommand(),
		c.gotoCommand(),
		c.versionCommand(),
		c.forceCommand(),
		c.dropCommand(),
		c.createCommand(),
		c.listCommand(),
	)
	return root
}

func (c *migrateCLI) setup() error {
	log, err := logger.New(&logger.Config{
		Level:      c.logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.log = log

	cfg, err := config.LoadFile(c.configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	c.cfg = cfg

	if c.path != "" {
		if c.path, err = filepath.Abs(c.path); err != nil {
			return fmt.Errorf("failed to resolve %s: %w", c.path, err)
		}
	}
	return nil
}

func (c *migrateCLI) driver() string {
	if c.cfg.Database.Driver == "" {
		return migration.DriverPostgres
	}
	return c.cfg.Database.Driver
}

// withMigrator opens the configured database and runs fn against it
func (c *migrateCLI) withMigrator(fn func(m *migration.Migrator) error) error {
	db, err := persistence.NewDatabase(&c.cfg.Database, nil)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	m, err := migration.New(sqlDB, migration.Options{Driver: c.driver(), Path: c.path}, c.log)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	source := c.path
	if source == "" {
		source = "embedded"
	}
	c.log.Info("Migrating", zap.String("driver", c.driver()), zap.String("migrations", source))
	return fn(m)
}

func (c *migrateCLI) upCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return c.withMigrator(func(m *migration.Migrator) error { return m.Up() })
		},
	}
}

func (c *migrateCLI) downCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return c.withMigrator(func(m *migration.Migrator) error { return m.Down() })
		},
	}
}

func (c *migrateCLI) stepCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "step <n>",
		Short:   "Apply n migrations, or roll back -n",
		Example: "  migrate step -- -1",
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			return c.withMigrator(func(m *migration.Migrator) error { return m.Steps(n) })
		},
	}
}

func (c *migrateCLI) gotoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate up or down to a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return c.withMigrator(func(m *migration.Migrator) error { return m.GoTo(uint(version)) })
		},
	}
}

func (c *migrateCLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withMigrator(func(m *migration.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				if version == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
					return nil
				}
				if dirty {
					fmt.Fprintf(cmd.OutOrStdout(), "%d (dirty)\n", version)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			})
		},
	}
}

func (c *migrateCLI) forceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Long:  "Set the schema version without running migrations. Use it to clear a dirty version after fixing a failed migration by hand.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q", args[0])
			}
			return c.withMigrator(func(m *migration.Migrator) error { return m.Force(version) })
		},
	}
}

func (c *migrateCLI) dropCommand() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop every table in the billing database",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if !confirm {
				return fmt.Errorf("drop cancelled, pass --confirm to drop every table")
			}
			return c.withMigrator(func(m *migration.Migrator) error { return m.Drop() })
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm dropping all tables")
	return cmd
}

func (c *migrateCLI) createCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "create <name> [description]",
		Short:   "Write a new up/down migration pair into --path",
		Example: `  migrate --path migrations/postgres create add_payment_reference "Index payment references"`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			if c.path == "" {
				return fmt.Errorf("create writes files and needs --path, e.g. --path migrations/%s", c.driver())
			}
			description := ""
			if len(args) == 2 {
				description = args[1]
			}
			mf, err := migration.CreateMigration(c.path, args[0], description)
			if err != nil {
				return err
			}
			c.log.Info("Migration created",
				zap.String("version", mf.Version),
				zap.String("up_file", mf.UpPath),
				zap.String("down_file", mf.DownPath),
			)
			return nil
		},
	}
}

func (c *migrateCLI) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the migrations available for the configured driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var fsys fs.FS = os.DirFS(c.path)
			if c.path == "" {
				sub, err := fs.Sub(migrations.FS, c.driver())
				if err != nil {
					return fmt.Errorf("failed to open embedded migrations: %w", err)
				}
				fsys = sub
			}
			names, err := migration.ListMigrations(fsys)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations found")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
