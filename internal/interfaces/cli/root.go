// Package cli is the command-line surface of the billing engine. Every
// command runs against one bootstrapped App and prints through a printer.
package cli

import (
	"context"
	"io"

	appbilling "github.com/garage/billing/internal/application/billing"
	"github.com/garage/billing/internal/infrastructure/config"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "1.0.0"

// CLI owns the command tree and the App built for the running command
type CLI struct {
	root *cobra.Command

	configFile string
	output     string
	operator   string

	cfg     *config.Config
	baseLog *zap.Logger
	app     *App
	out     *printer
}

// Option configures a CLI
type Option func(*CLI)

// WithConfig uses cfg instead of loading configuration from disk
func WithConfig(cfg *config.Config) Option {
	return func(c *CLI) {
		c.cfg = cfg
	}
}

// WithBaseLogger uses log instead of building one from configuration
func WithBaseLogger(log *zap.Logger) Option {
	return func(c *CLI) {
		c.baseLog = log
	}
}

// WithOutput redirects command output and errors
func WithOutput(stdout, stderr io.Writer) Option {
	return func(c *CLI) {
		c.root.SetOut(stdout)
		c.root.SetErr(stderr)
	}
}

// New builds the command tree
func New(opts ...Option) *CLI {
	c := &CLI{}
	c.root = &cobra.Command{
		Use:   "billing",
		Short: "Garage billing: invoices, payments, balances and reports",
		Long: `Billing engine for a vehicle service garage.

Invoices are created from completed services, payments are applied against
them, and balances, statements and revenue reports are derived from the
stored records. Configuration comes from config.yaml, .env and BILLING_*
environment variables.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	flags := c.root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "Path to config file (default: ./config.yaml)")
	flags.StringVarP(&c.output, "output", "o", FormatTable, "Output format: table or json")
	flags.StringVar(&c.operator, "operator", "", "Name recorded as the operator in logs")

	c.root.AddCommand(
		c.invoiceCommand(),
		c.paymentCommand(),
		c.customerCommand(),
		c.reportCommand(),
		c.auditCommand(),
		c.settingsCommand(),
		c.watchCommand(),
	)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Command returns the root command
func (c *CLI) Command() *cobra.Command {
	return c.root
}

// Execute runs the command line in args and releases the App afterwards,
// whether or not the command succeeded
func (c *CLI) Execute(ctx context.Context, args []string) error {
	c.root.SetArgs(args)
	err := c.root.ExecuteContext(ctx)
	if c.app != nil {
		if closeErr := c.app.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
		c.app = nil
	}
	return err
}

// Execute is the entry point used by cmd/billing
func Execute(ctx context.Context, args []string) error {
	return New().Execute(ctx, args)
}

func (c *CLI) setup(cmd *cobra.Command, _ []string) error {
	out, err := newPrinter(cmd.OutOrStdout(), c.output)
	if err != nil {
		return err
	}
	c.out = out

	cfg := c.cfg
	if cfg == nil {
		if cfg, err = config.LoadFile(c.configFile); err != nil {
			return err
		}
	}

	ctx := logger.WithOperationID(cmd.Context(), uuid.NewString())
	if c.operator != "" {
		ctx = logger.WithOperator(ctx, c.operator)
	}
	cmd.SetContext(ctx)

	app, err := Bootstrap(ctx, cfg, c.baseLog)
	if err != nil {
		return err
	}
	c.app = app
	logger.WithLogger(ctx, app.Logger).Debug("Running command", zap.String("command", cmd.CommandPath()))
	return nil
}

func (c *CLI) service() *appbilling.BillingService {
	return c.app.Service
}
