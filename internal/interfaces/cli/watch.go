package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	appbilling "github.com/garage/billing/internal/application/billing"
	"github.com/garage/billing/internal/infrastructure/config"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/garage/billing/internal/infrastructure/scheduler"
	"github.com/spf13/cobra"
)

const watchStopTimeout = 30 * time.Second

func (c *CLI) watchCommand() *cobra.Command {
	var (
		interval time.Duration
		once     bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh, audit and summarize on a schedule until interrupted",
		Long: `Refresh, audit and summarize on a schedule until interrupted.

Every sweep refetches all records, so changes written by other processes
are picked up, then audits every invoice and logs what is overdue. Once a
day the dashboard totals are logged. Intervals come from the scheduler
section of the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if once {
				return c.sweepOnce(cmd.Context())
			}
			cfg := c.app.Config.Scheduler
			if cmd.Flags().Changed("interval") {
				cfg.SweepInterval = interval
			}
			return c.watch(cmd.Context(), cfg)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "Sweep interval (default from scheduler.sweep_interval)")
	cmd.Flags().BoolVar(&once, "once", false, "Run a single sweep and exit")
	return cmd
}

func (c *CLI) sweepOnce(ctx context.Context) error {
	result, err := c.service().Sweep(ctx)
	if err != nil {
		return err
	}
	if c.out.json() {
		return c.out.printJSON(result)
	}
	if err := c.out.fields(
		"Snapshot", fmt.Sprint(result.Version),
		"Violations", fmt.Sprint(len(result.Violations)),
		"Overdue", fmt.Sprintf("%s (%d)", c.service().FormatAmount(result.OverdueAmount), result.OverdueCount),
	); err != nil {
		return err
	}
	for _, v := range result.Violations {
		c.out.line("%s", v)
	}
	return nil
}

func (c *CLI) watch(ctx context.Context, cfg config.SchedulerConfig) error {
	log := c.app.Logger.Named("scheduler")

	sched, err := scheduler.NewScheduler(schedulerConfig(cfg), newJobExecutor(c.service()), log)
	if err != nil {
		return err
	}
	trigger, err := scheduler.NewTrigger(scheduler.TriggerConfig{
		SweepInterval: cfg.SweepInterval,
		DailySummary:  cfg.DailySummary,
		CheckInterval: time.Minute,
		RetryAttempts: cfg.RetryAttempts,
	}, sched, log)
	if err != nil {
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}
	if err := trigger.Start(ctx); err != nil {
		_ = sched.Stop(context.WithoutCancel(ctx))
		return err
	}
	c.out.line("Watching billing records, sweep every %s. Interrupt to stop.", cfg.SweepInterval)

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), watchStopTimeout)
	defer cancel()
	err = errors.Join(trigger.Stop(stopCtx), sched.Stop(stopCtx))

	st := sched.Stats()
	c.out.line("Stopped after %d job(s): %d succeeded, %d failed", st.Submitted, st.Succeeded, st.Failed)
	return err
}

// schedulerConfig fills unset values from the scheduler defaults
func schedulerConfig(cfg config.SchedulerConfig) scheduler.Config {
	out := scheduler.DefaultConfig()
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	if cfg.JobTimeout > 0 {
		out.JobTimeout = cfg.JobTimeout
	}
	if cfg.RetryAttempts > 0 {
		out.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		out.RetryDelay = cfg.RetryDelay
	}
	return out
}

// newJobExecutor maps scheduled jobs onto billing service operations. Each
// job gets its own operation id in the logs.
func newJobExecutor(svc *appbilling.BillingService) scheduler.JobExecutor {
	return scheduler.ExecutorFunc(func(ctx context.Context, job *scheduler.Job) error {
		ctx = logger.WithOperationID(ctx, job.ID.String())
		switch job.Kind {
		case scheduler.JobKindSweep:
			_, err := svc.Sweep(ctx)
			return err
		case scheduler.JobKindDailySummary:
			_, err := svc.DailySummary(ctx)
			return err
		default:
			return fmt.Errorf("%w: %q", scheduler.ErrUnknownJobKind, job.Kind)
		}
	})
}
