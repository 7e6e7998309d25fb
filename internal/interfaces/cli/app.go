package cli

import (
	"context"
	"errors"
	"fmt"

	appbilling "github.com/garage/billing/internal/application/billing"
	"github.com/garage/billing/internal/domain/billing"
	"github.com/garage/billing/internal/infrastructure/cache"
	"github.com/garage/billing/internal/infrastructure/config"
	"github.com/garage/billing/internal/infrastructure/event"
	"github.com/garage/billing/internal/infrastructure/logger"
	"github.com/garage/billing/internal/infrastructure/persistence"
	"github.com/garage/billing/internal/infrastructure/storage"
	"github.com/garage/billing/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// App holds the wired billing engine and everything it owns
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Telemetry *telemetry.Providers
	Database  *persistence.Database
	Cache     cache.ViewCache
	Events    *event.InMemoryEventBus
	Service   *appbilling.BillingService
}

// Bootstrap builds the App from cfg. base may be nil, in which case a logger
// is built from cfg.Log. On error everything opened so far is closed.
func Bootstrap(ctx context.Context, cfg *config.Config, base *zap.Logger) (app *App, err error) {
	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close(ctx)
			app = nil
		}
	}()

	if base == nil {
		base, err = logger.New(&logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Output: cfg.Log.Output,
			Fields: map[string]string{"app": cfg.App.Name, "env": cfg.App.Env},
		})
		if err != nil {
			return app, fmt.Errorf("failed to initialize logger: %w", err)
		}
	}
	app.Logger = base

	app.Telemetry, err = telemetry.Setup(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
		ExportInterval:    cfg.Telemetry.ExportInterval,
	}, base)
	if err != nil {
		return app, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	log := app.Telemetry.BridgeLogger(base, zapcore.InfoLevel)
	app.Logger = log

	metrics, err := telemetry.NewBillingMetrics(app.Telemetry.Meter(cfg.Telemetry.ServiceName))
	if err != nil {
		return app, fmt.Errorf("failed to create billing metrics: %w", err)
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.GormLevel),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	app.Database, err = persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return app, err
	}
	if err = telemetry.RegisterDBTracing(app.Database.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem(cfg.Database.Driver),
	}, log); err != nil {
		return app, fmt.Errorf("failed to register database tracing: %w", err)
	}
	if app.Database.Driver() == "sqlite" {
		// postgres schemas are owned by cmd/migrate
		if err = app.Database.AutoMigrate(); err != nil {
			return app, fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}

	store := persistence.NewGormBillingStore(app.Database.DB, persistence.WithDefaultSettings(billing.Settings{
		TaxRate:           cfg.Billing.DefaultTaxRate,
		InvoicePrefix:     cfg.Billing.InvoicePrefix,
		NextInvoiceNumber: billing.DefaultNextInvoiceNumber,
		PaymentTerms:      cfg.Billing.PaymentTerms,
	}))

	app.Cache, err = cache.NewViewCacheFactory(cfg.Redis, cache.WithLogger(log)).CreateCache(ctx)
	if err != nil {
		return app, err
	}

	app.Events = event.NewInMemoryEventBus(log.Named("events"))
	app.Events.Subscribe(event.NewLoggingHandler(log, event.WithPayloads(event.NewBillingEventSerializer())))
	if err = app.Events.Start(ctx); err != nil {
		return app, err
	}

	archive, err := storage.NewDocumentArchive(ctx, cfg.Storage, log)
	if err != nil {
		return app, fmt.Errorf("failed to initialize document archive: %w", err)
	}

	app.Service = appbilling.NewBillingService(store,
		appbilling.WithLogger(log),
		appbilling.WithMetrics(metrics),
		appbilling.WithViewCache(app.Cache),
		appbilling.WithEventPublisher(app.Events),
		appbilling.WithArchive(archive),
		appbilling.WithFormatter(billing.NewFormatter(cfg.Billing.Currency, billing.ParseFormatterLanguage(cfg.Billing.Locale))),
	)

	log.Debug("Billing engine ready",
		zap.String("driver", app.Database.Driver()),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("archive", cfg.Storage.Driver),
		zap.Bool("telemetry", app.Telemetry.IsEnabled()),
	)
	return app, nil
}

// Close releases everything Bootstrap opened, in reverse order
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Stop(ctx))
	}
	if a.Cache != nil {
		errs = append(errs, a.Cache.Close())
	}
	if a.Database != nil {
		if stats, err := a.Database.PoolStats(); err == nil && a.Logger != nil {
			a.Logger.Debug("Closing database",
				zap.Int("open", stats.OpenConnections),
				zap.Int64("wait_count", stats.WaitCount),
				zap.Duration("wait", stats.WaitDuration),
			)
		}
		errs = append(errs, a.Database.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

func dbSystem(driver string) string {
	if driver == "sqlite" {
		return "sqlite"
	}
	return "postgresql"
}
