// Package app assembles the engine from configuration. The CLI commands and
// the HTTP server share one App so a manual run and a scheduled run go through
// the same wiring.
package app

import (
	"context"
	"fmt"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/pratik-mahalle/costwatch/internal/api/handlers"
	"github.com/pratik-mahalle/costwatch/internal/api/router"
	"github.com/pratik-mahalle/costwatch/internal/cache"
	"github.com/pratik-mahalle/costwatch/internal/config"
	"github.com/pratik-mahalle/costwatch/internal/domain/notification"
	"github.com/pratik-mahalle/costwatch/internal/pkg/logger"
	"github.com/pratik-mahalle/costwatch/internal/providers"
	"github.com/pratik-mahalle/costwatch/internal/repository/postgres"
	"github.com/pratik-mahalle/costwatch/internal/services"
	"github.com/pratik-mahalle/costwatch/migrations"
)

// App holds the wired engine
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *postgres.DB

	Costs           *postgres.CostRepository
	Alerts          *services.AlertManager
	Recommendations *services.RecommendationService
	Settings        *services.SettingsService
	Analysis        *services.AnalysisService
	Collector       *services.CollectorService
	Jobs            *services.JobService

	closers []func() error
}

// New connects to the store, applies pending migrations and builds every
// service. Optional integrations that fail to initialise are logged and
// left out rather than failing startup.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := postgres.New(cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: log, DB: db}
	a.closers = append(a.closers, db.Close)

	applied, err := postgres.RunMigrations(ctx, db, migrations.GetFS())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	for _, name := range applied {
		log.WithFields(map[string]interface{}{"migration": name}).Info("Applied migration")
	}

	a.Costs = postgres.NewCostRepository(db)
	alertRepo := postgres.NewAlertRepository(db)
	recRepo := postgres.NewRecommendationRepository(db)

	dispatcher := a.dispatcher(ctx)

	var opts []services.AlertManagerOption
	if cfg.Redis.Enabled {
		lock, err := cache.NewDedupLock(ctx, cfg.Redis)
		if err != nil {
			log.WarnWithErr(err, "Redis dedup lock unavailable, relying on the store")
		} else {
			a.closers = append(a.closers, lock.Close)
			opts = append(opts, services.WithLocker(lock))
		}
	}

	a.Alerts = services.NewAlertManager(alertRepo, dispatcher, cfg.Engine.DedupWindow, cfg.Engine.AlertTTL, log, opts...)
	a.Recommendations = services.NewRecommendationService(recRepo, log)
	a.Settings = services.NewSettingsService(postgres.NewSettingsRepository(db), cfg.Engine.SettingsFile, log)

	deps := services.AnalysisDeps{
		Costs:           a.Costs,
		Recommendations: recRepo,
		Reports:         postgres.NewReportRepository(db),
		Settings:        a.Settings,
		Alerts:          a.Alerts,
		Dispatcher:      dispatcher,
		Engine:          cfg.Engine,
		Logger:          log,
	}
	if archiver := a.archiver(ctx); archiver != nil {
		deps.Archiver = archiver
	}
	a.Analysis = services.NewAnalysisService(deps)

	if sources := a.sources(ctx); len(sources) > 0 {
		a.Collector = services.NewCollectorService(a.Costs, sources, cfg.Collectors.LookbackDays, log)
	}

	a.Jobs = services.NewJobService(postgres.NewJobRepository(db), a.Analysis, a.Collector, a.Alerts, cfg.Schedule, log)
	return a, nil
}

// Handler builds the operator API. stop releases its background workers.
func (a *App) Handler() (http.Handler, func()) {
	return router.New(a.Config, a.Logger, &router.Handlers{
		Health:         handlers.NewHealthHandler(a.Costs, a.Logger),
		Alert:          handlers.NewAlertHandler(a.Alerts, a.Logger),
		Recommendation: handlers.NewRecommendationHandler(a.Recommendations, a.Logger),
		Run:            handlers.NewRunHandler(a.Jobs, a.Config.Server.WriteTimeout, a.Logger),
	})
}

// Close releases every resource New opened, newest first
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// dispatcher fans out to every configured transport. With none configured
// notifications go to the log.
func (a *App) dispatcher(ctx context.Context) notification.Dispatcher {
	cfg := a.Config.Notification
	var out []notification.Dispatcher

	if cfg.SlackWebhookURL != "" {
		out = append(out, services.NewSlackDispatcher(cfg.SlackWebhookURL, a.Logger))
	}

	topics := map[notification.Channel]string{}
	for _, ch := range []notification.Channel{
		notification.ChannelAlerts, notification.ChannelAnomalies,
		notification.ChannelBudget, notification.ChannelReports,
	} {
		if arn := cfg.TopicFor(string(ch)); arn != "" {
			topics[ch] = arn
		}
	}
	if len(topics) > 0 {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			a.Logger.WarnWithErr(err, "SNS dispatcher disabled")
		} else {
			out = append(out, services.NewSNSDispatcher(sns.NewFromConfig(awsCfg), topics, a.Logger))
		}
	}

	switch len(out) {
	case 0:
		return services.NewLogDispatcher(a.Logger)
	case 1:
		return out[0]
	default:
		return services.NewMultiDispatcher(out...)
	}
}

func (a *App) archiver(ctx context.Context) *services.S3ReportArchiver {
	cfg := a.Config.Notification
	if cfg.ReportBucket == "" {
		return nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		a.Logger.WarnWithErr(err, "Report archiving disabled")
		return nil
	}
	return services.NewS3ReportArchiver(s3.NewFromConfig(awsCfg), cfg.ReportBucket, cfg.ReportPrefix, a.Logger)
}

func (a *App) sources(ctx context.Context) []providers.CostSource {
	cfg := a.Config.Collectors
	var out []providers.CostSource

	if cfg.AWSEnabled {
		src, err := providers.NewAWSCostSource(ctx, cfg)
		if err != nil {
			a.Logger.WarnWithErr(err, "AWS billing source disabled")
		} else {
			out = append(out, src)
		}
	}
	if cfg.GCPEnabled {
		src, err := providers.NewGCPCostSource(ctx, cfg)
		if err != nil {
			a.Logger.WarnWithErr(err, "GCP billing source disabled")
		} else {
			a.closers = append(a.closers, src.Close)
			out = append(out, src)
		}
	}
	if cfg.AzureEnabled {
		src, err := providers.NewAzureCostSource(cfg)
		if err != nil {
			a.Logger.WarnWithErr(err, "Azure billing source disabled")
		} else {
			out = append(out, src)
		}
	}
	return out
}
