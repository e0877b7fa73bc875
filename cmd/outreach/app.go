package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"outreach/internal/config"
	"outreach/internal/db"
	"outreach/internal/jobs"
	"outreach/internal/logx"
	"outreach/internal/outreach"
	"outreach/internal/prefs"
)

// app is the wired service graph shared by the commands.
type app struct {
	cfg      config.Config
	log      zerolog.Logger
	db       *gorm.DB
	registry *prometheus.Registry

	prefs   *prefs.Service
	jobs    *jobs.Service
	worker  *jobs.Worker
	sweeper *jobs.Sweeper
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logx.New(cfg.LogLevel, cfg.LogFormat)

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return newApp(cfg, log, gdb), nil
}

func newApp(cfg config.Config, log zerolog.Logger, gdb *gorm.DB) *app {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := jobs.NewMetrics(reg)

	sc := cfg.Scheduler
	store := &jobs.Repo{DB: gdb}
	prefsSvc := &prefs.Service{DB: gdb}
	tracker := jobs.NewTracker(sc.MaxConcurrent, sc.StaleThreshold)

	schedLog := log.With().Str("component", "scheduler").Logger()
	sweeper := &jobs.Sweeper{
		Store:     store,
		Threshold: sc.StaleThreshold,
		Metrics:   metrics,
		Log:       schedLog,
	}
	executor := &jobs.Executor{
		Store: store,
		Prefs: prefsSvc,
		Processor: &outreach.Processor{
			Prefs:    prefsSvc,
			Notifier: outreach.LogNotifier{Log: log.With().Str("component", "notifier").Logger()},
			Log:      log,
		},
		Tracker: tracker,
		Policy:  jobs.RetryPolicy{Backoff: sc.RetryBackoff, MaxRetries: sc.MaxRetries},
		Metrics: metrics,
		Log:     schedLog,
	}
	worker := &jobs.Worker{
		Store:     store,
		Tracker:   tracker,
		Sweeper:   sweeper,
		Executor:  executor,
		Interval:  sc.PollInterval,
		BatchSize: sc.BatchSize,
		Metrics:   metrics,
		Log:       schedLog,
	}
	jobsSvc := &jobs.Service{
		Store:  store,
		Prefs:  prefsSvc,
		Worker: worker,
		Log:    schedLog,
	}
	prefsSvc.Jobs = jobsSvc

	return &app{
		cfg:      cfg,
		log:      log,
		db:       gdb,
		registry: reg,
		prefs:    prefsSvc,
		jobs:     jobsSvc,
		worker:   worker,
		sweeper:  sweeper,
	}
}
