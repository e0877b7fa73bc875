package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"outreach/internal/auth"
	"outreach/internal/db"
	httpx "outreach/internal/http"
)

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if migrate {
				if err := db.AutoMigrateAndIndexes(a.db); err != nil {
					return err
				}
			}
			return serve(cmd.Context(), a)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply schema migrations before starting")
	return cmd
}

func serve(parent context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Jobs orphaned by a previous process are released before the first tick.
	if n, err := a.sweeper.Sweep(ctx); err != nil {
		a.log.Error().Err(err).Msg("boot sweep")
	} else if n > 0 {
		a.log.Warn().Int("recovered", n).Msg("boot sweep recovered jobs")
	}

	c := cron.New()
	if _, err := a.sweeper.Every(c, a.cfg.Scheduler.SweepInterval); err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	srv := &http.Server{
		Addr: a.cfg.HTTPAddr,
		Handler: httpx.NewRouter(httpx.Deps{
			Config:  a.cfg,
			DB:      a.db,
			JWT:     auth.NewJWT(a.cfg.JWTSecret),
			Prefs:   a.prefs,
			Jobs:    a.jobs,
			Log:     a.log.With().Str("component", "http").Logger(),
			Metrics: a.registry,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.worker.Run(gctx)
	})
	g.Go(func() error {
		a.log.Info().Str("addr", a.cfg.HTTPAddr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.log.Info().Msg("stopped")
	return err
}
