package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/db"
	orderingHttp "github.com/vasiliy-maslov/qrmenu-ordering/internal/handler/http"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/ordering"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/storage"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/tracker"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/transport"
	"golang.org/x/sync/errgroup"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the ordering HTTP API",
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log.Info().Msg("Ordering service starting...")

	catalog, err := cfg.Ordering.Catalog()
	if err != nil {
		return err
	}
	log.Info().Int("coupons", catalog.Len()).Msg("Coupon catalog loaded")

	durable, err := storage.OpenBolt(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := durable.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close local store")
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := ordering.Deps{
		Durable: durable,
		Cache:   storage.NewCache(cfg.Ordering.HistoryCacheSize, cfg.Ordering.HistoryCacheTTL),
		Catalog: catalog,
	}

	var (
		remote   transport.Pinger
		listener *tracker.Listener
	)
	if cfg.Postgres.Enabled() {
		pg, err := db.New(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pg.Close()

		repo := order.NewRepository(pg.Pool)
		listener = tracker.NewListener(tracker.PoolConnector(pg.Pool), repo)

		deps.Repo = repo
		deps.Remote = listener
		remote = repo
	} else {
		log.Warn().Msg("DB_HOST is not set, orders are placed locally")
	}

	registry := ordering.NewRegistry(deps, cfg.Ordering)
	defer registry.Close()

	router := transport.NewRouter(remote,
		orderingHttp.NewOrderingHandler(registry),
		orderingHttp.NewAdminHandler(registry),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	if listener != nil {
		g.Go(func() error {
			return listener.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}
