package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"city_ingest/internal/api"
	"city_ingest/internal/app"
	"city_ingest/internal/cache"
	"city_ingest/internal/config"
	"city_ingest/internal/db"
	"city_ingest/internal/schedule"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file",
		Value:   "config.yaml",
		Sources: cli.EnvVars("CITY_INGEST_CONFIG"),
	}

	cmd := &cli.Command{
		Name:  "city_ingest",
		Usage: "Scheduled multi-source ingestion of municipal listings",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the recurring-job scheduler",
				Flags:  []cli.Flag{configFlag},
				Action: runServe,
			},
			{
				Name:  "ingest",
				Usage: "Run one ingestion pass and print the summary",
				Flags: []cli.Flag{
					configFlag,
					&cli.BoolFlag{Name: "clear", Usage: "Delete previously ingested records first"},
					&cli.BoolFlag{Name: "force", Usage: "Bypass conditional-fetch shortcuts"},
					&cli.StringSliceFlag{Name: "sources", Usage: "Subset of source names to run"},
				},
				Action: runIngest,
			},
			{
				Name:   "stats",
				Usage:  "Print store totals and schedule state",
				Flags:  []cli.Flag{configFlag},
				Action: runStats,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// setup builds the shared pipeline pieces from config.
func setup(path string) (*config.Config, *app.Orchestrator, *schedule.Board, *db.MongoDB, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	store, err := db.NewMongoDB(cfg.DB)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init store: %w", err)
	}

	var inv cache.Invalidator = cache.Noop{}
	if cfg.Cache.PurgeURL != "" {
		inv = cache.NewHTTPInvalidator(cfg.Cache.PurgeURL)
	}

	board, err := schedule.NewBoard(cfg.Jobs, cfg.CivicLocation(), time.Now)
	if err != nil {
		store.Close()
		return nil, nil, nil, nil, fmt.Errorf("init schedule: %w", err)
	}

	orch, err := app.FromConfig(cfg, store, inv, board)
	if err != nil {
		store.Close()
		return nil, nil, nil, nil, fmt.Errorf("init orchestrator: %w", err)
	}

	return cfg, orch, board, store, nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, orch, board, store, err := setup(cmd.String("config"))
	if err != nil {
		return err
	}
	defer store.Close()

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: api.NewRouter(orch),
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting HTTP server", "address", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		board.Loop(gCtx, 30*time.Second, func(ctx context.Context, spec schedule.JobSpec) {
			summary, err := orch.Trigger(ctx, app.Options{Sources: spec.Sources})
			if err != nil {
				slog.Error("scheduled run failed", "job", spec.Kind, "err", err)
				return
			}
			slog.Info("scheduled run finished",
				"job", spec.Kind, "new", summary.New, "updated", summary.Updated,
				"errors", len(summary.Errors))
		})
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			slog.Info("received shutdown signal", "signal", sig.String())
		case <-gCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "err", err)
		}
		return nil
	})

	return g.Wait()
}

func runIngest(ctx context.Context, cmd *cli.Command) error {
	_, orch, _, store, err := setup(cmd.String("config"))
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := orch.Trigger(ctx, app.Options{
		ClearOldData: cmd.Bool("clear"),
		ForceRefresh: cmd.Bool("force"),
		Sources:      cmd.StringSlice("sources"),
	})
	if err != nil {
		return err
	}

	return printJSON(summary)
}

func runStats(ctx context.Context, cmd *cli.Command) error {
	_, orch, _, store, err := setup(cmd.String("config"))
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := orch.Stats(ctx)
	if err != nil {
		return err
	}

	return printJSON(stats)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
