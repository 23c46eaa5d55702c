package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AngelCh415/adreview/internal/ai"
	"github.com/AngelCh415/adreview/internal/config"
	"github.com/AngelCh415/adreview/internal/httpx"
	"github.com/AngelCh415/adreview/internal/ingest"
	"github.com/AngelCh415/adreview/internal/review"
	"github.com/AngelCh415/adreview/internal/scoring"
	"github.com/AngelCh415/adreview/internal/store"
	"github.com/AngelCh415/adreview/internal/telemetry"
)

type backend interface {
	store.Source
	store.Loader
}

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	st, closeStore, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tables, err := scoring.LoadTables(cfg.ScoringConfigFile)
	if err != nil {
		return err
	}
	resolver := scoring.NewResolver(scoring.DefaultThresholds(), tables)

	metrics := telemetry.New()
	cl := ingest.NewHTTPClient(cfg.HTTPTimeout)
	etl := ingest.NewETL(cl, st, st, logger, cfg)
	if err := seed(ctx, cfg, etl, st, logger); err != nil {
		return err
	}
	if cfg.IngestSchedule != "" && cfg.SnapshotURL != "" {
		if _, err := etl.Schedule(ctx, cfg.IngestSchedule); err != nil {
			return err
		}
		logger.Info("ingest scheduled", slog.String("spec", cfg.IngestSchedule))
	}

	svc := review.NewService(st, resolver, logger)

	var remote ai.Remote
	if cfg.AI.RemoteEnabled && cfg.AI.RedisURL != "" {
		rdb := ai.NewRedisClient(cfg.AI.RedisURL, cfg.AI.RedisPassword)
		defer rdb.Close()
		remote = ai.NewRedisRemote(rdb, cfg.AI.RemoteTimeout, logger)
	}
	cache := ai.NewCache(cfg.AI.CacheTTL, remote, metrics)
	pipeline := ai.NewPipeline(cfg.AI, ai.NewClient(&http.Client{}), svc, cache, logger, metrics)

	r := httpx.NewRouter(logger, httpx.Deps{
		Review:      svc,
		AI:          pipeline,
		ETL:         etl,
		Metrics:     metrics,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting server", slog.String("port", cfg.Port), slog.String("data_source", cfg.DataSource))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger) (backend, func(), error) {
	if cfg.DataSource != "postgres" {
		return store.NewMemoryStore(), func() {}, nil
	}
	db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	pg := store.NewPostgresStore(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	logger.Info("postgres connected")
	return pg, func() { db.Close() }, nil
}

// seed loads SNAPSHOT_FILE, then SNAPSHOT_URL, and falls back to the demo
// data set when the store is still empty.
func seed(ctx context.Context, cfg config.Config, etl *ingest.ETL, st backend, logger *slog.Logger) error {
	if cfg.SnapshotFile != "" {
		if _, err := etl.LoadFile(ctx, cfg.SnapshotFile); err != nil {
			return err
		}
	}
	if cfg.SnapshotURL != "" {
		if _, err := etl.Run(ctx); err != nil {
			logger.Warn("initial ingest failed", slog.String("err", err.Error()))
		}
	}
	first, err := st.FirstAccountID(ctx)
	if err != nil {
		return err
	}
	if first != "" {
		return nil
	}
	stats, err := st.LoadSnapshot(ctx, store.DemoSnapshot(time.Now()))
	if err != nil {
		return err
	}
	logger.Info("demo data loaded", slog.Int("rows", stats.RowsAdded))
	return nil
}
