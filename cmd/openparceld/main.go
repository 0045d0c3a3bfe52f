package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openparcel/openparcel/api"
	"github.com/openparcel/openparcel/api/handler"
	"github.com/openparcel/openparcel/authn"
	_ "github.com/openparcel/openparcel/carrier"
	"github.com/openparcel/openparcel/config"
	"github.com/openparcel/openparcel/driver"
	"github.com/openparcel/openparcel/freshnesscache"
	"github.com/openparcel/openparcel/proxymgr"
	"github.com/openparcel/openparcel/store"
	"github.com/openparcel/openparcel/tracking"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "openparceld: load config:", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("openparceld starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
	)

	ctx := context.Background()

	// ── 3. Connect to Postgres and apply schema ─────────────────────
	db, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		slog.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	// ── 4. Connect to redis (Freshness Cache) ───────────────────────
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	cache := freshnesscache.New(rdb, db, cfg.Redis.TTL)

	// ── 5. Launch the shared browser process ────────────────────────
	drivers, err := driver.NewPool(driver.Config{
		Headless:   cfg.Browser.Headless,
		NoSandbox:  cfg.Browser.NoSandbox,
		BrowserBin: cfg.Browser.BrowserBin,
	})
	if err != nil {
		slog.Error("failed to launch browser", "error", err)
		os.Exit(1)
	}
	defer drivers.Close()

	// ── 6. Wire the Proxy Manager, authn, and tracking services ─────
	proxies := proxymgr.NewManager(db, drivers, cfg.ProxyMgr.AffinityTTL, cfg.ProxyMgr.ProbeTimeout)
	defer proxies.Stop()

	authSvc := authn.NewService(db)

	trackingSvc := tracking.NewService(db, cache, proxies, drivers,
		cfg.Scraper.DefaultTimeout, cfg.Scraper.RefreshTimeout,
		cfg.Pool.MaxConcurrent, cfg.Pool.AdmissionTimeout)

	// ── 7. Setup router ──────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(api.Deps{
		Auth:          authSvc,
		Tracking:      trackingSvc,
		Pool:          trackingSvc.Pool(),
		MaxConcurrent: cfg.Pool.MaxConcurrent,
		Links:         db,
		Parcels:       parcelListerAdapter{db},
		RateLimit:     cfg.RateLimit,
		Mode:          cfg.Server.Mode,
		StartTime:     startTime,
	}, slog.Default())

	// ── 8. Start HTTP server ─────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 9. Graceful shutdown ──────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// drivers.Close() and proxies.Stop() run via defer.
	slog.Info("openparceld stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// parcelListerAdapter adapts *store.Store's concrete row type to
// handler.ParcelLister's interface so the handler package never needs
// to import store directly.
type parcelListerAdapter struct {
	store *store.Store
}

func (a parcelListerAdapter) ListParcelsForUser(ctx context.Context, userID int64, offset, limit int) ([]handler.ParcelRow, int, error) {
	rows, total, err := a.store.ListParcelsForUser(ctx, userID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]handler.ParcelRow, len(rows))
	for i, r := range rows {
		out[i] = handler.ParcelRow{UserParcelLink: r.UserParcelLink, Parcel: r.Parcel, LatestStatus: r.LatestStatus}
	}
	return out, total, nil
}
