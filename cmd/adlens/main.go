// Command adlens is the competitive ad intelligence server.
//
// Usage:
//
//	adlens                                  # serve HTTP on :8086
//	adlens -config adlens.yaml              # serve with a YAML config
//	adlens -url https://smileclinic.com     # one-shot collection to stdout
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/adlens/adlens/dbopen"
	"github.com/adlens/adlens/harvest"
	"github.com/adlens/adlens/intel"
	intelstore "github.com/adlens/adlens/intel/store"
	"github.com/adlens/adlens/queue"
	"github.com/adlens/adlens/shield"
)

func main() {
	configPath := flag.String("config", "", "path to adlens.yaml config file")
	oneShotURL := flag.String("url", "", "collect intelligence for a single URL and exit")
	quick := flag.Bool("quick", false, "with -url: scan the primary keyword only")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *oneShotURL, *quick); err != nil {
		logger.Error("adlens: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, oneShotURL string, quick bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if p := os.Getenv("PORT"); p != "" {
		cfg.Server.Port = p
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	svc := intel.New(st, newScraper(cfg, logger), intel.Config{
		Freshness: cfg.Cache.Freshness,
		Harvest: harvest.Config{
			MaxAdsPerKeyword: cfg.Harvest.MaxAdsPerKeyword,
			SearchDelay:      cfg.Harvest.SearchDelay,
			SearchTimeout:    cfg.Harvest.SearchTimeout,
		},
	}, logger)
	defer svc.Close()

	if oneShotURL != "" {
		return runOnce(ctx, svc, oneShotURL, quick)
	}

	var notifier queue.Notifier = queue.LogNotifier{Logger: logger}
	if cfg.Notify.Webhook != "" {
		notifier = queue.NewWebhookNotifier(cfg.Notify.Webhook, logger)
	}
	jobs := queue.New(svc, queue.Config{MaxConcurrent: cfg.Queue.MaxConcurrent}, logger,
		queue.WithNotifier(notifier))
	defer jobs.Close()

	// Optional MCP over stdio, alongside HTTP.
	if env("MCP_TRANSPORT", "") == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "adlens",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		jobs.RegisterMCP(mcpSrv)

		go func() {
			logger.Info("mcp stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("mcp stdio", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(svc, jobs),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Minute, // synchronous collection can run long
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "store", cfg.Store.Backend, "scraper", cfg.Scraper.Engine)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

func runOnce(ctx context.Context, svc *intel.Service, url string, quick bool) error {
	res, err := svc.GetOrCreate(ctx, url, intel.Options{QuickScan: quick})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func openStore(cfg *fileConfig) (intelstore.Store, error) {
	switch cfg.Store.Backend {
	case "sqlite":
		db, err := dbopen.Open(cfg.Store.Path, dbopen.WithMkdirAll())
		if err != nil {
			return nil, err
		}
		return intelstore.NewSQLite(db)
	case "redis":
		return intelstore.NewRedis(cfg.Store.URL, cfg.Store.TTL)
	default:
		return intelstore.NewMemory(), nil
	}
}

func newScraper(cfg *fileConfig, logger *slog.Logger) harvest.Scraper {
	if cfg.Scraper.Engine == "http" {
		return harvest.NewHTTPScraper(harvest.HTTPConfig{
			URLTemplate: cfg.Scraper.URLTemplate,
			Timeout:     cfg.Scraper.Timeout,
			MaxAds:      cfg.Harvest.MaxAdsPerKeyword,
		}, logger)
	}
	rc := harvest.RodConfig{
		URLTemplate: cfg.Scraper.URLTemplate,
		MaxAds:      cfg.Harvest.MaxAdsPerKeyword,
	}
	rc.Browser.RemoteURL = cfg.Scraper.RemoteBrowser
	return harvest.NewRodScraper(rc, logger)
}

func newRouter(svc *intel.Service, jobs *queue.Queue) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	for _, mw := range shield.Stack() {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Synchronous collection. Blocks until the pipeline finishes on a
	// cache miss.
	r.Post("/api/intelligence", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			URL          string `json:"url"`
			ForceRefresh bool   `json:"force_refresh"`
			QuickScan    bool   `json:"quick_scan"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if body.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
			return
		}
		res, err := svc.GetOrCreate(req.Context(), body.URL, intel.Options{
			ForceRefresh: body.ForceRefresh,
			QuickScan:    body.QuickScan,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				URL      string `json:"url"`
				Customer string `json:"customer"`
				Priority string `json:"priority"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if body.URL == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
				return
			}
			prio, err := queue.ParsePriority(body.Priority)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			job, err := jobs.Enqueue(body.URL, body.Customer, prio)
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, err)
				return
			}
			writeJSON(w, http.StatusAccepted, job)
		})

		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, jobs.List())
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			job, err := jobs.GetStatus(chi.URLParam(req, "id"))
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, job)
		})

		r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			if err := jobs.Cancel(id); err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			job, err := jobs.GetStatus(id)
			if err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, job)
		})
	})

	r.Get("/api/stats", func(w http.ResponseWriter, req *http.Request) {
		stats, err := svc.Stats(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	return r
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
