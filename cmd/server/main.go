package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/tableside/internal/auth"
	"github.com/mmynk/tableside/internal/config"
	"github.com/mmynk/tableside/internal/feed"
	"github.com/mmynk/tableside/internal/feed/amqpfeed"
	"github.com/mmynk/tableside/internal/feed/wsfeed"
	"github.com/mmynk/tableside/internal/middleware"
	"github.com/mmynk/tableside/internal/service"
	"github.com/mmynk/tableside/internal/storage"
	"github.com/mmynk/tableside/internal/storage/postgres"
	"github.com/mmynk/tableside/internal/storage/sqlite"
	"github.com/mmynk/tableside/pkg/api/apiconnect"
	"github.com/mmynk/tableside/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env", ".env", "optional env file")
	flag.Parse()

	if err := run(*envFile); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(envFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	logging.SetupWith(logging.Options{
		Level: logging.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogFormat == "json",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	interceptors := connect.WithInterceptors(
		middleware.MetricsInterceptor(),
		middleware.RequireAuth(jwtManager),
		middleware.LoggingInterceptor(),
	)
	opts := service.Options{
		TaxRate:            cfg.TaxRate,
		MaxConflictRetries: cfg.MaxConflictRetries,
	}

	mux := http.NewServeMux()

	// Register Connect services
	orderPath, orderHandler := apiconnect.NewOrderServiceHandler(service.NewOrderService(store, bus, opts), interceptors)
	mux.Handle(orderPath, orderHandler)

	tablePath, tableHandler := apiconnect.NewTableServiceHandler(service.NewTableService(store, bus, opts), interceptors)
	mux.Handle(tablePath, tableHandler)

	mux.Handle("GET /feed", wsfeed.NewHandler(bus, middleware.FeedVenue(jwtManager)))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	handler := h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{})
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Connect server starting", "address", server.Addr, "url", fmt.Sprintf("http://localhost%s", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		store, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", cfg.DBDriver)
		return store, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		slog.Info("Storage initialized", "driver", cfg.DBDriver, "database", cfg.DBPath)
		return store, nil
	}
}

func openBus(cfg *config.Config) (feed.Bus, error) {
	if cfg.AMQPURL == "" {
		slog.Info("Change feed is in-process")
		return feed.NewLocalBus(feed.DefaultBuffer), nil
	}
	bus, err := amqpfeed.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect change feed: %w", err)
	}
	slog.Info("Change feed connected", "exchange", amqpfeed.Exchange)
	return bus, nil
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser terminals
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
