package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"swift-coupons/internal/cache"
	"swift-coupons/internal/cart"
	"swift-coupons/internal/config"
	"swift-coupons/internal/database"
	"swift-coupons/internal/events"
	"swift-coupons/internal/features"
	"swift-coupons/internal/handler"
	"swift-coupons/internal/middleware"
	"swift-coupons/internal/service"
	tlsconfig "swift-coupons/internal/tls"
	"swift-coupons/internal/tracing"
)

func main() {
	configFile := flag.String("config", "", "Path to a JSON config file")
	port := flag.String("port", "", "Server port (overrides config)")
	dbPath := flag.String("db", "", "Database file path (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
		SampleRatio: cfg.Tracing.SampleRatio,
	}); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	sessions, err := newCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer sessions.Close()

	location, err := time.LoadLocation(cfg.Store.Timezone)
	if err != nil {
		return fmt.Errorf("invalid store timezone: %w", err)
	}

	flags := features.Defaults()
	flags.Apply(cfg.Features)

	bus := events.NewManager(true)
	defer bus.Shutdown()

	svc := service.NewService(service.Options{
		DB:       db,
		Carts:    cart.NewStore(sessions, cfg.Cache.CartTTLDuration()),
		Events:   bus,
		Features: flags,
		Logger:   logger,
		Store: service.StoreConfig{
			Location: location,
			Currency: cfg.Store.Currency,
			CartURL:  cfg.Store.CartURL,
		},
	})

	h := handler.NewHandlerWithOptions(svc, handler.NewHandlerOptions{
		MaxBodySize: cfg.Security.MaxRequestBodySize,
		Logger:      logger,
	})

	r := chi.NewRouter()

	// Order matters: request ids must exist before logging and tracing
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.TracingMiddleware(cfg.Tracing.ServiceName))

	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer limiter.Stop()
		r.Use(middleware.RateLimitMiddleware(limiter))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Security.Origins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", handler.HeaderCustomerID, handler.HeaderCartID},
		ExposedHeaders:   []string{"Link", handler.HeaderCartID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h.Routes(r)

	server := &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Server.EnableTLS {
		tlsCfg := tlsconfig.Config{CertFile: cfg.Server.CertFile, KeyFile: cfg.Server.KeyFile}
		if tlsCfg.SelfSigned() {
			logger.Warn("no certificate files provided, using self-signed certificate for development")
			if cfg.Server.Host != "" {
				tlsCfg.Hosts = []string{cfg.Server.Host}
			}
		}
		server.TLSConfig, err = tlsconfig.LoadTLSConfig(tlsCfg)
		if err != nil {
			return fmt.Errorf("failed to load TLS configuration: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", server.Addr,
			"tls", cfg.Server.EnableTLS,
			"database", cfg.Database.Path,
			"cache", cfg.Cache.Driver,
			"rate_limit", cfg.RateLimit.Rate,
			"rate_window_s", cfg.RateLimit.Window,
		)
		errCh <- serve(server)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// serve listens with server.TLSConfig when set.
func serve(server *http.Server) error {
	if server.TLSConfig == nil {
		return server.ListenAndServe()
	}
	listener, err := tls.Listen("tcp", server.Addr, server.TLSConfig)
	if err != nil {
		return fmt.Errorf("failed to create TLS listener: %w", err)
	}
	return server.Serve(listener)
}

func newCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	if cfg.Driver == config.CacheRedis {
		c, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return cache.NewInMemoryCache(), nil
}
