// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/pathnote/internal/adminservice"
	"github.com/starford/pathnote/internal/api"
	"github.com/starford/pathnote/internal/auth"
	"github.com/starford/pathnote/internal/inbox"
	"github.com/starford/pathnote/internal/mcpserver"
	"github.com/starford/pathnote/internal/noteservice"
	"github.com/starford/pathnote/internal/password"
	"github.com/starford/pathnote/internal/sse"
	"github.com/starford/pathnote/internal/storage"
	"github.com/starford/pathnote/internal/storage/fsblob"
	"github.com/starford/pathnote/internal/storage/memcache"
	"github.com/starford/pathnote/internal/storage/postgres"
	"github.com/starford/pathnote/internal/storage/rediscache"
	"github.com/starford/pathnote/internal/storage/s3blob"
	"github.com/starford/pathnote/internal/storage/sqlite"
	"github.com/starford/pathnote/internal/telemetry"
)

// statsThrottle is the minimum interval between stats.updated events.
const statsThrottle = 2 * time.Second

// Run starts the HTTP server with the given options and blocks until a
// shutdown signal arrives or ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stdout)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(app.logOutput, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("runtime", cfg.Runtime),
		slog.Bool("admin_enabled", cfg.Admin.Enabled()),
		slog.String("inbox_path", cfg.Inbox.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close(logger)

	// The broker needs the admin stats and the services need the broker,
	// so stats are resolved through admin once it exists.
	var admin *adminservice.Service
	broker := sse.NewBroker(statsThrottle, sse.WithStats(func(ctx context.Context) (any, error) {
		return admin.Stats(ctx)
	}))
	defer broker.Close()

	notes, admin, err := newServices(cfg, b, broker, logger)
	if err != nil {
		return err
	}

	var limiter *api.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = api.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	}

	router := api.NewRouter(api.Deps{
		Notes:   notes,
		Admin:   admin,
		Ready:   b.notes.Ping,
		Events:  broker,
		Limiter: limiter,
	})

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Inbox.Path != "" {
		g.Go(func() error {
			if err := inbox.Watch(gCtx, cfg.Inbox.Path, admin, logger, nil); err != nil {
				return fmt.Errorf("inbox: %w", err)
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		if err := notes.Wait(shutdownCtx); err != nil {
			logger.Warn("pending view updates dropped", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group so the inbox watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the MCP tools over stdin/stdout until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stderr)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(app.logOutput, cfg.App.LogLevel)
	slog.SetDefault(logger)

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.close(logger)

	notes, admin, err := newServices(cfg, b, nil, logger)
	if err != nil {
		return err
	}
	defer func() {
		waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = notes.Wait(waitCtx)
	}()

	logger.Info("MCP server starting", slog.String("runtime", cfg.Runtime))
	return mcpserver.New(notes, admin, app.version).ServeStdio()
}

func newApplication(opts []Option, defaultOutput io.Writer) (*application, error) {
	app := &application{version: "dev", logOutput: defaultOutput}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// backends is the adapter triple selected by the runtime.
type backends struct {
	notes storage.NoteStore
	cache storage.Cache
	blobs storage.BlobStore
}

func openBackends(ctx context.Context, cfg *Config) (*backends, error) {
	switch cfg.Runtime {
	case RuntimeEdge:
		return openEdge(ctx, cfg.Edge)
	default:
		return openLocal(cfg.Local)
	}
}

func openLocal(cfg LocalConfig) (*backends, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	notes, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("init sqlite: %w", err)
	}
	blobs, err := fsblob.New(cfg.BlobDir)
	if err != nil {
		notes.Close()
		return nil, fmt.Errorf("init blob dir: %w", err)
	}
	return &backends{notes: notes, cache: memcache.New(cfg.CacheCapacity), blobs: blobs}, nil
}

func openEdge(ctx context.Context, cfg EdgeConfig) (*backends, error) {
	notes, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	cache, err := rediscache.Open(ctx, rediscache.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
	})
	if err != nil {
		notes.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}
	blobs, err := s3blob.Open(ctx, s3blob.Options{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
		Prefix:    cfg.S3.Prefix,
	})
	if err != nil {
		cache.Close()
		notes.Close()
		return nil, fmt.Errorf("init s3: %w", err)
	}
	return &backends{notes: notes, cache: cache, blobs: blobs}, nil
}

func (b *backends) close(logger *slog.Logger) {
	if err := b.cache.Close(); err != nil {
		logger.Warn("cache close failed", slog.String("error", err.Error()))
	}
	if err := b.notes.Close(); err != nil {
		logger.Warn("note store close failed", slog.String("error", err.Error()))
	}
}

// newServices wires the note and admin services. A nil broker disables
// live admin events.
func newServices(cfg *Config, b *backends, broker *sse.Broker, logger *slog.Logger) (*noteservice.Service, *adminservice.Service, error) {
	rules := cfg.Notes.PathRules()
	hasher := password.NewBcrypt(cfg.Notes.BcryptCost)

	noteOpts := []noteservice.Option{
		noteservice.WithHasher(hasher),
		noteservice.WithPathRules(rules),
		noteservice.WithLogger(logger),
	}
	if cfg.Notes.ViewTimeout > 0 {
		noteOpts = append(noteOpts, noteservice.WithBackgroundTimeout(cfg.Notes.ViewTimeout))
	}
	adminOpts := []adminservice.Option{
		adminservice.WithCredentials(auth.Credentials{
			Username: cfg.Admin.Username,
			Password: cfg.Admin.Password,
		}),
		adminservice.WithHasher(hasher),
		adminservice.WithPathRules(rules),
		adminservice.WithLogger(logger),
	}
	if broker != nil {
		noteOpts = append(noteOpts, noteservice.WithPublisher(broker))
		adminOpts = append(adminOpts, adminservice.WithPublisher(broker))
	}

	secret, err := jwtSecret(cfg.Admin, logger)
	if err != nil {
		return nil, nil, err
	}

	notes := noteservice.New(b.notes, b.cache, noteOpts...)
	admin := adminservice.New(b.notes, b.blobs, notes,
		auth.NewTokens(secret, cfg.Admin.TokenTTL), adminOpts...)
	return notes, admin, nil
}

// jwtSecret returns the configured signing secret, or a random one when
// none is set.
func jwtSecret(cfg AdminConfig, logger *slog.Logger) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	if cfg.Enabled() {
		logger.Warn("admin.jwt_secret not set; using a random secret, sessions end on restart")
	}
	return secret, nil
}
