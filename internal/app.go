// Package internal wires the attribution dashboard together
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"attribly/internal/attribution"
	"attribly/internal/cache"
	"attribly/internal/channels"
	"attribly/internal/config"
	"attribly/internal/database"
	"attribly/internal/http"
	"attribly/internal/metrics"
	"attribly/internal/report"
	"attribly/internal/store"
)

// Application holds the running dashboard API and everything it owns.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.DBManager
	Cache     cache.Cache
	Reports   *report.Service
	Server    *fiber.App
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig connects to the configured database and builds the application.
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	app, err := NewAppWithDB(cfg, logger, dbManager)
	if err != nil {
		dbManager.Close()
		return nil, err
	}
	return app, nil
}

// NewAppWithDB builds the application on an initialized database manager.
func NewAppWithDB(cfg *config.Config, logger *slog.Logger, dbManager *database.DBManager) (*Application, error) {
	metrics.Init()

	registry, err := channels.Default()
	if err != nil {
		return nil, fmt.Errorf("failed to load channel registry: %w", err)
	}

	source := store.New(dbManager.GetConnection(), store.WithYouTubeFetchDate(cfg.YouTubeFetchDate))
	engine := attribution.NewEngine(source, registry, attribution.Options{
		SiteOrigin:       cfg.SiteOrigin,
		ConversionWindow: cfg.ConversionWindow(),
	}, logger)

	var reportCache cache.Cache = cache.Nop{}
	if cfg.CacheEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		redisCache, err := cache.NewRedisCache(ctx, cfg.CacheRedisURL)
		if err != nil {
			// reports still work uncached
			logger.Warn("Report cache unavailable, serving uncached", slog.Any("error", err))
		} else {
			reportCache = redisCache
		}
	}

	reports := report.NewService(engine, reportCache, cfg.CacheTTL(), logger)
	handler := http.NewHandler(reports, dbManager, logger)

	server := fiber.New(fiber.Config{
		AppName:               cfg.GetAppName(),
		DisableStartupMessage: !cfg.IsDevelopment(),
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          2 * time.Minute,
		ErrorHandler:          errorHandler(logger),
	})
	MountAppRoutes(server, cfg, handler, logger)

	return &Application{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Cache:     reportCache,
		Reports:   reports,
		Server:    server,
	}, nil
}

// errorHandler keeps fiber's own errors (404 on unknown routes, 405) in the
// same {"error": ...} shape as the report handlers.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal server error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			logger.Error("Unhandled request error", slog.String("path", c.Path()), slog.Any("error", err))
		}

		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}

// Start serves HTTP until the server is shut down.
func (a *Application) Start() error {
	addr := ":" + a.Config.GetPort()
	a.Logger.Info("Starting attribution dashboard",
		slog.String("addr", addr),
		slog.String("environment", a.Config.Environment),
		slog.Bool("cache", a.Config.CacheEnabled()),
		slog.Bool("basic_auth", a.Config.BasicAuthEnabled()))
	return a.Server.Listen(addr)
}

// StartAsync serves HTTP in the background. Listen errors arrive on the returned channel.
func (a *Application) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Start()
	}()
	return errCh
}

// Shutdown stops accepting requests, waits for in-flight ones, then releases
// the cache and the database pool.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Server.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http server: %w", err))
	}
	if err := a.Cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("report cache: %w", err))
	}
	if err := a.DBManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database: %w", err))
	}

	a.Logger.Info("Attribution dashboard stopped")
	return errors.Join(errs...)
}
