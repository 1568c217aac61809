package internal

import (
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"attribly/internal/config"
	"attribly/internal/http"
	"attribly/internal/http/middleware"
	"attribly/internal/metrics"
)

// reportCORSConfig lets the dashboard read the API from another origin. The
// API is read-only, so only GET and OPTIONS are allowed.
func reportCORSConfig(cfg *config.Config) cors.Config {
	return cors.Config{
		AllowOrigins: cfg.CORSAllowOrigins,
		AllowMethods: "GET,HEAD,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}
}

// MountAppRoutes registers the report API at the root and again under /api,
// plus health, metrics and the built dashboard when present.
func MountAppRoutes(app *fiber.App, cfg *config.Config, h *http.Handler, logger *slog.Logger) {
	app.Use(middleware.RequestLogger(logger))

	// === OPERATIONAL ROUTES ===
	app.Get("/_health", h.HealthIndexAction)
	app.Head("/_health", h.HealthIndexAction)
	app.Get("/metrics", metrics.MetricsHandler())

	// === REPORT ROUTES ===
	reportMiddleware := []fiber.Handler{cors.New(reportCORSConfig(cfg))}
	if cfg.BasicAuthEnabled() {
		reportMiddleware = append(reportMiddleware,
			middleware.DashboardAuth(cfg.BasicAuthUser, cfg.BasicAuthPasswordHash, logger))
	} else if cfg.IsProduction() {
		logger.Warn("Report API is not protected; set ATTRIBLY_BASIC_AUTH_USER and ATTRIBLY_BASIC_AUTH_PASSWORD_HASH")
	}

	mountReportRoutes(app, "", h, reportMiddleware)
	mountReportRoutes(app, "/api", h, reportMiddleware)

	// === DASHBOARD ASSETS ===
	if dir := cfg.GetPublicDirectory(); dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			app.Static(cfg.GetAssetsPrefix(), dir)
		} else {
			logger.Debug("Dashboard assets not found, skipping static routes", slog.String("dir", dir))
		}
	}
}

// mountReportRoutes attaches the middleware per route rather than per group so
// that health and static routes under the same prefix stay public.
func mountReportRoutes(app *fiber.App, prefix string, h *http.Handler, mw []fiber.Handler) {
	route := func(path string, handler fiber.Handler) {
		handlers := append(append([]fiber.Handler{}, mw...), handler)
		app.Get(prefix+path, handlers...)
		app.Options(prefix+path, handlers...)
	}

	route("/total-users", h.TotalUsersAction)
	route("/totals", h.TotalsAction)
	route("/linkedin", h.ChannelAction("linkedin"))
	route("/youtube", h.ChannelAction("youtube"))
	route("/google", h.ChannelAction("google"))
	route("/brevo", h.ChannelAction("brevo"))
	route("/channels", h.ChannelsIndexAction)
	route("/channels/:channel", h.ChannelRowsAction)
	route("/channels/:channel/summary", h.ChannelSummaryAction)
	route("/overview", h.OverviewAction)
}
