package http

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"attribly/internal/attribution"
	"attribly/internal/report"
	"attribly/internal/timeframe"
)

const (
	errInvalidWindow    = "Invalid time window"
	errUnknownChannel   = "Unknown channel"
	errStoreUnavailable = "Analytics database unavailable"
	errInternal         = "Internal server error"
)

// Pinger reports whether the analytics database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the dashboard API.
type Handler struct {
	reports *report.Service
	db      Pinger
	logger  *slog.Logger
	parser  *timeframe.WindowParser
}

func NewHandler(reports *report.Service, db Pinger, logger *slog.Logger, tp ...timeframe.TimeProvider) *Handler {
	return &Handler{
		reports: reports,
		db:      db,
		logger:  logger,
		parser:  timeframe.NewWindowParser(tp...),
	}
}

// requestContext detaches the request from client disconnects; queries run to
// completion once started.
func requestContext(c *fiber.Ctx) context.Context {
	return context.WithoutCancel(c.UserContext())
}

func (h *Handler) window(c *fiber.Ctx) (*timeframe.Window, error) {
	return h.parser.ParseWindow(timeframe.WindowParserParams{
		Start: c.Query("start"),
		End:   c.Query("end"),
		Range: c.Query("range"),
	})
}

// respondError maps domain errors to status codes with a {"error": ...} body.
func (h *Handler) respondError(c *fiber.Ctx, err error) error {
	status, message := fiber.StatusInternalServerError, errInternal
	switch {
	case errors.Is(err, timeframe.ErrInvalidWindow):
		status, message = fiber.StatusBadRequest, errInvalidWindow+": "+err.Error()
	case errors.Is(err, attribution.ErrUnknownChannel):
		status, message = fiber.StatusNotFound, errUnknownChannel
	case errors.Is(err, attribution.ErrStore):
		status, message = fiber.StatusServiceUnavailable, errStoreUnavailable
	}

	if status >= fiber.StatusInternalServerError {
		h.logger.Error("Report request failed", slog.String("path", c.Path()), slog.Any("error", err))
	} else {
		h.logger.Debug("Rejected report request", slog.String("path", c.Path()), slog.Any("error", err))
	}

	return c.Status(status).JSON(fiber.Map{
		"error": message,
	})
}
