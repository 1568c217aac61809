package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"attribly/internal/metrics"
)

// RequestLogger logs every request once it completes and counts it by route.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		route := c.Route().Path
		metrics.ObserveRequest(route, status)

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("Request failed", append(attrs, slog.Any("error", err))...)
		} else {
			logger.Info("Request completed", attrs...)
		}
		return err
	}
}
