package http

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	DBStatus  string    `json:"db_status"`
}

// HealthIndexAction handles the health check endpoint
func (h *Handler) HealthIndexAction(c *fiber.Ctx) error {
	dbStatus := "ok"

	if h.db == nil {
		dbStatus = "error"
		h.logger.Error("Database connection unavailable")
	} else if err := h.db.Ping(c.UserContext()); err != nil {
		dbStatus = "error"
		h.logger.Error("Database ping failed", slog.Any("error", err))
	}

	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		DBStatus:  dbStatus,
	}

	if dbStatus != "ok" {
		health.Status = "degraded"
	}

	return c.JSON(health)
}
