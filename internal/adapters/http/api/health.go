package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/tapbattle/pkg/metrics"
)

const pingTimeout = 2 * time.Second

// HealthHandler handles health check and metrics requests.
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler creates a new health handler. A nil store is always healthy.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// HandleHealth handles GET /healthz. It answers 503 when the store is unreachable.
func (h *HealthHandler) HandleHealth(c *fiber.Ctx) error {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), pingTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"store":  "down",
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ok", "store": "up"})
}

// HandleMetrics serves the Prometheus registry.
func (h *HealthHandler) HandleMetrics() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
}
