package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// StatsHandler serves the runtime counters of the service.
type StatsHandler struct {
	provider StatsProvider
	now      func() time.Time
}

func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider, now: time.Now}
}

// HandleStats handles GET /stats. The provider map is returned flat, stamped
// with the time it was taken.
func (h *StatsHandler) HandleStats(c *fiber.Ctx) error {
	out := fiber.Map{}
	if h.provider != nil {
		for k, v := range h.provider.GetStats() {
			out[k] = v
		}
	}
	out["taken_at"] = h.now().UTC().Format(time.RFC3339)
	return c.JSON(out)
}
