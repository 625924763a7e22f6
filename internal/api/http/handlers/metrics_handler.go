package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/mini-inbox/internal/aggregation"
)

// MetricsHandler serves the latest aggregation artifact.
type MetricsHandler struct {
	reader *aggregation.Reader
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(reader *aggregation.Reader) *MetricsHandler {
	return &MetricsHandler{reader: reader}
}

// GetMetrics GET /metrics. A missing artifact is reported in the body, not as a failure.
func (h *MetricsHandler) GetMetrics(c *fiber.Ctx) error {
	data, err := h.reader.Latest(c.UserContext())
	if errors.Is(err, aggregation.ErrNotComputed) {
		return c.JSON(fiber.Map{"error": "not yet processed"})
	}
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(data)
}
