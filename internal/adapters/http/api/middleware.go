package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/okian/tapbattle/pkg/metrics"
)

// MetricsMiddleware records request count, duration and error class for endpoint.
func MetricsMiddleware(endpoint string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			// The error handler runs after us; predict its status.
			status = statusOf(err)
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
		}

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		code := strconv.Itoa(status)
		method := c.Method()
		metrics.RecordHTTPRequest(endpoint, method, code)
		metrics.RecordHTTPRequestDuration(endpoint, method, code, durationMs)
		if status >= fiber.StatusBadRequest {
			metrics.RecordErrorByEndpoint(endpoint, method, getErrorType(status))
		}
		return err
	}
}

// getErrorType returns a standardized error type based on HTTP status code.
func getErrorType(statusCode int) string {
	switch {
	case statusCode == fiber.StatusServiceUnavailable:
		return "unavailable"
	case statusCode >= fiber.StatusInternalServerError:
		return "server_error"
	case statusCode == fiber.StatusConflict:
		return "conflict"
	case statusCode == fiber.StatusNotFound:
		return "not_found"
	case statusCode >= fiber.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}
