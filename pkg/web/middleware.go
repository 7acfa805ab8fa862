package web

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// observeRequests records request latency by route.
func (s *Server) observeRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
	}
	path := c.Path()
	if r := c.Route(); r != nil && r.Path != "" {
		path = r.Path
	}

	s.metrics.HTTPRequestDuration.Record(c.UserContext(), time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("method", c.Method()),
			attribute.String("path", path),
			attribute.String("status", strconv.Itoa(status)),
		))
	return err
}
