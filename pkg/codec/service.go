package codec

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/teslashibe/tonelink/internal/log"
	"github.com/teslashibe/tonelink/internal/observe"
)

// Codec binds a validated Config to a logger and metrics for use by
// long-running services. It holds no per-call state and is safe for
// concurrent use.
type Codec struct {
	cfg     Config
	logger  *slog.Logger
	metrics *observe.Metrics
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger. Defaults to the global logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) {
		c.logger = l
	}
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Codec) {
		c.metrics = m
	}
}

// New validates cfg and returns a Codec.
func New(cfg Config, opts ...Option) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Codec{cfg: cfg.Clone()}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = log.L()
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.logger = c.logger.With("preset", cfg.Name)
	return c, nil
}

// Config returns a copy of the codec's config.
func (c *Codec) Config() Config {
	return c.cfg.Clone()
}

// Encode is Encode bound to the codec's config.
func (c *Codec) Encode(ctx context.Context, values []float64) (*Result, error) {
	start := time.Now()
	res, err := Encode(c.cfg, values)
	if err != nil {
		c.logger.Warn("encode failed", "values", values, "error", err)
		return nil, err
	}
	c.record(ctx, res, start)
	if res.AnySaturated() {
		c.logger.Warn("payload saturated", "values", values, "saturated", res.Saturated)
	}
	return res, nil
}

// EncodeRaw is EncodeRaw bound to the codec's config.
func (c *Codec) EncodeRaw(ctx context.Context, payload uint64) (*Result, error) {
	start := time.Now()
	res, err := EncodeRaw(c.cfg, payload)
	if err != nil {
		c.logger.Warn("encode failed", "payload", payload, "error", err)
		return nil, err
	}
	c.record(ctx, res, start)
	return res, nil
}

// Decode is Decode bound to the codec's config.
func (c *Codec) Decode(ctx context.Context, b []byte) (*Decoded, error) {
	d, err := Decode(c.cfg, b)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
	case !d.WakeOK:
		status = "wake_mismatch"
	case !d.ChecksumOK:
		status = "checksum_mismatch"
	}
	c.metrics.FramesDecoded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("preset", c.cfg.Name),
		attribute.String("status", status),
	))
	if err != nil {
		return nil, err
	}

	if status != "ok" {
		c.logger.Debug("frame rejected", "status", status, "data", d.Data, "checksum", d.Checksum, "expected", d.Expected)
	}
	return d, nil
}

func (c *Codec) record(ctx context.Context, res *Result, start time.Time) {
	preset := metric.WithAttributes(attribute.String("preset", c.cfg.Name))
	c.metrics.FramesEncoded.Add(ctx, 1, preset)
	c.metrics.SamplesGenerated.Add(ctx, int64(len(res.Samples)), preset)
	for _, s := range res.Saturated {
		if s {
			c.metrics.SaturatedValues.Add(ctx, 1, preset)
		}
	}
	c.metrics.EncodeDuration.Record(ctx, time.Since(start).Seconds(), preset)

	c.logger.Debug("frame encoded",
		"frame", res.Frame.BitString(),
		"samples", len(res.Samples),
		"bytes", len(res.Audio),
	)
}
