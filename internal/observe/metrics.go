// Package observe provides OpenTelemetry metrics for the codec and the
// HTTP service.
//
// Instruments are created from a [metric.MeterProvider]. [InitProvider]
// installs an SDK provider backed by a Prometheus exporter so the values can
// be scraped from /metrics. Tests should call [NewMetrics] with their own
// provider to avoid cross-test pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope for every tonelink metric.
const meterName = "github.com/teslashibe/tonelink"

// Metrics holds the metric instruments. All fields are safe for concurrent use.
type Metrics struct {
	// FramesEncoded counts encoded frames. Attributes: preset.
	FramesEncoded metric.Int64Counter

	// FramesDecoded counts decoded frames. Attributes: preset, status.
	FramesDecoded metric.Int64Counter

	// SamplesGenerated counts PCM samples produced by the modulator.
	SamplesGenerated metric.Int64Counter

	// SaturatedValues counts payload values clipped during quantization.
	SaturatedValues metric.Int64Counter

	// EncodeDuration tracks the time spent in one encode call.
	EncodeDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP handler latency. Attributes: method, path, status.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesEncoded, err = m.Int64Counter("tonelink.frames.encoded",
		metric.WithDescription("Frames encoded by preset."),
	); err != nil {
		return nil, err
	}
	if met.FramesDecoded, err = m.Int64Counter("tonelink.frames.decoded",
		metric.WithDescription("Frames decoded by preset and status."),
	); err != nil {
		return nil, err
	}
	if met.SamplesGenerated, err = m.Int64Counter("tonelink.samples.generated",
		metric.WithDescription("PCM samples produced by the tone modulator."),
	); err != nil {
		return nil, err
	}
	if met.SaturatedValues, err = m.Int64Counter("tonelink.values.saturated",
		metric.WithDescription("Payload values clipped to the fixed-point range."),
	); err != nil {
		return nil, err
	}
	if met.EncodeDuration, err = m.Float64Histogram("tonelink.encode.duration",
		metric.WithDescription("Latency of one encode call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("tonelink.http.request.duration",
		metric.WithDescription("HTTP request latency by method, path and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a package-level instance bound to the global
// meter provider at the time of the first call.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}
