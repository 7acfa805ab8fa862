// Package web serves the codec over HTTP and streams codec events to
// websocket listeners.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/tonelink/internal/log"
	"github.com/teslashibe/tonelink/internal/observe"
	"github.com/teslashibe/tonelink/pkg/codec"
	"github.com/teslashibe/tonelink/pkg/hub"
	"github.com/teslashibe/tonelink/pkg/protocol"
)

// recentEvents bounds the replay buffer served by /api/events.
const recentEvents = 100

// Config holds server settings.
type Config struct {
	Addr        string
	OutputDir   string
	Concurrency int
}

// Server is the HTTP codec service
type Server struct {
	app      *fiber.App
	cfg      Config
	registry *codec.Registry
	events   *hub.Hub
	logger   *slog.Logger
	metrics  *observe.Metrics
	scrape   http.Handler

	codecsMu sync.Mutex
	codecs   map[string]*codec.Codec

	recent   []*protocol.Message
	recentMu sync.RWMutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler sets the handler behind GET /metrics. Defaults to the
// default Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.scrape = h }
}

// NewServer creates a server resolving presets through registry.
func NewServer(cfg Config, registry *codec.Registry, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		codecs:   make(map[string]*codec.Codec),
		recent:   make([]*protocol.Message, 0, recentEvents),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = log.L()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.scrape == nil {
		s.scrape = observe.Handler()
	}
	if s.cfg.Concurrency < 1 {
		s.cfg.Concurrency = 1
	}
	s.events = hub.New("events", s.logger)

	app := fiber.New(fiber.Config{
		AppName:               "tonelink",
		DisableStartupMessage: true,
		BodyLimit:             1 << 20,
	})

	app.Use(cors.New())
	app.Use(s.observeRequests)

	app.Get("/metrics", adaptor.HTTPHandler(s.scrape))

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/presets", s.handlePresets)
	api.Get("/events", s.handleRecentEvents)
	api.Post("/encode", s.handleEncode)
	api.Post("/decode", s.handleDecode)
	api.Post("/frames", s.handleFrames)
	api.Post("/batch", s.handleBatch)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Events returns the event hub.
func (s *Server) Events() *hub.Hub {
	return s.events
}

// Start listens on the configured address until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the hub and serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.events.Run(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// codecFor resolves and caches a codec for the named preset.
func (s *Server) codecFor(name string) (*codec.Codec, error) {
	if name == "" {
		name = codec.NameTelemetry
	}
	cfg, err := s.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	s.codecsMu.Lock()
	defer s.codecsMu.Unlock()
	if c, ok := s.codecs[cfg.Name]; ok {
		return c, nil
	}
	c, err := codec.New(cfg, codec.WithLogger(s.logger), codec.WithMetrics(s.metrics))
	if err != nil {
		return nil, err
	}
	s.codecs[cfg.Name] = c
	return c, nil
}

// publish records msg for replay and broadcasts it to listeners.
func (s *Server) publish(msg *protocol.Message) {
	s.recentMu.Lock()
	s.recent = append(s.recent, msg)
	if len(s.recent) > recentEvents {
		s.recent = s.recent[1:]
	}
	s.recentMu.Unlock()

	if err := s.events.BroadcastEvent(msg); err != nil {
		s.logger.Warn("broadcast failed", "type", msg.Type, "error", err)
	}
}
