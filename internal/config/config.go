// Package config provides the service configuration for tonelink commands.
//
// Values come from an optional YAML file, then from TONELINK_* environment
// variables, which take precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/tonelink/internal/log"
	"github.com/teslashibe/tonelink/pkg/codec"
)

// Defaults.
const (
	DefaultListen         = ":8080"
	DefaultLogLevel       = "info"
	DefaultOutputDir      = "."
	DefaultConcurrency    = 4
	DefaultStreamTarget   = "127.0.0.1:5004"
	DefaultPacketDuration = 10 * time.Millisecond
)

// Environment variables that override file values.
const (
	EnvListen       = "TONELINK_LISTEN"
	EnvLogLevel     = "TONELINK_LOG_LEVEL"
	EnvOutputDir    = "TONELINK_OUTPUT_DIR"
	EnvConcurrency  = "TONELINK_CONCURRENCY"
	EnvStreamTarget = "TONELINK_STREAM_TARGET"
)

// Config is the root service configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Output OutputConfig `yaml:"output"`
	Stream StreamConfig `yaml:"stream"`

	// Presets are registered next to the built-in telemetry and literal
	// presets. A preset with a built-in name replaces it.
	Presets []codec.Config `yaml:"presets"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"log_level"`
}

// OutputConfig controls batch WAV output.
type OutputConfig struct {
	Dir         string `yaml:"dir"`
	Concurrency int    `yaml:"concurrency"`
}

// StreamConfig controls the RTP sender.
type StreamConfig struct {
	Target         string        `yaml:"target"`
	PacketDuration time.Duration `yaml:"packet_duration"`
	SSRC           uint32        `yaml:"ssrc"`
}

// Default returns a config with every field at its default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: DefaultListen, LogLevel: DefaultLogLevel},
		Output: OutputConfig{Dir: DefaultOutputDir, Concurrency: DefaultConcurrency},
		Stream: StreamConfig{Target: DefaultStreamTarget, PacketDuration: DefaultPacketDuration},
	}
}

// Load reads the YAML file at path, applies env overrides and validates.
// An empty path yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults, applies env
// overrides and validates. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays TONELINK_* environment variables.
func (c *Config) ApplyEnv() {
	c.Server.Listen = envOr(EnvListen, c.Server.Listen)
	c.Server.LogLevel = envOr(EnvLogLevel, c.Server.LogLevel)
	c.Output.Dir = envOr(EnvOutputDir, c.Output.Dir)
	c.Stream.Target = envOr(EnvStreamTarget, c.Stream.Target)
	if v := os.Getenv(EnvConcurrency); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Output.Concurrency = n
		} else {
			log.Warn("ignoring invalid env value", "key", EnvConcurrency, "value", v)
		}
	}
}

// Validate returns every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", c.Server.LogLevel))
	}
	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen is required"))
	}
	if c.Output.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("output.concurrency %d must be at least 1", c.Output.Concurrency))
	}
	if _, _, err := net.SplitHostPort(c.Stream.Target); err != nil {
		errs = append(errs, fmt.Errorf("stream.target %q: %w", c.Stream.Target, err))
	}
	if c.Stream.PacketDuration <= 0 {
		errs = append(errs, fmt.Errorf("stream.packet_duration %v must be positive", c.Stream.PacketDuration))
	}

	seen := make(map[string]int, len(c.Presets))
	for i, p := range c.Presets {
		prefix := fmt.Sprintf("presets[%d]", i)
		name := strings.ToLower(p.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of presets[%d]", prefix, p.Name, prev))
		}
		seen[name] = i
		if err := p.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s (%s): %w", prefix, p.Name, err))
		}
	}

	return errors.Join(errs...)
}

// Registry returns the built-in presets plus every configured preset.
func (c *Config) Registry() (*codec.Registry, error) {
	r := codec.NewRegistry()
	for _, p := range c.Presets {
		if err := r.Add(p); err != nil {
			return nil, fmt.Errorf("config: preset %q: %w", p.Name, err)
		}
	}
	return r, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
