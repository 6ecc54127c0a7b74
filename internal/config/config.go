// Package config loads sandbox server settings from a YAML file with
// environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/signalsfoundry/blocking-sandbox/core"
	"github.com/signalsfoundry/blocking-sandbox/internal/logging"
	"github.com/signalsfoundry/blocking-sandbox/internal/observability"
	"github.com/signalsfoundry/blocking-sandbox/timectrl"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full server configuration.
type Config struct {
	Server     ServerConfig                `yaml:"server"`
	Log        LogConfig                   `yaml:"log"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
	Engagement EngagementConfig            `yaml:"engagement"`
	Session    SessionConfig               `yaml:"session"`
}

// ServerConfig holds listener addresses. An empty address disables that
// listener.
type ServerConfig struct {
	GRPCAddr string `yaml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr"`
}

// LogConfig mirrors logging.Config.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngagementConfig provides defaults for sessions created without explicit
// numeric settings.
type EngagementConfig struct {
	TickRateMs  int     `yaml:"tick_rate_ms"`
	MaxTicks    int     `yaml:"max_ticks"`
	QBZoneDepth float64 `yaml:"qb_zone_depth"`
	Seed        uint64  `yaml:"seed"`
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	StopGrace  time.Duration `yaml:"stop_grace"`
	FeedBuffer int           `yaml:"feed_buffer"`
	ClockMode  string        `yaml:"clock_mode"`
}

// Default returns the built-in configuration.
func Default() Config {
	rc := core.DefaultResolverConfig()
	return Config{
		Server: ServerConfig{
			GRPCAddr: ":50051",
			HTTPAddr: ":8080",
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Tracing: observability.DefaultTracingConfig(),
		Engagement: EngagementConfig{
			TickRateMs:  rc.TickRateMs,
			MaxTicks:    rc.MaxTicks,
			QBZoneDepth: rc.QBZoneDepth,
		},
		Session: SessionConfig{
			StopGrace:  time.Second,
			FeedBuffer: 64,
			ClockMode:  timectrl.RealTime.String(),
		},
	}
}

// Load reads the YAML file at path over Default. An empty path returns the
// defaults. Unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := decode(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays SANDBOX_* environment variables. Malformed numeric
// values are reported rather than ignored.
func (c Config) ApplyEnv() (Config, error) {
	if v := os.Getenv("SANDBOX_GRPC_ADDR"); v != "" {
		c.Server.GRPCAddr = v
	}
	if v := os.Getenv("SANDBOX_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("SANDBOX_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SANDBOX_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("SANDBOX_CLOCK_MODE"); v != "" {
		c.Session.ClockMode = v
	}
	if v := os.Getenv("SANDBOX_STOP_GRACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return c, fmt.Errorf("%w: SANDBOX_STOP_GRACE: %v", ErrInvalid, err)
		}
		c.Session.StopGrace = d
	}
	if v := os.Getenv("SANDBOX_TICK_RATE_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("%w: SANDBOX_TICK_RATE_MS: %v", ErrInvalid, err)
		}
		c.Engagement.TickRateMs = n
	}
	c.Tracing = c.Tracing.ApplyEnv()
	return c, nil
}

// Validate checks the engagement defaults against the resolver's ranges and
// the session settings for sanity.
func (c Config) Validate() error {
	if err := c.ResolverConfig().Validate(); err != nil {
		return fmt.Errorf("%w: engagement: %v", ErrInvalid, err)
	}
	if c.Session.StopGrace <= 0 {
		return fmt.Errorf("%w: session.stop_grace must be positive", ErrInvalid)
	}
	if c.Session.FeedBuffer < 1 {
		return fmt.Errorf("%w: session.feed_buffer must be at least 1", ErrInvalid)
	}
	if _, err := timectrl.ParseMode(c.Session.ClockMode); err != nil {
		return fmt.Errorf("%w: session.clock_mode: %v", ErrInvalid, err)
	}
	if c.Server.GRPCAddr == "" && c.Server.HTTPAddr == "" {
		return fmt.Errorf("%w: at least one of server.grpc_addr, server.http_addr is required", ErrInvalid)
	}
	if r := c.Tracing.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("%w: tracing.sample_ratio %v outside [0,1]", ErrInvalid, r)
	}
	return nil
}

// ResolverConfig converts the engagement section.
func (c Config) ResolverConfig() core.ResolverConfig {
	return core.ResolverConfig{
		TickRateMs:  c.Engagement.TickRateMs,
		MaxTicks:    c.Engagement.MaxTicks,
		QBZoneDepth: c.Engagement.QBZoneDepth,
		Seed:        c.Engagement.Seed,
	}.WithDefaults()
}

// Logging converts the log section.
func (c Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format, AddSource: true}
}

// ClockMode parses the configured pacing mode. Validate has already
// rejected unknown values.
func (c Config) ClockMode() timectrl.Mode {
	m, _ := timectrl.ParseMode(c.Session.ClockMode)
	return m
}
