// Package config loads service settings from TOML. Every setting has a
// default, so an empty or missing file is a valid configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"orrery.space/body"
	"orrery.space/camera"
	"orrery.space/orbit"
)

// Duration is a time.Duration written as a string such as "30s"
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Server     Server     `toml:"server"`
	TLS        TLS        `toml:"tls"`
	Simulation Simulation `toml:"simulation"`
	Camera     Camera     `toml:"camera"`
	Catalog    Catalog    `toml:"catalog"`
	Limits     Limits     `toml:"limits"`
	Log        Log        `toml:"log"`
}

type Server struct {
	Addr            string   `toml:"addr"`
	MetricsAddr     string   `toml:"metrics_addr"`
	StaticDir       string   `toml:"static_dir"`
	AllowedOrigins  []string `toml:"allowed_origins"`
	MaxMessageBytes int64    `toml:"max_message_bytes"`
	WriteTimeout    Duration `toml:"write_timeout"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

// TLS enables HTTPS with certificates from Let's Encrypt
type TLS struct {
	Enabled  bool     `toml:"enabled"`
	Addr     string   `toml:"addr"`
	Hosts    []string `toml:"hosts"`
	CacheDir string   `toml:"cache_dir"`
	Email    string   `toml:"email"`
}

type Simulation struct {
	FrameRate       int     `toml:"frame_rate"`
	FrameEvery      int     `toml:"frame_every"`
	BaseSpeed       float64 `toml:"base_speed"`
	SpinIncrement   float64 `toml:"spin_increment"`
	SatelliteSpread float64 `toml:"satellite_spread"`
	MinSize         float64 `toml:"min_size"`
	PathSegments    int     `toml:"path_segments"`
	ShowLines       bool    `toml:"show_lines"`
	Preload         bool    `toml:"preload"`
}

type Camera struct {
	Smoothing   float64 `toml:"smoothing"`
	Sensitivity float64 `toml:"sensitivity"`
	NudgeStep   float64 `toml:"nudge_step"`
	MinDistance float64 `toml:"min_distance"`
	FOV         float64 `toml:"fov"`
	Distance    float64 `toml:"distance"`
	Pitch       float64 `toml:"pitch"`
}

// Catalog selects the body catalog. An empty path uses the built-in one.
type Catalog struct {
	Path  string `toml:"path"`
	Watch bool   `toml:"watch"`
}

type Limits struct {
	MessagesPerMinute int `toml:"messages_per_minute"`
	Burst             int `toml:"burst"`
	Inbox             int `toml:"inbox"`
	Outbox            int `toml:"outbox"`
	MaxSessions       int `toml:"max_sessions"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			MetricsAddr:     ":9090",
			MaxMessageBytes: 64 << 10,
			WriteTimeout:    Duration{10 * time.Second},
			ShutdownTimeout: Duration{30 * time.Second},
		},
		TLS: TLS{
			Addr:     ":443",
			CacheDir: "certs",
		},
		Simulation: Simulation{
			FrameRate:       60,
			FrameEvery:      2,
			BaseSpeed:       body.DefaultBaseSpeed,
			SpinIncrement:   0.01,
			SatelliteSpread: body.DefaultSatelliteSpread,
			MinSize:         body.DefaultMinSize,
			PathSegments:    orbit.PathSegments,
		},
		Camera: Camera{
			Smoothing:   camera.DefaultSmoothing,
			Sensitivity: camera.DefaultSensitivity,
			NudgeStep:   camera.DefaultNudgeStep,
			MinDistance: camera.DefaultMinDistance,
			FOV:         camera.DefaultFOV,
			Distance:    camera.DefaultDistance,
			Pitch:       camera.DefaultPitch,
		},
		Limits: Limits{
			MessagesPerMinute: 12000,
			Inbox:             256,
			Outbox:            64,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	if err := Decode(f, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads TOML from r into cfg, keeping values r does not mention.
// Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := toml.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return cfg.Validate()
}

// Validate checks settings that have no sensible fallback
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Simulation.FrameRate <= 0 || c.Simulation.FrameRate > 1000 {
		errs = append(errs, fmt.Errorf("simulation.frame_rate %d out of range", c.Simulation.FrameRate))
	}
	if c.Limits.MessagesPerMinute < 0 {
		errs = append(errs, errors.New("limits.messages_per_minute is negative"))
	}
	if c.TLS.Enabled && len(c.TLS.Hosts) == 0 {
		errs = append(errs, errors.New("tls.enabled needs at least one host"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// RegistryOptions maps the simulation section onto registry options
func (s Simulation) RegistryOptions() body.Options {
	return body.Options{
		BaseSpeed:       s.BaseSpeed,
		SatelliteSpread: s.SatelliteSpread,
		MinSize:         s.MinSize,
	}
}

// RigOptions maps the camera section onto rig options
func (c Camera) RigOptions() camera.Options {
	return camera.Options{
		Smoothing:   c.Smoothing,
		Sensitivity: c.Sensitivity,
		NudgeStep:   c.NudgeStep,
		MinDistance: c.MinDistance,
		FOV:         c.FOV,
		Distance:    c.Distance,
		Pitch:       c.Pitch,
	}
}

// Logger builds the process logger writing to w
func (l Log) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
