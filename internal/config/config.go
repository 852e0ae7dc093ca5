// Package config loads the YAML configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"hlsradio/internal/hls"
	"hlsradio/internal/netwatch"
	"hlsradio/internal/playback"
)

const (
	DefaultStationURL = "https://hls-01-gpm.hostingradio.ru/avtoradio495/playlist.m3u8"
	DefaultVideoURL   = "https://vk.com/video_ext.php?oid=-383476&id=456247029&hash=a3a0d805faa5d04c"
	DefaultUserAgent  = "hlsradio/1.0"
)

type Config struct {
	Stations  []StationConfig `yaml:"stations"`
	Video     VideoConfig     `yaml:"video"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Engine    EngineConfig    `yaml:"engine"`
	Network   NetworkConfig   `yaml:"network"`
	Logging   LoggingConfig   `yaml:"logging"`
	UserAgent string          `yaml:"user_agent"`
}

type StationConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	// Native stations are plain Icecast/Shoutcast streams played without
	// the HLS engine.
	Native bool `yaml:"native"`
}

type VideoConfig struct {
	URL string `yaml:"url"`
}

type PlaybackConfig struct {
	MaxFatalRetries    int           `yaml:"max_fatal_retries"`
	MaxNonFatalRetries int           `yaml:"max_non_fatal_retries"`
	BaseRetryDelay     time.Duration `yaml:"base_retry_delay"`
	MaxRetryDelay      time.Duration `yaml:"max_retry_delay"`
	StopGrace          time.Duration `yaml:"stop_grace"`
	LegacyNative       bool          `yaml:"legacy_native"`
}

type LoadConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type EngineConfig struct {
	Manifest         LoadConfig    `yaml:"manifest"`
	Level            LoadConfig    `yaml:"level"`
	Fragment         LoadConfig    `yaml:"fragment"`
	LiveSyncSegments int           `yaml:"live_sync_segments"`
	StallTimeout     time.Duration `yaml:"stall_timeout"`
}

type NetworkConfig struct {
	ProbeURL         string        `yaml:"probe_url"`
	Interval         time.Duration `yaml:"interval"`
	FailureThreshold int           `yaml:"failure_threshold"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	// File overrides the log file location. Empty means the state
	// directory.
	File string `yaml:"file"`
}

// Default returns the built-in configuration with a single station.
func Default() *Config {
	p := playback.DefaultPolicy()
	e := hls.DefaultConfig()
	n := netwatch.DefaultConfig()
	return &Config{
		Stations: []StationConfig{
			{ID: "avtoradio", Name: "Авторадио", URL: DefaultStationURL},
		},
		Video: VideoConfig{URL: DefaultVideoURL},
		Playback: PlaybackConfig{
			MaxFatalRetries:    p.MaxFatalRetries,
			MaxNonFatalRetries: p.MaxNonFatalRetries,
			BaseRetryDelay:     p.BaseRetryDelay,
			MaxRetryDelay:      p.MaxRetryDelay,
			StopGrace:          p.StopGrace,
		},
		Engine: EngineConfig{
			Manifest:         fromPolicy(e.Manifest),
			Level:            fromPolicy(e.Level),
			Fragment:         fromPolicy(e.Fragment),
			LiveSyncSegments: e.LiveSyncSegments,
			StallTimeout:     e.StallTimeout,
		},
		Network: NetworkConfig{
			ProbeURL:         n.ProbeURL,
			Interval:         n.Interval,
			FailureThreshold: n.FailureThreshold,
		},
		Logging:   LoggingConfig{Level: "info"},
		UserAgent: DefaultUserAgent,
	}
}

// DefaultPath is config.yaml in the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(dir, "hlsradio", "config.yaml"), nil
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Stations) == 0 {
		errs = append(errs, errors.New("at least one station is required"))
	}
	seen := make(map[string]bool, len(c.Stations))
	for i, st := range c.Stations {
		if st.ID == "" {
			errs = append(errs, fmt.Errorf("stations[%d]: id is required", i))
		} else if seen[st.ID] {
			errs = append(errs, fmt.Errorf("stations[%d]: duplicate id %q", i, st.ID))
		}
		seen[st.ID] = true
		if err := checkURL(st.URL); err != nil {
			errs = append(errs, fmt.Errorf("stations[%d]: %w", i, err))
		}
	}
	if c.Video.URL != "" {
		if err := checkURL(c.Video.URL); err != nil {
			errs = append(errs, fmt.Errorf("video: %w", err))
		}
	}

	p := c.Playback
	if p.MaxFatalRetries < 0 || p.MaxNonFatalRetries < 0 {
		errs = append(errs, errors.New("playback: retry limits must not be negative"))
	}
	if p.BaseRetryDelay < 0 || p.MaxRetryDelay < 0 || p.StopGrace < 0 {
		errs = append(errs, errors.New("playback: durations must not be negative"))
	}
	if p.MaxRetryDelay > 0 && p.BaseRetryDelay > p.MaxRetryDelay {
		errs = append(errs, errors.New("playback: base_retry_delay exceeds max_retry_delay"))
	}

	for name, l := range map[string]LoadConfig{"manifest": c.Engine.Manifest, "level": c.Engine.Level, "fragment": c.Engine.Fragment} {
		if l.Timeout < 0 || l.RetryDelay < 0 || l.Retries < 0 {
			errs = append(errs, fmt.Errorf("engine.%s: values must not be negative", name))
		}
	}
	if c.Engine.LiveSyncSegments < 0 {
		errs = append(errs, errors.New("engine: live_sync_segments must not be negative"))
	}

	if c.Network.ProbeURL != "" {
		if err := checkURL(c.Network.ProbeURL); err != nil {
			errs = append(errs, fmt.Errorf("network: %w", err))
		}
	}
	if c.Network.FailureThreshold < 0 {
		errs = append(errs, errors.New("network: failure_threshold must not be negative"))
	}

	switch c.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error", "off":
	default:
		errs = append(errs, fmt.Errorf("logging: unknown level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q has no host", raw)
	}
	return nil
}

// Station returns the station with id, or the first station when id is
// unknown.
func (c *Config) Station(id string) StationConfig {
	for _, st := range c.Stations {
		if st.ID == id {
			return st
		}
	}
	return c.Stations[0]
}

// Policy converts the playback section.
func (c *Config) Policy() playback.Policy {
	return playback.Policy{
		MaxFatalRetries:    c.Playback.MaxFatalRetries,
		MaxNonFatalRetries: c.Playback.MaxNonFatalRetries,
		BaseRetryDelay:     c.Playback.BaseRetryDelay,
		MaxRetryDelay:      c.Playback.MaxRetryDelay,
		StopGrace:          c.Playback.StopGrace,
	}
}

// HLS converts the engine section.
func (c *Config) HLS() hls.Config {
	return hls.Config{
		Manifest:         c.Engine.Manifest.policy(),
		Level:            c.Engine.Level.policy(),
		Fragment:         c.Engine.Fragment.policy(),
		LiveSyncSegments: c.Engine.LiveSyncSegments,
		StallTimeout:     c.Engine.StallTimeout,
		UserAgent:        c.UserAgent,
	}
}

// Netwatch converts the network section.
func (c *Config) Netwatch() netwatch.Config {
	return netwatch.Config{
		ProbeURL:         c.Network.ProbeURL,
		Interval:         c.Network.Interval,
		FailureThreshold: c.Network.FailureThreshold,
	}
}

func (l LoadConfig) policy() hls.LoadPolicy {
	return hls.LoadPolicy{Timeout: l.Timeout, Retries: l.Retries, RetryDelay: l.RetryDelay}
}

func fromPolicy(p hls.LoadPolicy) LoadConfig {
	return LoadConfig{Timeout: p.Timeout, Retries: p.Retries, RetryDelay: p.RetryDelay}
}
