// Package config loads gateway configuration from YAML with environment
// variable expansion.
//
// DESIGN: The public Config struct carries parsed values (time.Duration,
// not strings). YAML decoding goes through a raw mirror so duration fields
// accept both "30s" strings and bare integer seconds.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root gateway configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Upstream   UpstreamConfig   `yaml:"upstream"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
}

// UpstreamConfig configures upstream session behavior.
type UpstreamConfig struct {
	// InitTimeout bounds session initialization. Auto-refresh and
	// auto-close stay off regardless; the session cache owns lifetimes.
	InitTimeout time.Duration `yaml:"-"`
	// RequestTimeout is the HTTP client timeout for generation calls.
	RequestTimeout time.Duration `yaml:"-"`
	// Proxy is an optional outbound proxy URL.
	Proxy string `yaml:"proxy"`
}

// MonitoringConfig configures logging and telemetry.
type MonitoringConfig struct {
	LogLevel    string `yaml:"log_level"`   // debug, info, warn, error
	LogFormat   string `yaml:"log_format"`  // console, json
	LogOutput   string `yaml:"log_output"`  // stdout, stderr, or a file path
	LogToStdout bool   `yaml:"log_to_stdout"`

	// TelemetryPath enables JSONL request telemetry when non-empty.
	TelemetryPath string `yaml:"telemetry_path"`
	// HistoryDBPath enables the SQLite request history when non-empty.
	HistoryDBPath string `yaml:"history_db_path"`
}

// rawConfig mirrors Config with string durations for YAML decoding.
type rawConfig struct {
	Server struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`
	Upstream struct {
		InitTimeout    string `yaml:"init_timeout"`
		RequestTimeout string `yaml:"request_timeout"`
		Proxy          string `yaml:"proxy"`
	} `yaml:"upstream"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         DefaultServerHost,
			Port:         DefaultServerPort,
			ReadTimeout:  DefaultServerReadTimeout,
			WriteTimeout: DefaultServerWriteTimeout,
		},
		Upstream: UpstreamConfig{
			InitTimeout:    DefaultInitTimeout,
			RequestTimeout: DefaultUpstreamTimeout,
		},
		Monitoring: MonitoringConfig{
			LogLevel:  "info",
			LogFormat: "console",
			LogOutput: "stderr",
		},
	}
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML config data. Environment variables referenced
// as ${VAR} are expanded before parsing. Missing fields keep defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg := DefaultConfig()

	if raw.Server.Host != "" {
		cfg.Server.Host = raw.Server.Host
	}
	if raw.Server.Port != 0 {
		cfg.Server.Port = raw.Server.Port
	}
	var err error
	if cfg.Server.ReadTimeout, err = parseDuration(raw.Server.ReadTimeout, cfg.Server.ReadTimeout); err != nil {
		return nil, fmt.Errorf("server.read_timeout: %w", err)
	}
	if cfg.Server.WriteTimeout, err = parseDuration(raw.Server.WriteTimeout, cfg.Server.WriteTimeout); err != nil {
		return nil, fmt.Errorf("server.write_timeout: %w", err)
	}

	if cfg.Upstream.InitTimeout, err = parseDuration(raw.Upstream.InitTimeout, cfg.Upstream.InitTimeout); err != nil {
		return nil, fmt.Errorf("upstream.init_timeout: %w", err)
	}
	if cfg.Upstream.RequestTimeout, err = parseDuration(raw.Upstream.RequestTimeout, cfg.Upstream.RequestTimeout); err != nil {
		return nil, fmt.Errorf("upstream.request_timeout: %w", err)
	}
	cfg.Upstream.Proxy = raw.Upstream.Proxy

	if raw.Monitoring.LogLevel != "" {
		cfg.Monitoring.LogLevel = raw.Monitoring.LogLevel
	}
	if raw.Monitoring.LogFormat != "" {
		cfg.Monitoring.LogFormat = raw.Monitoring.LogFormat
	}
	if raw.Monitoring.LogOutput != "" {
		cfg.Monitoring.LogOutput = raw.Monitoring.LogOutput
	}
	cfg.Monitoring.LogToStdout = raw.Monitoring.LogToStdout
	cfg.Monitoring.TelemetryPath = raw.Monitoring.TelemetryPath
	cfg.Monitoring.HistoryDBPath = raw.Monitoring.HistoryDBPath

	return cfg, nil
}

// parseDuration accepts Go duration strings ("30s") or bare integers
// interpreted as seconds. Empty input keeps the default.
func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
