package config

import (
	"errors"
	"fmt"
	"time"
)

// Built-in defaults, applied before the config file and environment.
const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 25566
	DefaultTarget  = 64
	DefaultTimeout = 30 * time.Second
	DefaultOutDir  = "assets/chunks"
	// DefaultAdapterRetries matches the adapters' own default.
	DefaultAdapterRetries = 3
)

// Config represents a chunkprobe.yaml configuration file.
// All values are optional and act as defaults for capture flags.
// CHUNKPROBE_* environment variables override file values; CLI flags
// override both.
type Config struct {
	Host    string   `yaml:"host" env:"HOST"`
	Port    int      `yaml:"port" env:"PORT"`
	Target  int      `yaml:"target" env:"TARGET"`
	Timeout Duration `yaml:"timeout" env:"TIMEOUT"`
	// IOTimeout bounds each read or write. Zero means Timeout.
	IOTimeout Duration      `yaml:"io_timeout" env:"IO_TIMEOUT"`
	OutDir    string        `yaml:"outdir" env:"OUTDIR"`
	Report    string        `yaml:"report" env:"REPORT"`
	LogLevel  string        `yaml:"log_level" env:"LOG_LEVEL"`
	Mirror    MirrorConfig  `yaml:"mirror" envPrefix:"MIRROR_"`
	Adapter   AdapterConfig `yaml:"adapter" envPrefix:"ADAPTER_"`
}

// MirrorConfig holds pool mirror defaults.
type MirrorConfig struct {
	// Backend is fs or s3.
	Backend string `yaml:"backend" env:"BACKEND"`
	// Path is a directory (fs) or bucket/prefix (s3). Empty disables the mirror.
	Path        string `yaml:"path" env:"PATH"`
	Region      string `yaml:"region" env:"REGION"`
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	S3PathStyle bool   `yaml:"s3_path_style" env:"S3_PATH_STYLE"`
}

// AdapterConfig holds completion notification defaults.
type AdapterConfig struct {
	// Type is redis or webhook. Empty disables notification.
	Type    string            `yaml:"type" env:"TYPE"`
	URL     string            `yaml:"url" env:"URL"`
	Channel string            `yaml:"channel,omitempty" env:"CHANNEL"`
	Headers map[string]string `yaml:"headers,omitempty" env:"HEADERS"`
	Timeout Duration          `yaml:"timeout,omitempty" env:"TIMEOUT"`
	Retries int               `yaml:"retries" env:"RETRIES"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:    DefaultHost,
		Port:    DefaultPort,
		Target:  DefaultTarget,
		Timeout: Duration{DefaultTimeout},
		OutDir:  DefaultOutDir,
		Mirror:  MirrorConfig{Backend: "fs"},
		Adapter: AdapterConfig{Retries: DefaultAdapterRetries},
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, errors.New("host must not be empty"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port must be in 1..65535, got %d", c.Port))
	}
	if c.Target < 1 {
		errs = append(errs, fmt.Errorf("target must be >= 1, got %d", c.Target))
	}
	if c.Timeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be > 0, got %s", c.Timeout.Duration))
	}
	if c.IOTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("io_timeout must be >= 0, got %s", c.IOTimeout.Duration))
	}
	if c.OutDir == "" {
		errs = append(errs, errors.New("outdir must not be empty"))
	}
	switch c.Mirror.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("mirror backend must be fs or s3, got %q", c.Mirror.Backend))
	}
	switch c.Adapter.Type {
	case "":
	case "redis", "webhook":
		if c.Adapter.URL == "" {
			errs = append(errs, fmt.Errorf("%s adapter requires a url", c.Adapter.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("adapter type must be redis or webhook, got %q", c.Adapter.Type))
	}
	if c.Adapter.Retries < 0 {
		errs = append(errs, fmt.Errorf("adapter retries must be >= 0, got %d", c.Adapter.Retries))
	}
	return errors.Join(errs...)
}

// EffectiveIOTimeout returns IOTimeout, or Timeout when it is unset.
func (c *Config) EffectiveIOTimeout() time.Duration {
	if c.IOTimeout.Duration > 0 {
		return c.IOTimeout.Duration
	}
	return c.Timeout.Duration
}

// Duration wraps time.Duration for YAML and environment parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText parses a duration string; empty leaves d unchanged.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
