package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chunkprobe/cli/config"
)

// resolveString returns the CLI value when the flag was explicitly set,
// then the config value, then the urfave default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if cfgVal != "" {
		return cfgVal
	}
	return c.String(name)
}

func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return c.Int(name)
}

func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	if cfgVal != 0 {
		return cfgVal
	}
	return c.Duration(name)
}

// configVal reads a field from a possibly nil config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// parseHeaders parses repeated "Key=Value" header flags.
func parseHeaders(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		key, value, ok := strings.Cut(h, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid header %q (want Key=Value)", h)
		}
		headers[key] = value
	}
	return headers, nil
}

// resolveSettings layers explicitly set flags over the environment, the
// config file and the built-in defaults, then validates the result.
// A nil environ reads the process environment.
func resolveSettings(c *cli.Context, environ map[string]string) (*config.Config, error) {
	cfg, err := config.Resolve(c.String("config"), environ)
	if err != nil {
		return nil, err
	}

	cfg.Host = resolveString(c, "host", cfg.Host)
	cfg.Port = resolveInt(c, "port", cfg.Port)
	cfg.Target = resolveInt(c, "target", cfg.Target)
	cfg.Timeout.Duration = resolveDuration(c, "timeout", cfg.Timeout.Duration)
	cfg.IOTimeout.Duration = resolveDuration(c, "io-timeout", cfg.IOTimeout.Duration)
	cfg.OutDir = resolveString(c, "outdir", cfg.OutDir)
	cfg.Report = resolveString(c, "report", cfg.Report)
	cfg.LogLevel = resolveString(c, "log-level", cfg.LogLevel)

	cfg.Mirror.Backend = resolveString(c, "mirror-backend", cfg.Mirror.Backend)
	cfg.Mirror.Path = resolveString(c, "mirror-path", cfg.Mirror.Path)
	cfg.Mirror.Region = resolveString(c, "mirror-s3-region", cfg.Mirror.Region)
	cfg.Mirror.Endpoint = resolveString(c, "mirror-s3-endpoint", cfg.Mirror.Endpoint)
	cfg.Mirror.S3PathStyle = resolveBool(c, "mirror-s3-path-style", cfg.Mirror.S3PathStyle)

	cfg.Adapter.Type = resolveString(c, "adapter", cfg.Adapter.Type)
	cfg.Adapter.URL = resolveString(c, "adapter-url", cfg.Adapter.URL)
	cfg.Adapter.Channel = resolveString(c, "adapter-channel", cfg.Adapter.Channel)
	cfg.Adapter.Timeout.Duration = resolveDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration)
	cfg.Adapter.Retries = resolveInt(c, "adapter-retries", cfg.Adapter.Retries)
	if c.IsSet("adapter-header") {
		headers, err := parseHeaders(c.StringSlice("adapter-header"))
		if err != nil {
			return nil, err
		}
		cfg.Adapter.Headers = headers
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
