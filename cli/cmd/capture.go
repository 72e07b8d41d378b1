package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chunkprobe/adapter"
	"github.com/justapithecus/chunkprobe/adapter/redis"
	"github.com/justapithecus/chunkprobe/adapter/webhook"
	"github.com/justapithecus/chunkprobe/cli/config"
	"github.com/justapithecus/chunkprobe/lode"
	"github.com/justapithecus/chunkprobe/log"
	"github.com/justapithecus/chunkprobe/metrics"
	"github.com/justapithecus/chunkprobe/runtime"
	"github.com/justapithecus/chunkprobe/types"
)

// exitConfigError is returned when flags, environment or the config file
// are invalid. Nothing is dialed.
const exitConfigError = 4

// CaptureCommand returns the capture command.
// This is the only command that contacts a server or writes the pool.
func CaptureCommand() *cli.Command {
	return &cli.Command{
		Name:  "capture",
		Usage: "Capture distinct chunk templates from a running server into the pool",
		Flags: captureFlags(),
		Action: func(c *cli.Context) error {
			return captureAction(c, nil)
		},
	}
}

// Flags carry no Value so that c.IsSet alone decides precedence; defaults
// come from config.Default and are shown via DefaultText.
func captureFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to chunkprobe.yaml",
		},
		// Target flags
		&cli.StringFlag{
			Name:        "host",
			Usage:       "Server host",
			DefaultText: config.DefaultHost,
		},
		&cli.IntFlag{
			Name:        "port",
			Usage:       "Server port",
			DefaultText: strconv.Itoa(config.DefaultPort),
		},
		&cli.IntFlag{
			Name:        "target",
			Aliases:     []string{"n"},
			Usage:       "Number of distinct chunks to capture",
			DefaultText: strconv.Itoa(config.DefaultTarget),
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Overall wall-clock budget for the session",
			DefaultText: config.DefaultTimeout.String(),
		},
		&cli.DurationFlag{
			Name:        "io-timeout",
			Usage:       "Per read/write timeout",
			DefaultText: "same as --timeout",
		},
		&cli.StringFlag{
			Name:        "outdir",
			Aliases:     []string{"o"},
			Usage:       "Template pool directory",
			DefaultText: config.DefaultOutDir,
		},
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Run ID (generated when empty)",
		},
		// Output flags
		&cli.StringFlag{
			Name:  "report",
			Usage: "Write a JSON run report to this path (- for stderr)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress the result summary",
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level: debug, info, warn, error",
			DefaultText: "info",
		},
		// Mirror flags
		&cli.StringFlag{
			Name:        "mirror-backend",
			Usage:       "Pool mirror backend: fs or s3",
			DefaultText: "fs",
		},
		&cli.StringFlag{
			Name:  "mirror-path",
			Usage: "Mirror location (fs: directory, s3: bucket/prefix); empty disables the mirror",
		},
		&cli.StringFlag{
			Name:  "mirror-s3-region",
			Usage: "AWS region for the S3 mirror (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "mirror-s3-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "mirror-s3-path-style",
			Usage: "Force path-style S3 addressing",
		},
		// Adapter flags
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Completion notification: redis or webhook",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Redis URL or webhook endpoint",
		},
		&cli.StringFlag{
			Name:        "adapter-channel",
			Usage:       "Redis channel prefix; host:port is appended",
			DefaultText: redis.DefaultChannel,
		},
		&cli.StringSliceFlag{
			Name:  "adapter-header",
			Usage: "Webhook header as Key=Value (repeatable)",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt notification timeout",
		},
		&cli.IntFlag{
			Name:        "adapter-retries",
			Usage:       "Notification retry attempts",
			DefaultText: strconv.Itoa(config.DefaultAdapterRetries),
		},
	}
}

func captureAction(c *cli.Context, environ map[string]string) error {
	cfg, err := resolveSettings(c, environ)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitConfigError)
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), exitConfigError)
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}

	captureCfg := &runtime.CaptureConfig{
		Host:      cfg.Host,
		Port:      uint16(cfg.Port),
		Target:    cfg.Target,
		Timeout:   cfg.Timeout.Duration,
		IOTimeout: cfg.EffectiveIOTimeout(),
		OutDir:    cfg.OutDir,
		RunID:     runID,
	}
	addr := captureCfg.Addr()
	captureCfg.Logger = log.NewLoggerWithWriter(log.RunContext{RunID: runID, Target: addr}, c.App.ErrWriter, level)
	captureCfg.Collector = metrics.NewCollector(addr, cfg.OutDir, runID)
	defer func() { _ = captureCfg.Logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start time is "now", used to derive the mirror partition day.
	startTime := time.Now()

	mirror, err := buildMirror(ctx, cfg, addr, runID, startTime)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid mirror configuration: %v", err), exitConfigError)
	}
	if mirror != nil {
		captureCfg.Mirror = mirror
	}

	notifier, err := buildAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid adapter configuration: %v", err), exitConfigError)
	}
	if notifier != nil {
		captureCfg.Adapter = notifier
		defer func() { _ = notifier.Close() }()
	}

	capturer, err := runtime.NewCapturer(captureCfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	result, err := capturer.Execute(ctx)
	if err != nil {
		return fmt.Errorf("capture failed: %w", err)
	}

	exitCode := runtime.ExitCode(result.Outcome.Status)

	if !c.Bool("quiet") {
		printCaptureResult(c.App.Writer, result, cfg)
	}

	if cfg.Report != "" {
		report := runtime.BuildReport(result, captureCfg.Collector.Snapshot(), exitCode)
		if err := runtime.WriteReport(report, cfg.Report); err != nil {
			captureCfg.Logger.Warn("failed to write report", map[string]any{
				"path":  cfg.Report,
				"error": err.Error(),
			})
		}
	}

	return cli.Exit("", exitCode)
}

// buildMirror returns nil when no mirror path is configured.
func buildMirror(ctx context.Context, cfg *config.Config, addr, runID string, start time.Time) (lode.Mirror, error) {
	if cfg.Mirror.Path == "" {
		return nil, nil
	}

	mc := lode.Config{
		Dataset: lode.DefaultDataset,
		Target:  addr,
		Day:     lode.DeriveDay(start),
		RunID:   runID,
	}

	switch cfg.Mirror.Backend {
	case "", "fs":
		return lode.NewFSMirror(mc, cfg.Mirror.Path)
	case "s3":
		bucket, prefix, err := lode.ParseS3Location(cfg.Mirror.Path)
		if err != nil {
			return nil, err
		}
		return lode.NewS3Mirror(ctx, mc, lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Mirror.Region,
			Endpoint:     cfg.Mirror.Endpoint,
			UsePathStyle: cfg.Mirror.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown mirror backend %q", cfg.Mirror.Backend)
	}
}

// buildAdapter returns nil when no adapter type is configured.
func buildAdapter(ac config.AdapterConfig) (adapter.Adapter, error) {
	switch ac.Type {
	case "":
		return nil, nil
	case "redis":
		return redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Timeout: ac.Timeout.Duration,
			Retries: ac.Retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: ac.Retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", ac.Type)
	}
}

func printCaptureResult(w io.Writer, result *runtime.CaptureResult, cfg *config.Config) {
	fmt.Fprintf(w, "\nrun_id=%s, target=%s, outcome=%s, stop=%s, duration=%s\n",
		result.RunID,
		result.Target,
		result.Outcome.Status,
		result.Outcome.Stop,
		result.Duration.Round(time.Millisecond),
	)

	fmt.Fprintf(w, "\n=== Capture Result ===\n")
	fmt.Fprintf(w, "Run ID:       %s\n", result.RunID)
	fmt.Fprintf(w, "Target:       %s\n", result.Target)
	fmt.Fprintf(w, "Outcome:      %s\n", result.Outcome.Status)
	fmt.Fprintf(w, "Stop Reason:  %s\n", result.Outcome.Stop)
	fmt.Fprintf(w, "Message:      %s\n", result.Outcome.Message)
	fmt.Fprintf(w, "Captured:     %d / %d\n", result.Captured, result.TargetCount)
	fmt.Fprintf(w, "Final State:  %s\n", result.FinalState)
	if result.Threshold > 0 {
		fmt.Fprintf(w, "Compression:  threshold %d\n", result.Threshold)
	}

	if result.Pool != nil {
		fmt.Fprintf(w, "\n=== Pool ===\n")
		fmt.Fprintf(w, "Directory:    %s\n", result.Pool.Dir)
		fmt.Fprintf(w, "Files:        %d\n", len(result.Pool.Files))
		fmt.Fprintf(w, "Removed:      %d\n", result.Pool.Removed)
		fmt.Fprintf(w, "Bytes:        %d\n", result.Pool.Bytes)
	}
	if result.Mirror != nil {
		fmt.Fprintf(w, "\n=== Mirror ===\n")
		fmt.Fprintf(w, "Prefix:       %s\n", result.Mirror.Prefix)
		fmt.Fprintf(w, "Files:        %d\n", result.Mirror.Files)
	}

	switch result.Outcome.Status {
	case types.OutcomeUnderTarget:
		fmt.Fprintf(w, "\nCaptured %d of %d templates before the session ended; consider a longer --timeout (currently %s).\n",
			result.Captured, result.TargetCount, cfg.Timeout.Duration)
	case types.OutcomeNoTemplates:
		fmt.Fprintf(w, "\nNo templates captured; existing templates in %s were left unchanged.\n", cfg.OutDir)
	}
}
