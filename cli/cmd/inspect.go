package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chunkprobe/cli/config"
	"github.com/justapithecus/chunkprobe/cli/render"
	"github.com/justapithecus/chunkprobe/cli/tui"
	"github.com/justapithecus/chunkprobe/pool"
	"github.com/justapithecus/chunkprobe/runtime"
)

// InspectCommand returns the inspect command with subcommands.
// Inspect is read-only: it never contacts a server or modifies the pool.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a template pool or a capture report",
		Subcommands: []*cli.Command{
			inspectPoolCommand(),
			inspectReportCommand(),
		},
	}
}

func inspectPoolCommand() *cli.Command {
	return &cli.Command{
		Name:      "pool",
		Usage:     "Summarize the templates in a pool directory",
		ArgsUsage: "[dir]",
		Flags: append(TUIReadOnlyFlags(), &cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to chunkprobe.yaml (supplies the default directory)",
		}),
		Action: inspectPoolAction,
	}
}

func inspectPoolAction(c *cli.Context) error {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(err.Error(), exitConfigError)
		}
		cfg = loaded
	}

	dir := c.Args().First()
	if dir == "" {
		dir = configVal(cfg, func(cfg *config.Config) string { return cfg.OutDir })
	}
	if dir == "" {
		dir = config.DefaultOutDir
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	templates, err := pool.Load(dir)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	summary := pool.Summarize(dir, templates)

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewPool, summary)
	}
	return r.Render(summary)
}

func inspectReportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Show a capture report written by capture --report",
		ArgsUsage: "<path>",
		Flags:     TUIReadOnlyFlags(),
		Action:    inspectReportAction,
	}
}

func inspectReportAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("report path required", 1)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	report, err := runtime.ReadReport(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewReport, report)
	}
	return r.Render(report)
}
