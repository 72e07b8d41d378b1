package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/chunkprobe/cli/render"
	"github.com/justapithecus/chunkprobe/session"
	"github.com/justapithecus/chunkprobe/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version         string `json:"version"`
	Commit          string `json:"commit"`
	ContractVersion string `json:"contract_version"`
	ProtocolVersion int32  `json:"protocol_version"`
}

// VersionCommand returns the version command.
// It must not contact a server.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(VersionResponse{
			Version:         types.Version,
			Commit:          commit,
			ContractVersion: types.ContractVersion,
			ProtocolVersion: session.DefaultProfile().ProtocolVersion,
		})
	}
}
