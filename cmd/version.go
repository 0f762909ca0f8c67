package cmd

import (
	"fmt"

	"github.com/TrueBrain/game-coordinator/config"

	"github.com/urfave/cli/v2"
)

// VersionCommand prints the build-time version string.
var VersionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print the version of the game coordinator",
	Action: func(cCtx *cli.Context) error {
		version := config.Version
		if version == "" {
			version = "dev"
		}
		fmt.Println(version)
		return nil
	},
}
