package main

import (
	"fmt"
	"os"

	"github.com/TrueBrain/game-coordinator/cmd"
	"github.com/TrueBrain/game-coordinator/config"
	"github.com/TrueBrain/game-coordinator/logger"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// Version is populated by build flags with the current Git tag.
var Version string

func main() {
	config.Version = Version

	app := &cli.App{
		EnableBashCompletion: true,
		Commands:             cmd.Commands(),
		Name:                 "game-coordinator",
		Usage:                "Rendezvous servers and clients behind NAT",
		UsageText:            "game-coordinator command [command options]",
		Version:              Version,
		Args:                 true,
		ExitErrHandler:       exitErrHandler,
		Before: func(cCtx *cli.Context) error {
			if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("error loading .env file: %w", err)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.GetLogger().Fatal().Err(err).Send()
	}
}

// exitErrHandler implements cli.ExitErrHandlerFunc.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(c.App.ErrWriter, "\n[!] %+v\n", err.Error())
	cli.OsExiter(1)
}
