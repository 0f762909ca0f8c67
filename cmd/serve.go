package cmd

import (
	"os/signal"
	"syscall"

	"github.com/TrueBrain/game-coordinator/config"
	"github.com/TrueBrain/game-coordinator/internal/coordinator"
	"github.com/TrueBrain/game-coordinator/logger"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

// ServeCommand starts the three listener planes and blocks until
// SIGINT/SIGTERM, then shuts them down gracefully.
var ServeCommand = &cli.Command{
	Name:  "serve",
	Usage: "Run the game coordinator daemon",
	Flags: []cli.Flag{
		BindFlag(),
		CoordinatorPortFlag(),
		StunPortFlag(),
		TurnPortFlag(),
		CoordinatorProxyProtocolFlag(),
		StunProxyProtocolFlag(),
		TurnPoolConfigFlag(),
		DebugFlag(),
		UpdateCheckFlag(),
	},
	Action: func(cCtx *cli.Context) error {
		logger.DebugMode = cCtx.Bool("debug")
		log := logger.GetLogger()

		cfg := ConfigFromContext(cCtx)
		if err := CheckForUpdate(cfg); err != nil {
			log.Warn().Err(err).Msg("unable to check for a newer release")
		}

		turnPoolConfig, err := config.LoadTurnPoolConfig(afero.NewOsFs(), cfg.TurnPoolConfigPath)
		if err != nil {
			return err
		}

		app := coordinator.NewApplication(coordinator.NewRotatingTurnPool(turnPoolConfig))

		ctx, cancel := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		log.Info().Msg("starting game coordinator")
		err = coordinator.Run(ctx, app, coordinator.ListenConfig{
			Binds:                    cfg.Binds,
			CoordinatorPort:          cfg.CoordinatorPort,
			StunPort:                 cfg.StunPort,
			TurnPort:                 cfg.TurnPort,
			CoordinatorProxyProtocol: cfg.CoordinatorProxyProtocol,
			StunProxyProtocol:        cfg.StunProxyProtocol,
		})
		if err != nil && ctx.Err() == nil {
			return err
		}

		log.Info().Msg("shutting down game coordinator")
		return nil
	},
}
