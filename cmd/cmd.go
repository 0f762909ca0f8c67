// Package cmd wires the urfave/cli command table for the daemon.
package cmd

import (
	"errors"
	"fmt"

	"github.com/TrueBrain/game-coordinator/config"
	"github.com/TrueBrain/game-coordinator/update"

	"github.com/google/go-github/github"
	"github.com/urfave/cli/v2"
)

var ErrInvalidConfigObject = errors.New("config object is nil")
var ErrCheckingForUpdate = errors.New("error checking for newer version")

const envPrefix = "GAME_COORDINATOR"

func Commands() []*cli.Command {
	return []*cli.Command{
		ServeCommand,
		VersionCommand,
	}
}

// BindFlag is the repeatable listen-address flag shared by every listener.
func BindFlag() *cli.StringSliceFlag {
	return &cli.StringSliceFlag{
		Name:    "bind",
		Usage:   "Address to bind the listeners to (repeatable)",
		Value:   cli.NewStringSlice("::1", "127.0.0.1"),
		EnvVars: []string{envPrefix + "_BIND"},
	}
}

func CoordinatorPortFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:    "coordinator-port",
		Usage:   "Port the coordinator plane listens on",
		Value:   3976,
		EnvVars: []string{envPrefix + "_COORDINATOR_PORT"},
	}
}

func StunPortFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:    "stun-port",
		Usage:   "Port the STUN plane listens on",
		Value:   3975,
		EnvVars: []string{envPrefix + "_STUN_PORT"},
	}
}

func TurnPortFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:    "turn-port",
		Usage:   "Port the TURN plane listens on",
		Value:   3974,
		EnvVars: []string{envPrefix + "_TURN_PORT"},
	}
}

func CoordinatorProxyProtocolFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    "coordinator-proxy-protocol",
		Usage:   "Accept PROXY protocol headers on the coordinator listener",
		EnvVars: []string{envPrefix + "_COORDINATOR_PROXY_PROTOCOL"},
	}
}

func StunProxyProtocolFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    "stun-proxy-protocol",
		Usage:   "Accept PROXY protocol headers on the STUN listener",
		EnvVars: []string{envPrefix + "_STUN_PROXY_PROTOCOL"},
	}
}

func TurnPoolConfigFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "turn-pool-config",
		Usage:   "Load the TURN endpoint pool from `FILE`",
		Value:   "./turn-pool.hjson",
		EnvVars: []string{envPrefix + "_TURN_POOL_CONFIG"},
	}
}

func DebugFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    "debug",
		Usage:   "Enable debug logging",
		EnvVars: []string{envPrefix + "_DEBUG"},
	}
}

func UpdateCheckFlag() *cli.BoolFlag {
	return &cli.BoolFlag{
		Name:    "update-check",
		Usage:   "Check GitHub for a newer release on startup",
		Value:   true,
		EnvVars: []string{envPrefix + "_UPDATE_CHECK"},
	}
}

// CheckForUpdate performs the best-effort startup version check. A nil cfg
// is a caller error, not a reason to skip the check silently.
func CheckForUpdate(cfg *RunConfig) error {
	if cfg == nil {
		return ErrInvalidConfigObject
	}

	currentVersion := config.Version
	if !cfg.UpdateCheckEnabled || currentVersion == "" || currentVersion == "dev" {
		return nil
	}

	newer, latestVersion, err := update.CheckForNewerVersion(github.NewClient(nil), currentVersion)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCheckingForUpdate, err)
	}
	if newer {
		fmt.Printf("\n\t✨ A newer version (%s) of the game coordinator is available! https://github.com/TrueBrain/game-coordinator/releases ✨\n\n", latestVersion)
	}
	return nil
}

// RunConfig is the fully-resolved set of values ServeCommand hands to the
// coordinator application, after flag parsing and TURN-pool-file loading.
type RunConfig struct {
	Binds                    []string
	CoordinatorPort          int
	StunPort                 int
	TurnPort                 int
	CoordinatorProxyProtocol bool
	StunProxyProtocol        bool
	TurnPoolConfigPath       string
	UpdateCheckEnabled       bool
}

// ConfigFromContext resolves a RunConfig from parsed CLI flags.
func ConfigFromContext(cCtx *cli.Context) *RunConfig {
	return &RunConfig{
		Binds:                    cCtx.StringSlice("bind"),
		CoordinatorPort:          cCtx.Int("coordinator-port"),
		StunPort:                 cCtx.Int("stun-port"),
		TurnPort:                 cCtx.Int("turn-port"),
		CoordinatorProxyProtocol: cCtx.Bool("coordinator-proxy-protocol"),
		StunProxyProtocol:        cCtx.Bool("stun-proxy-protocol"),
		TurnPoolConfigPath:       cCtx.String("turn-pool-config"),
		UpdateCheckEnabled:       cCtx.Bool("update-check"),
	}
}
