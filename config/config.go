// Package config loads the daemon's runtime settings: the values that come
// from CLI flags and environment variables directly (see cmd), plus the one
// piece of configuration that doesn't fit comfortably on a flag line, the
// TURN endpoint pool.
package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hjson/hjson-go/v4"
	"github.com/spf13/afero"
)

// Version is populated by build flags with the current Git tag.
var Version string

// DefaultTurnHost/DefaultTurnPort match the single historical TURN
// endpoint this daemon used before the pool config existed. They remain
// the default pool of size 1 when no TURN pool config file is supplied.
const (
	DefaultTurnHost = "coordinator.openttd.org"
	DefaultTurnPort = 3974
)

var errReadingTurnPoolConfig = errors.New("encountered an error while reading the turn pool config file")

// TurnEndpoint is a single relay the Connect machine may hand out for
// connect_turn. ID is a stable handle for logging, independent of the
// host:port, so endpoints can be rotated without losing log continuity.
type TurnEndpoint struct {
	ID   uuid.UUID `json:"-"`
	Host string    `json:"host" validate:"required,hostname|ip"`
	Port uint16    `json:"port" validate:"required"`
}

// TurnPoolConfig is the optional hjson file listing the TURN relays the
// Connect machine may choose between. This daemon used to hardcode a
// single endpoint; an absent or empty file falls back to that single
// endpoint.
type TurnPoolConfig struct {
	Endpoints []TurnEndpoint `json:"endpoints" validate:"omitempty,dive"`
}

// DefaultTurnPool returns the single-endpoint pool matching the historical
// hardcoded behavior.
func DefaultTurnPool() *TurnPoolConfig {
	return &TurnPoolConfig{
		Endpoints: []TurnEndpoint{
			{ID: uuid.New(), Host: DefaultTurnHost, Port: DefaultTurnPort},
		},
	}
}

// LoadTurnPoolConfig reads and validates the TURN pool config file at path.
// A missing file is not an error: the caller gets the default single-entry
// pool instead, matching the pre-pool hardcoded behavior.
func LoadTurnPoolConfig(afs afero.Fs, path string) (*TurnPoolConfig, error) {
	exists, err := afero.Exists(afs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errReadingTurnPoolConfig, err)
	}
	if !exists {
		return DefaultTurnPool(), nil
	}

	contents, err := afero.ReadFile(afs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errReadingTurnPoolConfig, err)
	}

	var cfg TurnPoolConfig
	if err := hjson.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("%w, located at '%s': %w", errReadingTurnPoolConfig, path, err)
	}

	for i := range cfg.Endpoints {
		if cfg.Endpoints[i].ID == uuid.Nil {
			cfg.Endpoints[i].ID = uuid.New()
		}
	}

	if len(cfg.Endpoints) == 0 {
		return DefaultTurnPool(), nil
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w, located at '%s': %w", errReadingTurnPoolConfig, path, err)
	}

	return &cfg, nil
}

func (cfg *TurnPoolConfig) validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	return v.Struct(cfg)
}
