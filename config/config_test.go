package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTurnPoolConfig_MissingFileFallsBackToDefault(t *testing.T) {
	afs := afero.NewMemMapFs()

	cfg, err := LoadTurnPoolConfig(afs, "/etc/game-coordinator/turn-pool.hjson")
	require.NoError(t, err)
	require.Len(t, cfg.Endpoints, 1)
	assert.Equal(t, DefaultTurnHost, cfg.Endpoints[0].Host)
	assert.EqualValues(t, DefaultTurnPort, cfg.Endpoints[0].Port)
}

func TestLoadTurnPoolConfig_ParsesAndValidates(t *testing.T) {
	afs := afero.NewMemMapFs()
	path := "/etc/game-coordinator/turn-pool.hjson"
	contents := `{
		endpoints: [
			{host: turn1.example.com, port: 3974}
			{host: turn2.example.com, port: 3975}
		]
	}`
	require.NoError(t, afero.WriteFile(afs, path, []byte(contents), 0o644))

	cfg, err := LoadTurnPoolConfig(afs, path)
	require.NoError(t, err)
	require.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, "turn1.example.com", cfg.Endpoints[0].Host)
	assert.EqualValues(t, 3975, cfg.Endpoints[1].Port)
	assert.NotEqual(t, cfg.Endpoints[0].ID, cfg.Endpoints[1].ID)
}

func TestLoadTurnPoolConfig_RejectsMissingHost(t *testing.T) {
	afs := afero.NewMemMapFs()
	path := "/etc/game-coordinator/turn-pool.hjson"
	contents := `{endpoints: [{port: 3974}]}`
	require.NoError(t, afero.WriteFile(afs, path, []byte(contents), 0o644))

	_, err := LoadTurnPoolConfig(afs, path)
	assert.Error(t, err)
}

func TestLoadTurnPoolConfig_EmptyListFallsBackToDefault(t *testing.T) {
	afs := afero.NewMemMapFs()
	path := "/etc/game-coordinator/turn-pool.hjson"
	require.NoError(t, afero.WriteFile(afs, path, []byte(`{endpoints: []}`), 0o644))

	cfg, err := LoadTurnPoolConfig(afs, path)
	require.NoError(t, err)
	require.Len(t, cfg.Endpoints, 1)
}
