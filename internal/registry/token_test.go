package registry_test

import (
	"testing"

	"github.com/TrueBrain/game-coordinator/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOwner struct {
	disconnected bool
}

func (f *fakeOwner) Disconnect() { f.disconnected = true }

func TestTokensCreateAndGet(t *testing.T) {
	tokens := registry.NewTokens()
	owner := &fakeOwner{}

	token, err := tokens.Create(func(string) registry.TokenOwner { return owner })
	require.NoError(t, err)
	require.Len(t, token, 32)

	got, ok := tokens.Get(token)
	require.True(t, ok)
	assert.Same(t, owner, got)
}

func TestTokensDeletePurgesStunAndTurn(t *testing.T) {
	tokens := registry.NewTokens()
	token, err := tokens.Create(func(string) registry.TokenOwner { return &fakeOwner{} })
	require.NoError(t, err)

	tokens.Stun.Put("V"+token, 0, nil, 0)
	tokens.Turn.AddSide(token, true, nil)

	tokens.Delete(token)

	_, ok := tokens.Get(token)
	assert.False(t, ok)
	_, ok = tokens.Stun.Get("V"+token, 0)
	assert.False(t, ok)
	_, ok = tokens.Turn.Paired(token)
	assert.False(t, ok)
}

func TestTokensAll(t *testing.T) {
	tokens := registry.NewTokens()
	_, err := tokens.Create(func(string) registry.TokenOwner { return &fakeOwner{} })
	require.NoError(t, err)
	_, err = tokens.Create(func(string) registry.TokenOwner { return &fakeOwner{} })
	require.NoError(t, err)

	assert.Len(t, tokens.All(), 2)
}
