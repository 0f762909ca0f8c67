package ids_test

import (
	"testing"

	"github.com/TrueBrain/game-coordinator/internal/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenShape(t *testing.T) {
	tok, err := ids.NewToken()
	require.NoError(t, err)
	assert.Len(t, tok, 32)
	for _, r := range tok {
		assert.True(t, (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'), "unexpected hex rune %q", r)
	}
}

func TestNewTokenUnique(t *testing.T) {
	a, err := ids.NewToken()
	require.NoError(t, err)
	b, err := ids.NewToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestWithRoleAndSplitPrefixed(t *testing.T) {
	tok, err := ids.NewToken()
	require.NoError(t, err)

	wire := ids.WithRole(ids.RoleVerify, tok)
	assert.Equal(t, "V"+tok, wire)

	role, bare, err := ids.SplitPrefixed(wire)
	require.NoError(t, err)
	assert.Equal(t, ids.RoleVerify, role)
	assert.Equal(t, tok, bare)
}

func TestSplitPrefixedRejectsBadInput(t *testing.T) {
	tok, err := ids.NewToken()
	require.NoError(t, err)

	_, _, err = ids.SplitPrefixed("X" + tok)
	assert.Error(t, err, "unrecognized role prefix should fail")

	_, _, err = ids.SplitPrefixed("V" + tok[:10])
	assert.Error(t, err, "short token should fail")
}
