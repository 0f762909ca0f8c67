package ids_test

import (
	"strings"
	"testing"

	"github.com/TrueBrain/game-coordinator/internal/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanEncodeKnownValues(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"zero", []byte{0, 0, 0, 0, 0}, ""},
		{"one", []byte{0, 0, 0, 0, 1}, "b"},
		{"base", []byte{0, 0, 0, 0, 53}, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids.HumanEncode(tt.in))
		})
	}
}

func TestHumanEncodeOnlyUsesAlphabet(t *testing.T) {
	const alphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNQRSTUVWXYZ23456789"
	b, err := ids.NewJoinKeyBytes()
	require.NoError(t, err)

	encoded := ids.HumanEncode(b)
	for _, r := range encoded {
		assert.True(t, strings.ContainsRune(alphabet, r), "unexpected rune %q", r)
	}
}

func TestGenerateJoinKeyRetriesOnCollision(t *testing.T) {
	seen := map[string]bool{}
	attempts := 0

	key, err := ids.GenerateJoinKey(func(k string) bool {
		attempts++
		if attempts <= 2 {
			// force the first two candidates to "collide"
			return true
		}
		return seen[k]
	})
	require.NoError(t, err)
	assert.NotEmpty(t, key)
	assert.GreaterOrEqual(t, attempts, 3)
}

func TestGenerateJoinKeyNeverCollides(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		key, err := ids.GenerateJoinKey(func(k string) bool { return seen[k] })
		require.NoError(t, err)
		require.False(t, seen[key])
		seen[key] = true
	}
}
