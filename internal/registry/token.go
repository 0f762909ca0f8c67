package registry

import (
	"fmt"
	"sync"

	"github.com/TrueBrain/game-coordinator/internal/ids"
)

// TokenOwner is whatever a token is currently bound to: a Verify session or
// a Connect session. Disconnect tells that session its owning source (or
// the Server it depends on) went away and it must cancel outstanding work.
type TokenOwner interface {
	Disconnect()
}

// Tokens is the token -> TokenOwner table, plus the STUN and TURN storage
// keyed off the same tokens. Token teardown purges all three together,
// mirroring Application.delete_token.
type Tokens struct {
	mu     sync.Mutex
	owners map[string]TokenOwner

	Stun *StunStore
	Turn *RelayStore
}

func NewTokens() *Tokens {
	return &Tokens{
		owners: make(map[string]TokenOwner),
		Stun:   NewStunStore(),
		Turn:   NewRelayStore(),
	}
}

// Create allocates a fresh, collision-free bare token and binds it to the
// owner built from it.
func (t *Tokens) Create(build func(token string) TokenOwner) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	token, err := generateToken(func(tok string) bool {
		_, exists := t.owners[tok]
		return exists
	})
	if err != nil {
		return "", err
	}

	t.owners[token] = build(token)
	return token, nil
}

func generateToken(exists func(string) bool) (string, error) {
	for {
		token, err := ids.NewToken()
		if err != nil {
			return "", fmt.Errorf("error allocating token: %w", err)
		}
		if !exists(token) {
			return token, nil
		}
	}
}

func (t *Tokens) Get(token string) (TokenOwner, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	owner, ok := t.owners[token]
	return owner, ok
}

// Delete removes token's owner and purges any STUN/TURN storage keyed
// under it (any role prefix), matching Application.delete_token.
func (t *Tokens) Delete(token string) {
	t.mu.Lock()
	delete(t.owners, token)
	t.mu.Unlock()

	t.Stun.DeleteAllPrefixes(token)
	t.Turn.Delete(token)
}

// All returns every currently tracked owner, for disconnect-driven
// teardown scans.
func (t *Tokens) All() map[string]TokenOwner {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]TokenOwner, len(t.owners))
	for k, v := range t.owners {
		out[k] = v
	}
	return out
}
