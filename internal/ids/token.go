package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Role is the single-character prefix every token carries on the wire,
// distinguishing which kind of session it names.
type Role byte

const (
	RoleVerify       Role = 'V'
	RoleConnectServer Role = 'S'
	RoleConnectClient Role = 'C'
)

func (r Role) Valid() bool {
	switch r {
	case RoleVerify, RoleConnectServer, RoleConnectClient:
		return true
	default:
		return false
	}
}

const tokenBytes = 16

// NewToken draws a fresh 32-char lowercase hex token, with no role prefix.
// The prefix is a wire-level concern (see WithRole/SplitPrefixed) and is
// never part of the stored, registry-indexed value.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error generating token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// WithRole prepends role to a bare token, producing the form sent on the
// wire.
func WithRole(role Role, token string) string {
	return string(role) + token
}

// SplitPrefixed splits a wire-form, role-prefixed token into its role and
// bare token. It fails if s is too short to carry both a prefix byte and a
// full 32-char token.
func SplitPrefixed(s string) (Role, string, error) {
	if len(s) != 1+2*tokenBytes {
		return 0, "", fmt.Errorf("token %q has unexpected length %d", s, len(s))
	}
	role := Role(s[0])
	if !role.Valid() {
		return 0, "", fmt.Errorf("token %q has unrecognized role prefix %q", s, s[0:1])
	}
	return role, s[1:], nil
}
