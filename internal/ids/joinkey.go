// Package ids generates the two opaque identifiers the protocol hands out:
// join-keys for registered servers and tokens for Verify/Connect sessions.
package ids

import (
	"crypto/rand"
	"fmt"
)

// humanEncodeChars is the exact alphabet and ordering the base-53 join-key
// encoding uses. It excludes characters that are easily confused with one
// another when read aloud or typed (i, l, o, I, L, O, P, 0, 1).
const humanEncodeChars = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKMNQRSTUVWXYZ23456789"

const humanEncodeBase = uint64(len(humanEncodeChars))

const joinKeyBytes = 5

// HumanEncode renders b (big-endian) in the base-53 join-key alphabet,
// least-significant digit first, with no leading-zero digits emitted. An
// all-zero input therefore encodes to the empty string, matching the
// original behavior this is ported from.
func HumanEncode(b []byte) string {
	var value uint64
	for _, by := range b {
		value = value<<8 | uint64(by)
	}

	if value == 0 {
		return ""
	}

	var out []byte
	for value > 0 {
		out = append(out, humanEncodeChars[value%humanEncodeBase])
		value /= humanEncodeBase
	}
	return string(out)
}

// NewJoinKeyBytes draws a fresh 5-byte random join-key source.
func NewJoinKeyBytes() ([]byte, error) {
	b := make([]byte, joinKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("error generating join-key bytes: %w", err)
	}
	return b, nil
}

// GenerateJoinKey produces a join-key guaranteed not to collide with an
// existing one, per exists. A freshly generated key that collides is
// discarded and regenerated, as the protocol requires.
func GenerateJoinKey(exists func(string) bool) (string, error) {
	for {
		b, err := NewJoinKeyBytes()
		if err != nil {
			return "", err
		}
		key := HumanEncode(b)
		if key != "" && !exists(key) {
			return key, nil
		}
	}
}
