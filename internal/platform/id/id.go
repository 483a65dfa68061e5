// Package id generates URL-safe identifiers for speakers, participants,
// pending rolls and challenges.
//
// Identifiers are UUIDv4 bytes encoded as lowercase base32 (RFC 4648) with no
// padding, giving 26 characters that are safe in URLs, flag keys and logs.
package id

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
	"strings"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generator produces a new identifier. Managers take one so tests can pin ids.
type Generator func() (string, error)

// NewID generates an identifier from crypto/rand.
func NewID() (string, error) {
	return newIDFrom(rand.Reader)
}

func newIDFrom(r io.Reader) (string, error) {
	var raw [16]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	// RFC 4122 variant and version bits for a v4 UUID.
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80

	return strings.ToLower(encoding.EncodeToString(raw[:])), nil
}

// Sequence returns a deterministic Generator yielding prefix-1, prefix-2, ...
func Sequence(prefix string) Generator {
	n := 0
	return func() (string, error) {
		n++
		return fmt.Sprintf("%s-%d", prefix, n), nil
	}
}
