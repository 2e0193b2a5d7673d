// Package sessionid generates opaque session identifiers.
//
// Identifiers are 256 bits from crypto/rand rendered as unpadded
// base64url, so a token can never be derived from previously issued
// ones. Request-scoped ids elsewhere use UUIDv7 for ordering; session
// ids deliberately do not, since time-ordered ids leak creation time
// and reduce the search space.
package sessionid

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const rawLen = 32

// New returns a fresh unguessable session identifier.
func New() (string, error) {
	buf := make([]byte, rawLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sessionid: entropy unavailable: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
