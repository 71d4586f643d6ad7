package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

const idSize = 16

// NewSessionID returns a 128-bit random identifier encoded as unpadded
// base64url. Session identifiers are bearer-adjacent: they appear in
// refresh-token claims and cache keys, so they must be unguessable.
func NewSessionID() (string, error) {
	return newID()
}

// NewFamilyID returns a rotation-family identifier. A family is minted once
// at login and inherited by every refresh token descended from that login.
func NewFamilyID() (string, error) {
	return newID()
}

func newID() (string, error) {
	var raw [idSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", errors.New("entropy source unavailable")
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashIdentifier maps a login identifier to a fixed-width hex digest so raw
// usernames and emails never appear as cache keys.
func HashIdentifier(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	return hex.EncodeToString(sum[:])
}
