/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package room publishes the player's audio frames into a shared media room
// as a synthetic participant.
package room

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the derived room key length in bytes.
const KeySize = 32

// ErrNoKeyMaterial means neither a room secret nor a fallback secret was
// configured, so no key can be derived.
var ErrNoKeyMaterial = errors.New("no key material configured")

// DeriveKey derives the per-room frame encryption key. The dedicated room
// secret wins; the fallback secret (the shared API secret) applies when no
// room secret is set. Both sides of the bridge derive the same key from the
// same inputs.
func DeriveKey(roomName, roomSecret, fallbackSecret string) ([]byte, error) {
	secret := roomSecret
	if secret == "" {
		secret = fallbackSecret
	}
	if secret == "" {
		return nil, ErrNoKeyMaterial
	}

	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte("bragi-room:"+roomName))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive room key: %w", err)
	}
	return key, nil
}
