// Package peerid defines the 20-byte peer identifier carried in both
// tracker announces and peer handshakes, grounded on
// uber-kraken/core/peer_id.go's PeerID value type.
package peerid

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidLength is returned when a caller-supplied peer id string does
// not decode into exactly 20 bytes.
var ErrInvalidLength = errors.New("peer id must be exactly 20 bytes")

// ID is a fixed-size peer identifier, sent as raw bytes in handshakes and
// announces. String renders it as hex, like uber-kraken's PeerID.
type ID [20]byte

// FromBytes copies b (which must be exactly 20 bytes) into an ID.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != 20 {
		return id, fmt.Errorf("peerid: %w: got %d bytes", ErrInvalidLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// FromString is a convenience wrapper for FromBytes([]byte(s)).
func FromString(s string) (ID, error) {
	return FromBytes([]byte(s))
}

// Random generates a client peer id using the Azureus-style convention
// "-GR0001-" followed by 12 random bytes, distinguishing this client on
// the wire without colliding with other well-known clients.
func Random() (ID, error) {
	var id ID
	copy(id[:], "-GR0001-")
	if _, err := rand.Read(id[8:]); err != nil {
		return ID{}, fmt.Errorf("peerid: generate random suffix: %w", err)
	}
	return id, nil
}

// Bytes returns the 20 raw bytes of id.
func (id ID) Bytes() []byte {
	return id[:]
}

// String renders id as a hex string for logging; the raw bytes are not
// generally valid UTF-8 so they aren't printed directly.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}
