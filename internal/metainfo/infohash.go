package metainfo

import (
	"crypto/sha1"
	"encoding/hex"
)

// InfoHash is the 20-byte SHA-1 digest of a torrent's info sub-dictionary,
// the swarm's identifier for the torrent (spec.md's DATA MODEL table).
// Modeled on uber-kraken/core/infohash.go's InfoHash value type.
type InfoHash [20]byte

// newInfoHashFromBytes hashes b (the raw bencoded span of the info
// sub-dictionary) into an InfoHash.
func newInfoHashFromBytes(b []byte) InfoHash {
	return InfoHash(sha1.Sum(b))
}

// Bytes returns the 20 raw hash bytes.
func (h InfoHash) Bytes() []byte {
	return h[:]
}

// Hex renders h as a 40-character hex string.
func (h InfoHash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h InfoHash) String() string {
	return h.Hex()
}
