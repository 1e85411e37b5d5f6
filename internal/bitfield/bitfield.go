// Package bitfield implements the MSB-first per-piece availability bitmap
// carried in a peer wire Bitfield message (spec.md's PeerMessage table,
// id 5). Adapted from the teacher's helpers/bitfield package, which
// implements the same bit layout but without bounds checking; a malformed
// or short bitfield from a remote peer must not panic the session, so
// every accessor here is bounds-checked.
package bitfield

// Bitfield is a byte slice whose bits are addressed MSB-first: bit 0 of
// piece index 0 is the high bit of byte 0.
type Bitfield []byte

// New allocates a Bitfield large enough to hold numPieces bits, all clear.
func New(numPieces int) Bitfield {
	return make(Bitfield, (numPieces+7)/8)
}

// HasPiece reports whether the bit for index is set. An out-of-range
// index reports false rather than panicking, since the index is usually
// driven by a value the remote peer sent.
func (bf Bitfield) HasPiece(index int) bool {
	byteIndex, offset := index/8, index%8
	if byteIndex < 0 || byteIndex >= len(bf) {
		return false
	}
	return bf[byteIndex]>>(7-offset)&1 != 0
}

// SetPiece sets the bit for index. It is a no-op if index is out of range.
func (bf Bitfield) SetPiece(index int) {
	byteIndex, offset := index/8, index%8
	if byteIndex < 0 || byteIndex >= len(bf) {
		return
	}
	bf[byteIndex] |= 1 << (7 - offset)
}

// FitsPieceCount reports whether bf is long enough to represent numPieces
// bits but no more than one byte's worth of padding longer, the shape a
// well-formed Bitfield message for a torrent with numPieces pieces must
// have (ceil(numPieces/8) bytes).
func (bf Bitfield) FitsPieceCount(numPieces int) bool {
	return len(bf) == (numPieces+7)/8
}
