// Package peerwire implements the BitTorrent peer wire protocol (BEP 3):
// the 68-byte handshake and the length-prefixed message stream, including a
// frame reader that tolerates arbitrarily interleaved messages across TCP
// reads. Grounded on the teacher's peer.Handshake/ReadHandShake and
// message.Message/ReadMessage, generalized per spec.md §4.3.
package peerwire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/coreswarm/gorent/internal/bterror"
	"github.com/coreswarm/gorent/internal/metainfo"
	"github.com/coreswarm/gorent/internal/peerid"
)

const (
	pstr       = "BitTorrent protocol"
	pstrlen    = byte(len(pstr))
	handshakeLen = 49 + len(pstr) // 68
)

// Handshake is the fixed 68-byte BitTorrent handshake.
type Handshake struct {
	InfoHash metainfo.InfoHash
	PeerID   peerid.ID
}

// NewHandshake builds a Handshake carrying exactly the peer id supplied by
// the caller. Unlike the original Rust source's handshake constructor,
// which substituted a literal id, it never replaces the caller's id
// (spec.md §9).
func NewHandshake(infoHash metainfo.InfoHash, id peerid.ID) *Handshake {
	return &Handshake{InfoHash: infoHash, PeerID: id}
}

// Serialize encodes h into the fixed 68-byte wire layout.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, handshakeLen)
	buf[0] = pstrlen
	copy(buf[1:1+len(pstr)], pstr)
	// bytes 20..27 (reserved) are left zero.
	cursor := 1 + len(pstr) + 8
	copy(buf[cursor:cursor+20], h.InfoHash.Bytes())
	copy(buf[cursor+20:cursor+40], h.PeerID.Bytes())
	return buf
}

// ReadHandshake reads and validates a handshake from r against
// expectedInfoHash, rejecting any buffer shorter than 68 bytes, any
// pstrlen other than 19, any protocol string other than "BitTorrent
// protocol", and any info_hash mismatch, per spec.md §4.3.1. A mismatch of
// any of these is HandshakeRejected, which is fatal to the calling
// session.
func ReadHandshake(r io.Reader, expectedInfoHash metainfo.InfoHash) (*Handshake, error) {
	const op = "peerwire.ReadHandshake"

	buf := make([]byte, handshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, bterror.New(op, bterror.HandshakeRejected, fmt.Errorf("read handshake: %w", err))
	}

	if buf[0] != pstrlen {
		return nil, bterror.New(op, bterror.HandshakeRejected,
			fmt.Errorf("pstrlen %d, want %d", buf[0], pstrlen))
	}
	if gotPstr := string(buf[1 : 1+len(pstr)]); gotPstr != pstr {
		return nil, bterror.New(op, bterror.HandshakeRejected,
			fmt.Errorf("protocol string %q, want %q", gotPstr, pstr))
	}

	cursor := 1 + len(pstr) + 8
	var gotHash metainfo.InfoHash
	copy(gotHash[:], buf[cursor:cursor+20])
	if !bytes.Equal(gotHash.Bytes(), expectedInfoHash.Bytes()) {
		return nil, bterror.New(op, bterror.HandshakeRejected,
			fmt.Errorf("info hash %s, want %s", gotHash, expectedInfoHash))
	}

	id, err := peerid.FromBytes(buf[cursor+20 : cursor+40])
	if err != nil {
		return nil, bterror.New(op, bterror.HandshakeRejected, err)
	}

	return &Handshake{InfoHash: gotHash, PeerID: id}, nil
}
