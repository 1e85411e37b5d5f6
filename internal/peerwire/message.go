package peerwire

import (
	"fmt"

	"github.com/coreswarm/gorent/internal/codec"
)

// MessageID identifies the type of a non-keep-alive peer message.
type MessageID uint8

const (
	Choke MessageID = iota
	Unchoke
	Interested
	NotInterested
	Have
	Bitfield
	Request
	Piece
	Cancel
	Port
)

func (id MessageID) String() string {
	switch id {
	case Choke:
		return "Choke"
	case Unchoke:
		return "Unchoke"
	case Interested:
		return "Interested"
	case NotInterested:
		return "NotInterested"
	case Have:
		return "Have"
	case Bitfield:
		return "Bitfield"
	case Request:
		return "Request"
	case Piece:
		return "Piece"
	case Cancel:
		return "Cancel"
	case Port:
		return "Port"
	default:
		return fmt.Sprintf("MessageID(%d)", uint8(id))
	}
}

// BlockLen is the standard request/response granularity on the peer wire
// (spec.md's glossary entry for Block).
const BlockLen = 16384

// Message is one peer wire message. A KeepAlive is represented as a nil
// *Message, mirroring the teacher's ReadMessage convention, so that
// callers can distinguish "no message yet" (io timeout, handled by the
// caller) from "keep-alive received" without a separate sentinel type.
type Message struct {
	ID      MessageID
	Payload []byte
}

// Serialize encodes m into length:u32 big-endian + type:u8 + payload. A
// nil *Message serializes as a zero-length keep-alive.
func (m *Message) Serialize() []byte {
	if m == nil {
		return []byte{0, 0, 0, 0}
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4, 4+length)
	codec.PutUint32(buf, length)
	buf = append(buf, byte(m.ID))
	buf = append(buf, m.Payload...)
	return buf
}

// NewRequest builds a Request message for the given block.
func NewRequest(index, begin, length int) *Message {
	payload := make([]byte, 12)
	codec.PutUint32(payload[0:4], uint32(index))
	codec.PutUint32(payload[4:8], uint32(begin))
	codec.PutUint32(payload[8:12], uint32(length))
	return &Message{ID: Request, Payload: payload}
}

// NewHave builds a Have message announcing index.
func NewHave(index int) *Message {
	payload := make([]byte, 4)
	codec.PutUint32(payload, uint32(index))
	return &Message{ID: Have, Payload: payload}
}

// NewCancel builds a Cancel message for the given block, same layout as
// Request.
func NewCancel(index, begin, length int) *Message {
	m := NewRequest(index, begin, length)
	m.ID = Cancel
	return m
}

// ParsePiece validates msg as a Piece reply for the block starting at
// offset begin within piece wantIndex, and copies its block bytes into
// buf at that offset. It returns the number of bytes copied.
func ParsePiece(wantIndex int, buf []byte, msg *Message) (int, error) {
	if msg.ID != Piece {
		return 0, fmt.Errorf("peerwire: expected Piece, got %s", msg.ID)
	}
	if len(msg.Payload) < 8 {
		return 0, fmt.Errorf("peerwire: piece payload too short: %d bytes", len(msg.Payload))
	}
	gotIndex := int(codec.Uint32(msg.Payload[0:4]))
	if gotIndex != wantIndex {
		return 0, fmt.Errorf("peerwire: piece index %d, want %d", gotIndex, wantIndex)
	}
	begin := int(codec.Uint32(msg.Payload[4:8]))
	if begin < 0 || begin > len(buf) {
		return 0, fmt.Errorf("peerwire: piece offset %d out of range for buffer of length %d", begin, len(buf))
	}
	data := msg.Payload[8:]
	if begin+len(data) > len(buf) {
		return 0, fmt.Errorf("peerwire: piece data of length %d at offset %d overflows buffer of length %d", len(data), begin, len(buf))
	}
	copy(buf[begin:], data)
	return len(data), nil
}

// PieceFields returns the piece index, block offset, and block bytes
// carried by a Piece message. ok is false if msg is nil, not a Piece
// message, or too short to carry a header.
func (m *Message) PieceFields() (index, begin int, block []byte, ok bool) {
	if m == nil || m.ID != Piece || len(m.Payload) < 8 {
		return 0, 0, nil, false
	}
	return int(codec.Uint32(m.Payload[0:4])), int(codec.Uint32(m.Payload[4:8])), m.Payload[8:], true
}

// ParseHave extracts the piece index carried by a Have message.
func ParseHave(msg *Message) (int, error) {
	if msg.ID != Have {
		return 0, fmt.Errorf("peerwire: expected Have, got %s", msg.ID)
	}
	if len(msg.Payload) != 4 {
		return 0, fmt.Errorf("peerwire: have payload length %d, want 4", len(msg.Payload))
	}
	return int(codec.Uint32(msg.Payload)), nil
}
