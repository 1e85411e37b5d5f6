package peerwire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeMessageUnchoke(t *testing.T) {
	// S2: 00 00 00 05 01 decodes to {length:5, type:Unchoke, payload:none}.
	in := []byte{0x00, 0x00, 0x00, 0x05, 0x01}
	msg, consumed, err := DecodeMessage(in)
	require.NoError(t, err)
	require.Equal(t, len(in), consumed)
	require.Equal(t, Unchoke, msg.ID)
	require.Empty(t, msg.Payload)
	require.Equal(t, in, msg.Serialize())
}

func TestDecodeMessageKeepAlive(t *testing.T) {
	in := []byte{0x00, 0x00, 0x00, 0x00}
	msg, consumed, err := DecodeMessage(in)
	require.NoError(t, err)
	require.Nil(t, msg)
	require.Equal(t, 4, consumed)
	require.Equal(t, in, (*Message)(nil).Serialize())
}

func TestNewRequestSerializesPerS3(t *testing.T) {
	// S3: create_piece_request(42, 1024, 16384) serializes to the given bytes.
	want := []byte{
		0x00, 0x00, 0x00, 0x0D, 0x06,
		0x00, 0x00, 0x00, 0x2A,
		0x00, 0x00, 0x04, 0x00,
		0x00, 0x00, 0x40, 0x00,
	}
	got := NewRequest(42, 1024, 16384).Serialize()
	require.Equal(t, want, got)
}

func TestDecodeMessageTruncatedShortPrefix(t *testing.T) {
	_, _, err := DecodeMessage([]byte{0x00, 0x00})
	require.True(t, errors.Is(err, ErrTruncated))
}

func TestDecodeMessageTruncatedShortPayload(t *testing.T) {
	in := []byte{0x00, 0x00, 0x00, 0x05, 0x01, 0x00}
	_, _, err := DecodeMessage(in)
	require.True(t, errors.Is(err, ErrTruncated))
}

func TestDecodeMessageUnknownType(t *testing.T) {
	in := []byte{0x00, 0x00, 0x00, 0x01, 0xFF}
	_, consumed, err := DecodeMessage(in)
	require.True(t, errors.Is(err, ErrUnknownType))
	require.Equal(t, len(in), consumed)
}

func TestParsePieceCopiesIntoOffset(t *testing.T) {
	payload := make([]byte, 8+4)
	payload[3] = 2      // index = 2
	payload[7] = 10     // begin = 10
	copy(payload[8:], []byte{1, 2, 3, 4})
	msg := &Message{ID: Piece, Payload: payload}

	buf := make([]byte, 32)
	n, err := ParsePiece(2, buf, msg)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{1, 2, 3, 4}, buf[10:14])
}

func TestParsePieceRejectsWrongIndex(t *testing.T) {
	payload := make([]byte, 8)
	payload[3] = 5
	msg := &Message{ID: Piece, Payload: payload}
	_, err := ParsePiece(2, make([]byte, 16), msg)
	require.Error(t, err)
}

func TestFrameReaderYieldsConcatenatedMessages(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x00, 0x00, 0x00})             // keep-alive
	stream.Write(NewHave(7).Serialize())                     // Have
	stream.Write([]byte{0x00, 0x00, 0x00, 0x01, byte(Unchoke)}) // Unchoke

	fr := NewFrameReader(&stream)

	m1, err := fr.ReadMessage()
	require.NoError(t, err)
	require.Nil(t, m1)

	m2, err := fr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, Have, m2.ID)
	idx, err := ParseHave(m2)
	require.NoError(t, err)
	require.Equal(t, 7, idx)

	m3, err := fr.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, Unchoke, m3.ID)
}

func TestFrameReaderRejectsOversizedDeclaredLength(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	fr := NewFrameReaderSize(&stream, 1024)
	_, err := fr.ReadMessage()
	require.Error(t, err)
}

type chunkedReader struct {
	chunks [][]byte
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, errEOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

var errEOF = errors.New("chunkedReader: exhausted")

func TestFrameReaderAssemblesMessageSplitAcrossReads(t *testing.T) {
	full := NewHave(3).Serialize()
	r := &chunkedReader{chunks: [][]byte{full[:2], full[2:5], full[5:]}}
	fr := NewFrameReader(r)

	msg, err := fr.ReadMessage()
	require.NoError(t, err)
	idx, err := ParseHave(msg)
	require.NoError(t, err)
	require.Equal(t, 3, idx)
}
