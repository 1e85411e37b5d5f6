package peer

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreswarm/gorent/internal/codec"
	"github.com/coreswarm/gorent/internal/peerwire"
)

func newTestSession(conn net.Conn, choked bool) *Session {
	return &Session{
		cfg:    Config{}.applyDefaults(),
		conn:   conn,
		fr:     peerwire.NewFrameReader(conn),
		choked: choked,
	}
}

func pieceMessageBytes(index, begin int, block []byte) []byte {
	payload := make([]byte, 8+len(block))
	codec.PutUint32(payload[0:4], uint32(index))
	codec.PutUint32(payload[4:8], uint32(begin))
	copy(payload[8:], block)
	return (&peerwire.Message{ID: peerwire.Piece, Payload: payload}).Serialize()
}

func requireRequest(t *testing.T, msg *peerwire.Message, index, begin, length int) {
	t.Helper()
	require.Equal(t, peerwire.Request, msg.ID)
	require.Equal(t, uint32(index), codec.Uint32(msg.Payload[0:4]))
	require.Equal(t, uint32(begin), codec.Uint32(msg.Payload[4:8]))
	require.Equal(t, uint32(length), codec.Uint32(msg.Payload[8:12]))
}

// TestSessionRequestPieceAssemblesInterleavedStream covers S6: two
// pieces' worth of blocks arrive interleaved with a KeepAlive and a Have
// message, and the session's choking flag updates correctly when a
// Choke/Unchoke appears mid-stream.
func TestSessionRequestPieceAssemblesInterleavedStream(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	piece0 := bytes.Repeat([]byte{0xAB}, 16384)
	piece1 := bytes.Repeat([]byte{0xCD}, 16384)

	peerDone := make(chan struct{})
	go func() {
		defer close(peerDone)
		fr := peerwire.NewFrameReader(server)

		req0, err := fr.ReadMessage()
		require.NoError(t, err)
		requireRequest(t, req0, 0, 0, 16384)

		_, err = server.Write((*peerwire.Message)(nil).Serialize()) // keep-alive
		require.NoError(t, err)
		_, err = server.Write(peerwire.NewHave(5).Serialize())
		require.NoError(t, err)
		_, err = server.Write(pieceMessageBytes(0, 0, piece0))
		require.NoError(t, err)

		req1, err := fr.ReadMessage()
		require.NoError(t, err)
		requireRequest(t, req1, 1, 0, 16384)

		_, err = server.Write((&peerwire.Message{ID: peerwire.Choke}).Serialize())
		require.NoError(t, err)
		_, err = server.Write(pieceMessageBytes(1, 0, piece1))
		require.NoError(t, err)
	}()

	s := newTestSession(client, false)

	got0, err := s.RequestPiece(context.Background(), 0, 16384, 0, 32768)
	require.NoError(t, err)
	require.Equal(t, piece0, got0)
	require.True(t, s.HasPiece(5)) // learned from the Have observed mid-stream
	require.False(t, s.HasPiece(0))

	got1, err := s.RequestPiece(context.Background(), 1, 16384, 16384, 32768)
	require.NoError(t, err)
	require.Equal(t, piece1, got1)

	require.True(t, s.choked) // Choke observed mid-stream for piece 1, no later Unchoke

	<-peerDone
}

func TestSessionWaitUnchokedResendsInterestedOnKeepAlive(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	peerDone := make(chan struct{})
	go func() {
		defer close(peerDone)
		fr := peerwire.NewFrameReader(server)

		// Prod the session with a keep-alive; while still choked it must
		// respond with Interested.
		_, err := server.Write((*peerwire.Message)(nil).Serialize())
		require.NoError(t, err)

		msg, err := fr.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, peerwire.Interested, msg.ID)

		_, err = server.Write((&peerwire.Message{ID: peerwire.Unchoke}).Serialize())
		require.NoError(t, err)
	}()

	s := newTestSession(client, true)
	err := s.waitUnchoked(context.Background())
	require.NoError(t, err)
	require.False(t, s.choked)

	<-peerDone
}
