package driver

import (
	"context"
	"crypto/sha1"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreswarm/gorent/internal/bterror"
	"github.com/coreswarm/gorent/internal/metainfo"
	"github.com/coreswarm/gorent/internal/peerid"
)

func twoPieceTorrent(piece0, piece1 []byte) *metainfo.Torrent {
	h0 := sha1.Sum(piece0)
	h1 := sha1.Sum(piece1)
	pieces := append(append([]byte{}, h0[:]...), h1[:]...)
	return &metainfo.Torrent{
		Name:        "t",
		PieceLength: int64(len(piece0)),
		Pieces:      pieces,
		Length:      int64(len(piece0) + len(piece1)),
	}
}

// fakeSession returns a fixed buffer (or error) from every RequestPiece
// call and records whether it has been closed.
type fakeSession struct {
	pieces map[int][]byte
	err    error
	closed bool
}

func (s *fakeSession) RequestPiece(ctx context.Context, index int, pieceLength, alreadyDownloaded, totalLength int64) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.pieces[index], nil
}

func (s *fakeSession) Close() { s.closed = true }

type fakeWriter struct {
	pieces [][]byte
	err    error
}

func (w *fakeWriter) WritePiece(buf []byte) error {
	if w.err != nil {
		return w.err
	}
	w.pieces = append(w.pieces, append([]byte{}, buf...))
	return nil
}
func (w *fakeWriter) Close() error { return nil }
func (w *fakeWriter) Abort() error { return nil }

func TestDownloadSucceedsAgainstSinglePeer(t *testing.T) {
	piece0 := []byte("AAAA")
	piece1 := []byte("BBBB")
	tor := twoPieceTorrent(piece0, piece1)

	sess := &fakeSession{pieces: map[int][]byte{0: piece0, 1: piece1}}
	dial := func(ctx context.Context, addr string, infoHash metainfo.InfoHash, ourID peerid.ID) (Session, error) {
		return sess, nil
	}

	id, err := peerid.Random()
	require.NoError(t, err)
	d := New(Config{}, dial, id)

	w := &fakeWriter{}
	err = d.Download(context.Background(), tor, []string{"peer0:6881"}, w)
	require.NoError(t, err)
	require.Equal(t, [][]byte{piece0, piece1}, w.pieces)
}

func TestDownloadRotatesPeerOnHashMismatch(t *testing.T) {
	piece0 := []byte("AAAA")
	piece1 := []byte("BBBB")
	tor := twoPieceTorrent(piece0, piece1)

	badSession := &fakeSession{pieces: map[int][]byte{0: []byte("XXXX"), 1: piece1}}
	goodSession := &fakeSession{pieces: map[int][]byte{0: piece0, 1: piece1}}

	calls := 0
	dial := func(ctx context.Context, addr string, infoHash metainfo.InfoHash, ourID peerid.ID) (Session, error) {
		calls++
		if calls == 1 {
			return badSession, nil
		}
		return goodSession, nil
	}

	id, err := peerid.Random()
	require.NoError(t, err)
	d := New(Config{}, dial, id)

	w := &fakeWriter{}
	err = d.Download(context.Background(), tor, []string{"peer0:6881", "peer1:6881"}, w)
	require.NoError(t, err)
	require.Equal(t, [][]byte{piece0, piece1}, w.pieces)
	require.True(t, badSession.closed)
}

func TestDownloadFailsWithNoProgressWhenPeersExhausted(t *testing.T) {
	piece0 := []byte("AAAA")
	piece1 := []byte("BBBB")
	tor := twoPieceTorrent(piece0, piece1)

	dial := func(ctx context.Context, addr string, infoHash metainfo.InfoHash, ourID peerid.ID) (Session, error) {
		return nil, errors.New("connection refused")
	}

	id, err := peerid.Random()
	require.NoError(t, err)
	d := New(Config{}, dial, id)

	w := &fakeWriter{}
	err = d.Download(context.Background(), tor, []string{"peer0:6881", "peer1:6881"}, w)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrNoProgress))
	require.True(t, bterror.Is(err, bterror.IoError))
}

func TestDownloadRotatesOnRequestPieceError(t *testing.T) {
	piece0 := []byte("AAAA")
	piece1 := []byte("BBBB")
	tor := twoPieceTorrent(piece0, piece1)

	failing := &fakeSession{err: errors.New("peer hung up")}
	working := &fakeSession{pieces: map[int][]byte{0: piece0, 1: piece1}}

	calls := 0
	dial := func(ctx context.Context, addr string, infoHash metainfo.InfoHash, ourID peerid.ID) (Session, error) {
		calls++
		if calls == 1 {
			return failing, nil
		}
		return working, nil
	}

	id, err := peerid.Random()
	require.NoError(t, err)
	d := New(Config{}, dial, id)

	w := &fakeWriter{}
	err = d.Download(context.Background(), tor, []string{"peer0:6881", "peer1:6881"}, w)
	require.NoError(t, err)
	require.True(t, failing.closed)
	require.Equal(t, [][]byte{piece0, piece1}, w.pieces)
}
