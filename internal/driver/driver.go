// Package driver sequences a single-peer, piece-by-piece download per
// spec.md §4.5, grounded on the teacher's torrent.Download/
// startDownloadWorker control flow but narrowed from its multi-peer
// worker-pool scheduling (explicitly out of scope — see spec.md's
// Non-goals on multi-peer piece scheduling) down to one session at a
// time, rotating to the next peer on any failure or hash mismatch.
package driver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/coreswarm/gorent/internal/bterror"
	"github.com/coreswarm/gorent/internal/metainfo"
	"github.com/coreswarm/gorent/internal/peerid"
	"github.com/coreswarm/gorent/internal/writer"
)

// Session is the subset of *peer.Session the driver needs. Declared here
// rather than imported so tests can substitute a fake without real
// networking; *peer.Session satisfies it structurally.
type Session interface {
	RequestPiece(ctx context.Context, pieceIndex int, pieceLength, alreadyDownloaded, totalLength int64) ([]byte, error)
	Close()
}

// Dialer opens a new Session against addr. Production callers wire this
// to peer.Dial bound with a peer.Config; tests substitute a fake.
type Dialer func(ctx context.Context, addr string, infoHash metainfo.InfoHash, ourID peerid.ID) (Session, error)

// ErrNoProgress is returned when every candidate peer has been tried
// without completing the current piece, per spec.md §4.5's exhaustion
// rule; pieces completed earlier by other peers do not prevent it. The
// command-line entry point checks for it specifically to select the
// "no peer completed" exit code.
var ErrNoProgress = errors.New("driver: exhausted all peers without completing a piece")

// Config configures driver-level logging.
type Config struct {
	Logger *zap.SugaredLogger
}

func (c Config) applyDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return c
}

// Driver drives a sequential download across pieceIndex 0..N-1, rotating
// peers on failure.
type Driver struct {
	cfg   Config
	dial  Dialer
	ourID peerid.ID
}

// New builds a Driver that dials peers via dial and identifies itself as
// ourID in every handshake.
func New(cfg Config, dial Dialer, ourID peerid.ID) *Driver {
	return &Driver{cfg: cfg.applyDefaults(), dial: dial, ourID: ourID}
}

// Download walks t's pieces in order, requesting each from the current
// peer session and verifying it against info.pieces before handing it to
// w. A piece that fails to download or fails verification causes the
// current session to be closed and the same piece to be retried against
// the next address in peerAddrs. peerAddrs is consumed monotonically
// across the whole download, so once it is exhausted Download stops with
// ErrNoProgress.
func (d *Driver) Download(ctx context.Context, t *metainfo.Torrent, peerAddrs []string, w writer.Writer) error {
	const op = "driver.Driver.Download"

	totalLength, err := t.GetTotalLength()
	if err != nil {
		return err
	}

	var downloaded int64
	nextAddr := 0
	var session Session
	defer func() {
		if session != nil {
			session.Close()
		}
	}()

	dialNext := func() error {
		for {
			if nextAddr >= len(peerAddrs) {
				return bterror.New(op, bterror.IoError, ErrNoProgress)
			}
			addr := peerAddrs[nextAddr]
			nextAddr++

			s, err := d.dial(ctx, addr, t.InfoHash, d.ourID)
			if err != nil {
				d.cfg.Logger.Warnw("peer dial failed, trying next peer", "addr", addr, "error", err)
				continue
			}
			session = s
			return nil
		}
	}

	for index := 0; index < t.NumPieces(); index++ {
		pieceLength, err := t.PieceLengthFor(index)
		if err != nil {
			return err
		}

		for {
			if session == nil {
				if err := dialNext(); err != nil {
					return err
				}
			}

			buf, err := session.RequestPiece(ctx, index, pieceLength, downloaded, totalLength)
			if err != nil {
				if bterror.Is(err, bterror.Canceled) {
					return err
				}
				d.cfg.Logger.Warnw("peer session failed mid-piece, rotating", "piece", index, "error", err)
				session.Close()
				session = nil
				continue
			}

			if !t.CheckPiece(buf, index) {
				d.cfg.Logger.Warnw("piece hash mismatch, rotating peer", "piece", index)
				session.Close()
				session = nil
				continue
			}

			if err := w.WritePiece(buf); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
			downloaded += int64(len(buf))
			break
		}
	}

	return nil
}
