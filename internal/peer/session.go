// Package peer implements a single outbound peer session: dialing,
// handshaking, tracking the choke state, and driving the block-level
// piece request pipeline described in spec.md §4.4. Grounded on the
// teacher's peer.Client/completeHandshake/NewClient, generalized onto
// internal/peerwire's framing and internal/bterror's tagged errors in
// place of the teacher's bare net.Conn plumbing and fmt.Errorf strings.
package peer

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/andres-erbsen/clock"
	"go.uber.org/zap"

	"github.com/coreswarm/gorent/internal/bitfield"
	"github.com/coreswarm/gorent/internal/bterror"
	"github.com/coreswarm/gorent/internal/metainfo"
	"github.com/coreswarm/gorent/internal/peerid"
	"github.com/coreswarm/gorent/internal/peerwire"
)

// State is a PeerSession's position in the state machine from spec.md
// §4.4.
type State int

const (
	Disconnected State = iota
	Connecting
	Handshaking
	Choked
	Unchoked
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Handshaking:
		return "Handshaking"
	case Choked:
		return "Choked"
	case Unchoked:
		return "Unchoked"
	case Failed:
		return "Failed"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Config configures session dialing and idle behavior.
type Config struct {
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// IdleTimeout bounds how long a session will wait for any message
	// before failing. Defaults to 120s, longer than the ~2-minute
	// keep-alive interval peers are expected to honor (spec.md §5).
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	Clock  clock.Clock        `yaml:"-"`
	Logger *zap.SugaredLogger `yaml:"-"`
}

func (c Config) applyDefaults() Config {
	if c.DialTimeout == 0 {
		c.DialTimeout = 3 * time.Second
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop().Sugar()
	}
	return c
}

// Session owns one TCP connection to one remote peer, exclusively, for
// its entire lifetime (spec.md's DATA MODEL ownership rule).
type Session struct {
	cfg            Config
	conn           net.Conn
	fr             *peerwire.FrameReader
	state          State
	choked         bool
	remoteID       peerid.ID
	infoHash       metainfo.InfoHash
	remoteBitfield bitfield.Bitfield
}

// Dial opens a TCP connection to addr, performs the handshake, and sends
// the initial Interested message, leaving the session in the Choked
// state ready for RequestPiece calls. Dial reads nothing after the
// handshake; an Unchoke sent right after it is folded in by the first
// RequestPiece call.
func Dial(ctx context.Context, cfg Config, addr string, infoHash metainfo.InfoHash, ourID peerid.ID) (*Session, error) {
	const op = "peer.Dial"
	cfg = cfg.applyDefaults()

	s := &Session{cfg: cfg, state: Connecting, choked: true, infoHash: infoHash}

	dialer := net.Dialer{Timeout: cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, bterror.New(op, bterror.IoError, err)
	}
	s.conn = conn

	stop := watchCancellation(ctx, conn)
	defer stop()

	s.state = Handshaking
	if err := s.handshake(ourID); err != nil {
		conn.Close()
		s.state = Failed
		return nil, err
	}

	s.fr = peerwire.NewFrameReader(conn)
	s.state = Choked
	if err := s.sendInterested(); err != nil {
		conn.Close()
		s.state = Failed
		return nil, err
	}

	return s, nil
}

func (s *Session) handshake(ourID peerid.ID) error {
	const op = "peer.Session.handshake"

	if err := s.conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		return bterror.New(op, bterror.IoError, err)
	}
	defer s.conn.SetDeadline(time.Time{})

	hs := peerwire.NewHandshake(s.infoHash, ourID)
	if _, err := s.conn.Write(hs.Serialize()); err != nil {
		return bterror.New(op, bterror.IoError, err)
	}

	remote, err := peerwire.ReadHandshake(s.conn, s.infoHash)
	if err != nil {
		return err
	}
	s.remoteID = remote.PeerID
	return nil
}

// State returns the session's current state.
func (s *Session) State() State { return s.state }

// RemotePeerID returns the peer id learned during the handshake.
func (s *Session) RemotePeerID() peerid.ID { return s.remoteID }

// HasPiece reports whether the remote peer has advertised piece index via
// a Bitfield or Have message observed so far. It returns false for any
// index the peer hasn't told this session about yet, which includes the
// entire torrent before the first such message arrives.
func (s *Session) HasPiece(index int) bool {
	return s.remoteBitfield.HasPiece(index)
}

// Close releases the underlying connection. Safe to call more than once.
func (s *Session) Close() {
	if s.state == Closed {
		return
	}
	s.state = Closed
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Session) sendInterested() error {
	const op = "peer.Session.sendInterested"
	msg := &peerwire.Message{ID: peerwire.Interested}
	if _, err := s.conn.Write(msg.Serialize()); err != nil {
		return bterror.New(op, bterror.IoError, err)
	}
	return nil
}

func (s *Session) sendRequest(index, begin, length int) error {
	const op = "peer.Session.sendRequest"
	if _, err := s.conn.Write(peerwire.NewRequest(index, begin, length).Serialize()); err != nil {
		return bterror.New(op, bterror.IoError, err)
	}
	return nil
}

// RequestPiece downloads one piece from the session following spec.md
// §4.4's block pipeline: blocks of up to peerwire.BlockLen bytes are
// requested sequentially, clipped to the overall remaining content only
// for the final block of the final piece. Non-Piece messages arriving
// while a request is outstanding are folded into session state or
// ignored, and the wait for a matching Piece reply is retried until one
// arrives or a fatal error occurs.
func (s *Session) RequestPiece(ctx context.Context, pieceIndex int, pieceLength, alreadyDownloaded, totalLength int64) ([]byte, error) {
	stop := watchCancellation(ctx, s.conn)
	defer stop()

	buf := make([]byte, pieceLength)
	var filled int64
	for offset := int64(0); offset < pieceLength; {
		remaining := totalLength - alreadyDownloaded
		blockLen := int64(peerwire.BlockLen)
		if remaining < blockLen {
			blockLen = remaining
		}
		if blockLen <= 0 {
			break
		}

		if err := s.waitUnchoked(ctx); err != nil {
			return nil, err
		}
		if err := s.sendRequest(pieceIndex, int(offset), int(blockLen)); err != nil {
			return nil, err
		}
		n, err := s.awaitPiece(ctx, pieceIndex, int(offset), buf)
		if err != nil {
			return nil, err
		}
		offset += int64(n)
		filled += int64(n)
		alreadyDownloaded += int64(n)
	}
	return buf[:filled], nil
}

// waitUnchoked blocks until the remote peer has unchoked this session,
// resending Interested on every KeepAlive observed while still choked
// (spec.md §4.4's CHOKED transition rule).
func (s *Session) waitUnchoked(ctx context.Context) error {
	for s.choked {
		msg, err := s.readOne(ctx)
		if err != nil {
			return err
		}
		if msg == nil {
			if s.choked {
				if err := s.sendInterested(); err != nil {
					return err
				}
			}
			continue
		}
		s.fold(msg)
	}
	return nil
}

// awaitPiece reads messages until a Piece reply matching (wantIndex,
// wantBegin) arrives, folding every other message into session state.
func (s *Session) awaitPiece(ctx context.Context, wantIndex, wantBegin int, buf []byte) (int, error) {
	const op = "peer.Session.awaitPiece"

	for {
		msg, err := s.readOne(ctx)
		if err != nil {
			return 0, err
		}
		if msg == nil {
			if s.choked {
				if err := s.sendInterested(); err != nil {
					return 0, err
				}
			}
			continue
		}
		if msg.ID != peerwire.Piece {
			s.fold(msg)
			continue
		}

		index, begin, block, ok := msg.PieceFields()
		if !ok {
			return 0, bterror.New(op, bterror.PeerProtocolError, fmt.Errorf("malformed piece message"))
		}
		if index != wantIndex || begin != wantBegin {
			return 0, bterror.New(op, bterror.PeerProtocolError,
				fmt.Errorf("piece reply index/offset %d/%d does not match outstanding request %d/%d",
					index, begin, wantIndex, wantBegin))
		}
		if begin < 0 || begin+len(block) > len(buf) {
			return 0, bterror.New(op, bterror.PeerProtocolError,
				fmt.Errorf("piece block of length %d at offset %d overflows buffer of length %d", len(block), begin, len(buf)))
		}
		copy(buf[begin:], block)
		return len(block), nil
	}
}

// fold applies a non-Piece message's effect on session state: Choke/
// Unchoke toggle the choking flag, Have/Bitfield update the remote peer's
// known piece availability (spec.md §4.4; not acted on by this
// single-peer sequential driver, but retained for a caller that wants to
// check HasPiece before dialing the next peer for a given piece).
func (s *Session) fold(msg *peerwire.Message) {
	switch msg.ID {
	case peerwire.Choke:
		s.choked = true
		s.state = Choked
	case peerwire.Unchoke:
		s.choked = false
		s.state = Unchoked
	case peerwire.Bitfield:
		s.remoteBitfield = append(bitfield.Bitfield(nil), msg.Payload...)
	case peerwire.Have:
		if index, err := peerwire.ParseHave(msg); err == nil {
			s.growBitfield(index)
			s.remoteBitfield.SetPiece(index)
		}
	}
}

// growBitfield extends remoteBitfield, if necessary, so it has room for
// index. A Have for a piece beyond the last advertised Bitfield is valid
// BEP-3 traffic (the peer is reporting newly-completed pieces).
func (s *Session) growBitfield(index int) {
	needed := index/8 + 1
	if len(s.remoteBitfield) >= needed {
		return
	}
	grown := make(bitfield.Bitfield, needed)
	copy(grown, s.remoteBitfield)
	s.remoteBitfield = grown
}

func (s *Session) readOne(ctx context.Context) (*peerwire.Message, error) {
	const op = "peer.Session.readOne"
	if err := ctx.Err(); err != nil {
		return nil, bterror.New(op, bterror.Canceled, err)
	}
	if err := s.conn.SetReadDeadline(s.cfg.Clock.Now().Add(s.cfg.IdleTimeout)); err != nil {
		return nil, bterror.New(op, bterror.IoError, err)
	}
	return s.fr.ReadMessage()
}

// watchCancellation closes conn if ctx is canceled before stop is
// called, so a blocking Read/Write aborts promptly on cancellation
// (spec.md §5), mirroring internal/trackerclient's use of the same
// pattern.
func watchCancellation(ctx context.Context, conn net.Conn) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
