// Package trackerclient implements the BEP 15 UDP tracker protocol: the
// connect/announce exchange used to discover peers for a torrent.
// Grounded on the teacher's torrent.RequestPeers (HTTP-only; this package
// replaces that transport with the UDP one spec.md scopes) and on
// uber-kraken/tracker/announceclient's Client-interface shape.
package trackerclient

import (
	"fmt"
	"net"

	"github.com/coreswarm/gorent/internal/bterror"
	"github.com/coreswarm/gorent/internal/codec"
)

// protocolID is the BEP-15 magic constant sent at offset 0 of every
// connect request. The teacher's original source mislabels this as a
// "connection_id", a confusion spec.md calls out explicitly: it is the
// protocol_id, fixed for every connect request, never a value returned by
// the tracker.
const protocolID int64 = 0x41727101980

const (
	actionConnect  int32 = 0
	actionAnnounce int32 = 1
)

type connectRequest struct {
	TransactionID int32
}

func (r connectRequest) marshal() []byte {
	buf := make([]byte, 0, 16)
	buf = codec.AppendInt64(buf, protocolID)
	buf = codec.AppendInt32(buf, actionConnect)
	buf = codec.AppendInt32(buf, r.TransactionID)
	return buf
}

type connectResponse struct {
	TransactionID int32
	ConnectionID  int64
}

func parseConnectResponse(buf []byte) (connectResponse, error) {
	const op = "trackerclient.parseConnectResponse"
	if len(buf) < 16 {
		return connectResponse{}, bterror.New(op, bterror.TrackerProtocolError,
			fmt.Errorf("short connect response: %d bytes", len(buf)))
	}
	action := codec.Int32(buf[0:4])
	if action != actionConnect {
		return connectResponse{}, bterror.New(op, bterror.TrackerProtocolError,
			fmt.Errorf("action %d, want %d", action, actionConnect))
	}
	return connectResponse{
		TransactionID: codec.Int32(buf[4:8]),
		ConnectionID:  codec.Int64(buf[8:16]),
	}, nil
}

// Event mirrors the BEP-15 announce event field.
type Event int32

const (
	EventNone      Event = 0
	EventCompleted Event = 1
	EventStarted   Event = 2
	EventStopped   Event = 3
)

// AnnounceParams are the caller-supplied fields of an announce request;
// ConnectionID and TransactionID are filled in by the Client.
type AnnounceParams struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Downloaded int64
	Left       int64
	Uploaded   int64
	Event      Event
	Key        uint32
	Port       uint16
}

type announceRequest struct {
	ConnectionID  int64
	TransactionID int32
	Params        AnnounceParams
}

func (r announceRequest) marshal() []byte {
	buf := make([]byte, 0, 98)
	buf = codec.AppendInt64(buf, r.ConnectionID)
	buf = codec.AppendInt32(buf, actionAnnounce)
	buf = codec.AppendInt32(buf, r.TransactionID)
	buf = append(buf, r.Params.InfoHash[:]...)
	buf = append(buf, r.Params.PeerID[:]...)
	buf = codec.AppendInt64(buf, r.Params.Downloaded)
	buf = codec.AppendInt64(buf, r.Params.Left)
	buf = codec.AppendInt64(buf, r.Params.Uploaded)
	buf = codec.AppendInt32(buf, int32(r.Params.Event))
	buf = codec.AppendUint32(buf, 0) // ip: 0 means "let the tracker use the sender's address"
	buf = codec.AppendUint32(buf, r.Params.Key)
	buf = codec.AppendInt32(buf, -1) // num_want: -1 requests the tracker's default
	buf = codec.AppendUint16(buf, r.Params.Port)
	buf = codec.AppendUint16(buf, 0) // extensions
	return buf
}

// PeerEndpoint is one peer address returned by an announce.
type PeerEndpoint struct {
	IP   net.IP
	Port uint16
}

func (e PeerEndpoint) String() string {
	return net.JoinHostPort(e.IP.String(), fmt.Sprint(e.Port))
}

// AnnounceResponse is the parsed result of a successful announce.
type AnnounceResponse struct {
	TransactionID int32
	Interval      int32
	Leechers      int32
	Seeders       int32
	Peers         []PeerEndpoint
}

const announceResponseHeaderLen = 20

// parseAnnounceResponse parses buf per spec.md §4.2: a fixed 20-byte
// header followed by 6-byte peer records, terminated by (and not
// including) a 0.0.0.0:0 sentinel record, with the first surviving
// record then discarded as the responder's own address.
func parseAnnounceResponse(buf []byte) (AnnounceResponse, error) {
	const op = "trackerclient.parseAnnounceResponse"
	if len(buf) < announceResponseHeaderLen {
		return AnnounceResponse{}, bterror.New(op, bterror.TrackerProtocolError,
			fmt.Errorf("short announce response: %d bytes", len(buf)))
	}
	action := codec.Int32(buf[0:4])
	if action != actionAnnounce {
		return AnnounceResponse{}, bterror.New(op, bterror.TrackerProtocolError,
			fmt.Errorf("action %d, want %d", action, actionAnnounce))
	}

	resp := AnnounceResponse{
		TransactionID: codec.Int32(buf[4:8]),
		Interval:      codec.Int32(buf[8:12]),
		Leechers:      codec.Int32(buf[12:16]),
		Seeders:       codec.Int32(buf[16:20]),
	}

	rest := buf[announceResponseHeaderLen:]
	var records []PeerEndpoint
	for i := 0; i+6 <= len(rest); i += 6 {
		ip := net.IP(append([]byte(nil), rest[i:i+4]...))
		port := codec.Uint16(rest[i+4 : i+6])
		if ip.Equal(net.IPv4zero) && port == 0 {
			break
		}
		records = append(records, PeerEndpoint{IP: ip, Port: port})
	}
	if len(records) > 0 {
		records = records[1:] // discard responder self-address sentinel
	}
	resp.Peers = records
	return resp, nil
}
