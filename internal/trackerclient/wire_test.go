package trackerclient

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreswarm/gorent/internal/codec"
)

func TestConnectRequestMarshal(t *testing.T) {
	buf := connectRequest{TransactionID: 7}.marshal()
	require.Len(t, buf, 16)
	require.Equal(t, protocolID, codec.Int64(buf[0:8]))
	require.Equal(t, actionConnect, codec.Int32(buf[8:12]))
	require.Equal(t, int32(7), codec.Int32(buf[12:16]))
}

func TestParseConnectResponse(t *testing.T) {
	buf := make([]byte, 0, 16)
	buf = codec.AppendInt32(buf, actionConnect)
	buf = codec.AppendInt32(buf, 99)
	buf = codec.AppendInt64(buf, 555)
	resp, err := parseConnectResponse(buf)
	require.NoError(t, err)
	require.Equal(t, int32(99), resp.TransactionID)
	require.Equal(t, int64(555), resp.ConnectionID)
}

func TestParseConnectResponseRejectsWrongAction(t *testing.T) {
	buf := make([]byte, 0, 16)
	buf = codec.AppendInt32(buf, actionAnnounce)
	buf = codec.AppendInt32(buf, 1)
	buf = codec.AppendInt64(buf, 1)
	_, err := parseConnectResponse(buf)
	require.Error(t, err)
}

func TestAnnounceRequestMarshalLength(t *testing.T) {
	params := AnnounceParams{Port: 6881, Event: EventStarted}
	req := announceRequest{ConnectionID: 1, TransactionID: 2, Params: params}
	buf := req.marshal()
	require.Len(t, buf, 98)
	require.Equal(t, int64(1), codec.Int64(buf[0:8]))
	require.Equal(t, actionAnnounce, codec.Int32(buf[8:12]))
	require.Equal(t, int32(2), codec.Int32(buf[12:16]))
}

func TestParseAnnounceResponseS4(t *testing.T) {
	header := []byte{
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x84,
		0x00, 0x00, 0x07, 0x08,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x02,
	}
	record := func(ip string, port uint16) []byte {
		b := append([]byte(nil), net.ParseIP(ip).To4()...)
		return codec.AppendUint16(b, port)
	}
	buf := append([]byte{}, header...)
	buf = append(buf, record("203.0.113.9", 6881)...)  // self-address sentinel
	buf = append(buf, record("198.51.100.2", 51413)...) // real peer
	buf = append(buf, []byte{0, 0, 0, 0, 0, 0}...)      // terminator

	resp, err := parseAnnounceResponse(buf)
	require.NoError(t, err)
	require.Equal(t, int32(132), resp.TransactionID) // 0x84 == 132
	require.Equal(t, int32(1800), resp.Interval)
	require.Equal(t, int32(2), resp.Seeders)
	require.Len(t, resp.Peers, 1)
	require.Equal(t, "198.51.100.2", resp.Peers[0].IP.String())
	require.Equal(t, uint16(51413), resp.Peers[0].Port)
}

func TestParseAnnounceResponseRejectsShort(t *testing.T) {
	_, err := parseAnnounceResponse(make([]byte, 10))
	require.Error(t, err)
}
