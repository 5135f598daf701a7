package rtspsrv

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinus-go/camerad/internal/packet"
)

func pipeSession(t *testing.T) (*session, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })
	return newSession(server), client
}

func TestReadRequestParsesMethodURIAndHeaders(t *testing.T) {
	sess, client := pipeSession(t)

	go func() {
		client.Write([]byte("OPTIONS rtsp://cam/stream0 RTSP/1.0\r\nCSeq: 1\r\n\r\n"))
	}()

	req, err := readRequest(sess)
	require.NoError(t, err)
	assert.Equal(t, "OPTIONS", req.Method)
	assert.Equal(t, "rtsp://cam/stream0", req.URI)
	assert.Equal(t, 1, req.CSeq)
}

func TestSetupRejectsUDPTransport(t *testing.T) {
	assert.False(t, isInterleavedTCP("RTP/AVP;unicast;client_port=4000-4001"))
	assert.True(t, isInterleavedTCP("RTP/AVP/TCP;unicast;interleaved=0-1"))
}

func TestParseInterleavedRange(t *testing.T) {
	lo, hi, ok := parseInterleavedRange("RTP/AVP/TCP;unicast;interleaved=2-3")
	require.True(t, ok)
	assert.EqualValues(t, 2, lo)
	assert.EqualValues(t, 3, hi)

	_, _, ok = parseInterleavedRange("RTP/AVP/TCP;unicast")
	assert.False(t, ok)
}

func TestIsAudioURI(t *testing.T) {
	assert.True(t, isAudioURI("rtsp://cam/stream0/audio"))
	assert.False(t, isAudioURI("rtsp://cam/stream0"))
}

func TestBuildSDPIncludesVideoAndAudioTracks(t *testing.T) {
	cfg := MediaConfig{
		VideoCodec:      packet.CodecH264,
		AudioEnabled:    true,
		AudioSampleRate: 8000,
		AudioChannels:   1,
	}
	body, err := buildSDP(cfg, 12345)
	require.NoError(t, err)

	sdpText := string(body)
	assert.Contains(t, sdpText, "m=video 0 RTP/AVP 96")
	assert.Contains(t, sdpText, "m=audio 0 RTP/AVP 14")
	assert.Contains(t, sdpText, "layer=3")
}

func TestBuildSDPVideoOnly(t *testing.T) {
	cfg := MediaConfig{VideoCodec: packet.CodecH265}
	body, err := buildSDP(cfg, 1)
	require.NoError(t, err)
	assert.Contains(t, string(body), "H265/90000")
	assert.NotContains(t, string(body), "m=audio")
}

func TestMarshalRTPRoundTrips(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	data, err := marshalRTP(7, 1000, 42, 96, true, payload)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
