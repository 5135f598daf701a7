package udpstream

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinus-go/camerad/internal/logger"
	"github.com/divinus-go/camerad/internal/packet"
)

func TestIsMulticastRange(t *testing.T) {
	assert.True(t, IsMulticast(net.ParseIP("224.0.0.1")))
	assert.True(t, IsMulticast(net.ParseIP("239.255.255.250")))
	assert.False(t, IsMulticast(net.ParseIP("192.168.1.10")))
}

// fakeConn records everything written to it without touching the network.
type fakeConn struct {
	writes [][]byte
}

func (f *fakeConn) Write(b []byte) (int, error) {
	cp := append([]byte(nil), b...)
	f.writes = append(f.writes, cp)
	return len(b), nil
}
func (f *fakeConn) Close() error { return nil }

func TestSendToFragmentsOversizedNALU(t *testing.T) {
	fc := &fakeConn{}
	dc := &destConn{dest: Destination{Addr: "udp://x", MTU: 20}, conn: fc}
	s := NewStreamer(logger.Default())

	p := packet.Encoded{Codec: packet.CodecH264, Data: make([]byte, 50)}
	s.sendTo(dc, p)

	require.Greater(t, len(fc.writes), 1, "a NALU larger than MTU must be fragmented")

	first := fc.writes[0]
	assert.Equal(t, byte(flagStart), first[1]&^flagKeyframe)
	last := fc.writes[len(fc.writes)-1]
	assert.Equal(t, byte(flagEnd), last[1]&^flagKeyframe)
}

func TestSendToSingleDatagramWhenUnderMTU(t *testing.T) {
	fc := &fakeConn{}
	dc := &destConn{dest: Destination{Addr: "udp://x", MTU: 1400}, conn: fc}
	s := NewStreamer(logger.Default())

	p := packet.Encoded{Codec: packet.CodecH265, IsKeyframe: true, Data: []byte{0x01, 0x02, 0x03}}
	s.sendTo(dc, p)

	require.Len(t, fc.writes, 1)
	datagram := fc.writes[0]
	assert.Equal(t, byte(1), datagram[0]) // H.265 codec flag
	assert.NotZero(t, datagram[1]&flagKeyframe)

	// Trailing 2 bytes must be the CRC over header+payload.
	payloadLen := len(datagram) - headerLen - crcTrailerLen
	want := crc16Checksum(datagram[:headerLen+payloadLen])
	got := uint16(datagram[len(datagram)-2])<<8 | uint16(datagram[len(datagram)-1])
	assert.Equal(t, want, got)
}
