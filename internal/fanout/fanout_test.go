package fanout_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinus-go/camerad/internal/fanout"
	"github.com/divinus-go/camerad/internal/mp4"
	"github.com/divinus-go/camerad/internal/packet"
)

// fakeSink is an in-memory Sink that can be told to fail its next write,
// to exercise the drop-on-failure path without a real socket.
type fakeSink struct {
	buf    bytes.Buffer
	fail   bool
	closed bool
}

func (f *fakeSink) Write(p []byte) (int, error) {
	if f.fail {
		return 0, errors.New("write failed")
	}
	return f.buf.Write(p)
}

func (f *fakeSink) Close() error {
	f.closed = true
	return nil
}

func TestH26xAwaitsSyncBeforeFirstFrame(t *testing.T) {
	table := fanout.NewTable(10)
	sink := &fakeSink{}
	_, err := table.Add(fanout.SinkH26x, 0, sink)
	require.NoError(t, err)

	nonIDR := packet.Encoded{NALUType: packet.NALUNonIDRSlice, Data: []byte{0xAA}}
	sps := packet.Encoded{NALUType: packet.NALUSPS, Data: []byte{0xBB}}

	table.SendH26x(0, []packet.Encoded{nonIDR})
	assert.Zero(t, sink.buf.Len(), "NALUs before the first SPS/VPS must be dropped")

	table.SendH26x(0, []packet.Encoded{sps})
	assert.NotZero(t, sink.buf.Len(), "an SPS NALU must start delivery")
}

func TestH26xClosesAfter300NALUs(t *testing.T) {
	table := fanout.NewTable(10)
	sink := &fakeSink{}
	_, err := table.Add(fanout.SinkH26x, 0, sink)
	require.NoError(t, err)

	sps := packet.Encoded{NALUType: packet.NALUSPS, Data: []byte{0x01}}
	table.SendH26x(0, []packet.Encoded{sps})
	assert.True(t, table.HasH26xClients())

	for i := 0; i < 300; i++ {
		slice := packet.Encoded{NALUType: packet.NALUNonIDRSlice, Data: []byte{byte(i)}}
		table.SendH26x(0, []packet.Encoded{slice})
	}

	assert.False(t, table.HasH26xClients(), "connection must close once 300 NALUs have been sent")
	assert.True(t, sink.closed)
}

func TestWriteFailureDropsClientPermanently(t *testing.T) {
	table := fanout.NewTable(10)
	sink := &fakeSink{fail: true}
	_, err := table.Add(fanout.SinkH26x, 0, sink)
	require.NoError(t, err)

	sps := packet.Encoded{NALUType: packet.NALUSPS, Data: []byte{0x01}}
	table.SendH26x(0, []packet.Encoded{sps})

	assert.False(t, table.HasH26xClients(), "a client that fails once must never receive subsequent frames")
	assert.Equal(t, 0, table.Len())
}

func TestTableRejectsOverCapacity(t *testing.T) {
	table := fanout.NewTable(1)
	_, err := table.Add(fanout.SinkPCM, 0, &fakeSink{})
	require.NoError(t, err)

	_, err = table.Add(fanout.SinkPCM, 0, &fakeSink{})
	assert.Error(t, err)
}

func TestMP4SendsInitSegmentOnce(t *testing.T) {
	m := mp4.NewMuxer()
	m.SetConfig(mp4.Config{Width: 640, Height: 480, FPS: 30, VideoCodec: packet.CodecH264})
	m.IngestVideo(packet.Encoded{NALUType: packet.NALUSPS, Data: []byte{0x67, 0x01}})
	m.IngestVideo(packet.Encoded{NALUType: packet.NALUPPS, Data: []byte{0x68, 0x01}})

	table := fanout.NewTable(10)
	sink := &fakeSink{}
	_, err := table.Add(fanout.SinkMP4, 0, sink)
	require.NoError(t, err)

	m.IngestVideo(packet.Encoded{NALUType: packet.NALUIDRSlice, IsKeyframe: true, Data: []byte{0x65, 0x01}})
	frag, closed := m.IngestVideo(packet.Encoded{NALUType: packet.NALUIDRSlice, IsKeyframe: true, Data: []byte{0x65, 0x02}})
	require.True(t, closed)

	table.SendMP4(0, m, frag)
	firstLen := sink.buf.Len()
	assert.NotZero(t, firstLen)

	table.SendMP4(0, m, frag)
	assert.Greater(t, sink.buf.Len(), firstLen, "a second fragment must still be delivered after the init segment")
	assert.Equal(t, 1, bytes.Count(sink.buf.Bytes(), []byte("ftyp")))
}

func TestPCMIgnoresChannelBinding(t *testing.T) {
	table := fanout.NewTable(10)
	sink := &fakeSink{}
	_, err := table.Add(fanout.SinkPCM, 7, sink)
	require.NoError(t, err)

	table.SendPCM([]byte{0x01, 0x02})
	assert.NotZero(t, sink.buf.Len())
}
