package mp4

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinus-go/camerad/internal/packet"
)

func readBoxTypes(t *testing.T, data []byte) []string {
	t.Helper()
	var types []string
	for len(data) > 0 {
		require.GreaterOrEqual(t, len(data), 8)
		size := binary.BigEndian.Uint32(data[0:4])
		boxType := string(data[4:8])
		types = append(types, boxType)
		require.GreaterOrEqual(t, len(data), int(size))
		data = data[size:]
	}
	return types
}

func newTestMuxer() *Muxer {
	m := NewMuxer()
	m.SetConfig(Config{Width: 1920, Height: 1080, FPS: 30, VideoCodec: packet.CodecH264})
	return m
}

func feedDecoderConfig(m *Muxer) {
	m.IngestVideo(packet.Encoded{NALUType: packet.NALUSPS, Data: []byte{0x67, 0x42, 0x00, 0x1e}})
	m.IngestVideo(packet.Encoded{NALUType: packet.NALUPPS, Data: []byte{0x68, 0xce, 0x3c, 0x80}})
}

func TestInitSegmentHasFtypAndMoov(t *testing.T) {
	m := newTestMuxer()
	feedDecoderConfig(m)
	require.True(t, m.Ready())

	init := m.GetInitSegment()
	assert.Equal(t, []string{"ftyp", "moov"}, readBoxTypes(t, init))
}

func TestNotReadyWithoutDecoderConfig(t *testing.T) {
	m := newTestMuxer()
	assert.False(t, m.Ready())
}

// TestFragmentOrdering covers scenario S1: init segment first, then one
// moof+mdat per IDR group, with mdat holding length-prefixed NALUs and no
// duplicate SPS/PPS (those only live in avcC).
func TestFragmentOrdering(t *testing.T) {
	m := newTestMuxer()
	feedDecoderConfig(m)

	idr := []byte{0x65, 0xaa, 0xbb, 0xcc}
	p := []byte{0x41, 0x01, 0x02, 0x03}

	_, closed := m.IngestVideo(packet.Encoded{NALUType: packet.NALUIDRSlice, IsKeyframe: true, Data: idr})
	require.False(t, closed)
	_, closed = m.IngestVideo(packet.Encoded{NALUType: packet.NALUNonIDRSlice, Data: p})
	require.False(t, closed)

	// Second IDR closes the first group.
	frag, closed := m.IngestVideo(packet.Encoded{NALUType: packet.NALUIDRSlice, IsKeyframe: true, Data: []byte{0x65, 0xdd}})
	require.True(t, closed)
	require.Len(t, frag.Video, 2)
	assert.True(t, frag.Video[0].IsSync)
	assert.False(t, frag.Video[1].IsSync)

	state := &ClientState{}
	moof := m.GetMoof(frag, state)
	mdat := m.GetMdat(frag)

	assert.Equal(t, []string{"moof"}, readBoxTypes(t, moof))
	assert.Equal(t, []string{"mdat"}, readBoxTypes(t, mdat))

	mdatPayload := mdat[8:]
	assert.True(t, bytes.Contains(mdatPayload, idr))
	assert.True(t, bytes.Contains(mdatPayload, p))
	// avcC-only config must never be duplicated inside mdat.
	assert.False(t, bytes.Contains(mdatPayload, []byte{0x67, 0x42, 0x00, 0x1e}))

	// Each video sample is length-prefixed with its own size, not start-code.
	wantLen := make([]byte, 4)
	binary.BigEndian.PutUint32(wantLen, uint32(len(idr)))
	assert.True(t, bytes.HasPrefix(mdatPayload, wantLen))
}

// TestSequenceNumberIncrementsAndTimeMonotonic covers invariant 2: a
// client's sequence_number strictly increases and base_media_decode_time
// never decreases across successive fragments.
func TestSequenceNumberIncrementsAndTimeMonotonic(t *testing.T) {
	m := newTestMuxer()
	feedDecoderConfig(m)

	state := &ClientState{}
	var lastSeq uint32
	var lastTime uint64

	for i := 0; i < 3; i++ {
		m.IngestVideo(packet.Encoded{NALUType: packet.NALUIDRSlice, IsKeyframe: true, Data: []byte{0x65, byte(i)}})
		frag, closed := m.IngestVideo(packet.Encoded{NALUType: packet.NALUIDRSlice, IsKeyframe: true, Data: []byte{0x65, byte(i + 1)}})
		require.True(t, closed)

		moof := m.GetMoof(frag, state)

		// mfhd.sequence_number is zero-indexed (§4.D): the first fragment
		// ever sent to a client must carry 0, not 1.
		mfhdSeq := binary.BigEndian.Uint32(moof[20:24])
		if i == 0 {
			assert.Equal(t, uint32(0), mfhdSeq)
		}

		assert.Greater(t, state.SequenceNumber, lastSeq)
		assert.GreaterOrEqual(t, state.BaseMediaDecodeTime, lastTime)
		lastSeq = state.SequenceNumber
		lastTime = state.BaseMediaDecodeTime
	}
}

func TestTrunDataOffsetPointsPastMoofIntoMdat(t *testing.T) {
	m := newTestMuxer()
	feedDecoderConfig(m)

	m.IngestVideo(packet.Encoded{NALUType: packet.NALUIDRSlice, IsKeyframe: true, Data: []byte{0x65, 0x01}})
	frag, closed := m.IngestVideo(packet.Encoded{NALUType: packet.NALUIDRSlice, IsKeyframe: true, Data: []byte{0x65, 0x02}})
	require.True(t, closed)

	state := &ClientState{}
	moof := m.GetMoof(frag, state)

	// data_offset is the last 4 bytes of trun's fixed header region; locate
	// trun by scanning for its box type and read the field analytically
	// rather than assuming a fixed file-wide position.
	idx := bytes.Index(moof, []byte("trun"))
	require.NotEqual(t, -1, idx)
	// trun payload starts right after the 8-byte box header; data_offset is
	// the third u32 in the payload (fullbox header(4) + sample_count(4) +
	// data_offset(4)).
	dataOffset := binary.BigEndian.Uint32(moof[idx+4+8 : idx+4+12])
	assert.EqualValues(t, len(moof)+8, dataOffset)
}
