package recorder

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sigurn/crc8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinus-go/camerad/internal/mp4"
	"github.com/divinus-go/camerad/internal/packet"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Directory:       t.TempDir(),
		FilenamePattern: "seg_$Y$m$d_$H$M$S.mp4",
		SegmentDuration: time.Hour,
		SegmentSize:     1 << 30,
	}
}

func videoConfig() mp4.Config {
	return mp4.Config{Width: 1920, Height: 1080, FPS: 30, VideoCodec: packet.CodecH264}
}

func sps() packet.Encoded {
	return packet.Encoded{Codec: packet.CodecH264, NALUType: packet.NALUSPS, Data: []byte{0x67, 0x01}}
}

func pps() packet.Encoded {
	return packet.Encoded{Codec: packet.CodecH264, NALUType: packet.NALUPPS, Data: []byte{0x68, 0x01}}
}

func idr(n byte) packet.Encoded {
	return packet.Encoded{Codec: packet.CodecH264, NALUType: packet.NALUIDRSlice, IsKeyframe: true, Data: []byte{0x65, n}}
}

func TestExpandFilenameMacros(t *testing.T) {
	ts := time.Date(2026, 7, 29, 14, 5, 9, 0, time.UTC)
	got := expandFilenameMacros("chan0_$Y$m$d_$H$M$S.mp4", ts)
	assert.Equal(t, "chan0_20260729_140509.mp4", got)
}

// TestFirstFragmentWritesInitSegmentOnce reproduces §4.K's "init segment
// sent once per segment, on first delivered fragment" against a real file
// on disk.
func TestFirstFragmentWritesInitSegmentOnce(t *testing.T) {
	w := New(nil, testConfig(t), videoConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	w.IngestVideo(sps())
	w.IngestVideo(pps())
	w.IngestVideo(idr(1)) // opens the first group, nothing flushed yet
	w.IngestVideo(idr(2)) // closes the first group -> flush

	assert.True(t, w.client.HeaderSent)
	assert.Greater(t, w.bytesWritten, int64(0))

	w.IngestVideo(idr(3)) // closes the second group -> second flush
	data, err := os.ReadFile(w.path)
	require.NoError(t, err)
	assert.Equal(t, 1, bytes.Count(data, []byte("ftyp")))
}

// TestRotationOnSegmentSize verifies a tiny segment_size forces rotation
// to a second file (§4.K rotation trigger: "bytes written >= segment_size").
func TestRotationOnSegmentSize(t *testing.T) {
	cfg := testConfig(t)
	cfg.SegmentSize = 1 // rotates after the very first fragment is written
	w := New(nil, cfg, videoConfig())
	require.NoError(t, w.Start())

	w.IngestVideo(sps())
	w.IngestVideo(pps())
	w.IngestVideo(idr(1))
	firstPath := w.path
	w.IngestVideo(idr(2)) // flush #1 -> immediately rotates past threshold

	w.IngestVideo(idr(3)) // flush #2, now against the second segment file
	secondPath := w.path
	w.Stop()

	assert.NotEqual(t, firstPath, secondPath)

	entries, err := os.ReadDir(cfg.Directory)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(entries), 2)
}

// TestStopAppendsCrc8Footer checks the trailing footer byte is present and
// matches a freshly computed checksum over the same seed (§4.K checksum
// footer, grounded on udpstream's crc16 trailer approach).
func TestStopAppendsCrc8Footer(t *testing.T) {
	w := New(nil, testConfig(t), videoConfig())
	require.NoError(t, w.Start())

	w.IngestVideo(sps())
	w.IngestVideo(pps())
	w.IngestVideo(idr(1))
	w.IngestVideo(idr(2))

	path := w.path
	written := w.bytesWritten
	w.Stop()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, int(written)+1)

	want := crc8.Checksum(footerSeed(written), crc8Table)
	assert.Equal(t, want, data[len(data)-1])
}

func TestAudioNeverTriggersAFlush(t *testing.T) {
	w := New(nil, testConfig(t), videoConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	w.IngestVideo(sps())
	w.IngestVideo(pps())
	w.IngestAudio(packet.Encoded{Codec: packet.CodecAACLC, Data: []byte{0, 1, 2}})

	assert.False(t, w.client.HeaderSent, "audio alone must never flush a fragment")
}

func TestDirectoryIsCreatedUnderneathConfiguredRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Directory = filepath.Join(cfg.Directory, "nested", "chan0")
	w := New(nil, cfg, videoConfig())
	require.NoError(t, w.Start())
	defer w.Stop()

	_, err := os.Stat(cfg.Directory)
	assert.NoError(t, err)
}
