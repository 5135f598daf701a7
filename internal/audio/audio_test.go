package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinus-go/camerad/internal/audio"
)

func TestMP3FrameSizeLowAndHighBranch(t *testing.T) {
	// 8000 Hz is below the 32000 threshold -> factor 72.
	assert.Equal(t, 72*128*1000/8000, audio.MP3FrameSize(8000, 128))
	// 48000 Hz is at/above the threshold -> factor 144.
	assert.Equal(t, 144*128*1000/48000, audio.MP3FrameSize(48000, 128))
}

func TestAACPartialFrameDoesNotDequeue(t *testing.T) {
	codec, err := audio.NewAACPassthrough(audio.AACConfig{SampleRate: 48000, Channels: 1})
	require.NoError(t, err)
	enc := audio.NewEncoder(audio.KindAACLC, codec, 4)

	// One sample short of a full 1024-sample frame (2 bytes/sample, mono).
	short := make([]byte, 1024*2-2)
	require.NoError(t, enc.Feed(short))

	select {
	case <-enc.Queue():
		t.Fatal("partial frame must not be dequeued")
	default:
	}

	// Completing the frame with the last two bytes must now emit exactly one record.
	require.NoError(t, enc.Feed(make([]byte, 2)))
	select {
	case rec := <-enc.Queue():
		length := binary.LittleEndian.Uint16(rec[:2])
		assert.Equal(t, 1024*2, int(length))
	default:
		t.Fatal("expected one complete AAC record after frame completed")
	}
}

func TestMuteZerosPCMButStillEmitsFrames(t *testing.T) {
	codec, err := audio.NewMP3Passthrough(audio.MP3Config{SampleRate: 44100, BitrateKbps: 128, SamplesPerPass: 1152})
	require.NoError(t, err)
	enc := audio.NewEncoder(audio.KindMP3, codec, 4)
	enc.SetMute(true)

	pcm := make([]byte, 1152*2)
	for i := range pcm {
		pcm[i] = 0xFF
	}
	require.NoError(t, enc.Feed(pcm))

	select {
	case frame := <-enc.Queue():
		for _, b := range frame {
			assert.Equal(t, byte(0), b, "muted PCM must be zeroed before encoding")
		}
	default:
		t.Fatal("expected one frame even while muted")
	}
}
