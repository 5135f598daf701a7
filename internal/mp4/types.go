package mp4

import "github.com/divinus-go/camerad/internal/packet"

// VideoTimescale is the fixed video timescale used throughout the muxer
// (§4.D: "Timescale: 90 kHz video").
const VideoTimescale = 90000

// AudioCodec identifies the audio decoder-config shape in the init segment.
type AudioCodec int

const (
	AudioNone AudioCodec = iota
	AudioMP3
	AudioAACLC
)

// Config is set once via set_config (§4.D) and drives both the init
// segment's trak(s) and the per-fragment sample duration math.
type Config struct {
	Width, Height int
	FPS           int
	VideoCodec    packet.Codec // CodecH264, CodecH264Plus, or CodecH265

	AudioCodec     AudioCodec
	AudioBitrate   int
	AudioChannels  int
	AudioSampleRate int
}

// DefaultSampleDuration returns the inverse-fps duration in video timescale
// units (§3's MP4 Client State field).
func (c Config) DefaultSampleDuration() uint32 {
	if c.FPS <= 0 {
		return VideoTimescale / 30
	}
	return uint32(VideoTimescale / c.FPS)
}

// decoderConfig caches the SPS/PPS (H.264) or VPS/SPS/PPS (H.265) captured
// from the live NALU stream, used to (re)build avcC/hvcC.
type decoderConfig struct {
	sps []byte
	pps []byte
	vps []byte // H.265 only
}

func (d decoderConfig) ready(videoCodec packet.Codec) bool {
	if len(d.sps) == 0 || len(d.pps) == 0 {
		return false
	}
	if videoCodec == packet.CodecH265 && len(d.vps) == 0 {
		return false
	}
	return true
}

// Sample is one muxed video or audio sample inside a Fragment's mdat.
type Sample struct {
	Data       []byte
	DurationTS uint32 // in the track's timescale
	IsSync     bool   // keyframe, for trun sample_flags
}

// Fragment is one flushed IDR-to-next-IDR group of video samples plus the
// audio samples that arrived during that span (§4.D "Media segment per
// keyframe group").
type Fragment struct {
	Video []Sample
	Audio []Sample
}

// ClientState is the MP4 Client State data model (§3), owned exclusively
// by fanout.Table rows — the muxer only reads/advances it through
// GetMoof/GetMdat and never stores it itself.
type ClientState struct {
	HeaderSent           bool
	SequenceNumber       uint32
	BaseDataOffset       uint64
	BaseMediaDecodeTime  uint64
	DefaultSampleDuration uint32
	NALsAccumulated      int

	// Not written by this package. An existing client keeps the init segment
	// it was first sent even if the live stream's SPS/PPS later changes,
	// because HeaderSent stops a second init segment from being sent.
	lastSPS, lastPPS, lastVPS []byte
}
