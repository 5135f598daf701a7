package mp4

import (
	"sync"

	"github.com/divinus-go/camerad/internal/packet"
)

// Muxer accumulates live video/audio samples and exposes them as one
// fragmented-MP4 init segment plus a stream of moof+mdat fragments, cut on
// every IDR (§4.D "Media segment per keyframe group"). One Muxer instance
// is shared by every MP4 client; per-client delivery progress lives in the
// caller-owned ClientState values passed into GetMoof/GetMdat.
type Muxer struct {
	mu sync.Mutex

	cfg Config
	dc  decoderConfig

	building Fragment // samples accumulated since the last flushed keyframe group
	ready    []Fragment
}

// NewMuxer returns a Muxer with no configuration; SetConfig must be called
// before any Ingest* call produces usable output.
func NewMuxer() *Muxer {
	return &Muxer{}
}

// SetConfig installs the stream geometry/codec description (§4.D
// set_config). Changing it resets any in-flight fragment and decoder
// config so the init segment is rebuilt from the next keyframe.
func (m *Muxer) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.dc = decoderConfig{}
	m.building = Fragment{}
}

// Config returns the currently installed configuration.
func (m *Muxer) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// IngestVideo appends one H.264/H.265 NALU to the in-progress fragment.
// An IDR-adjacent SPS/PPS/VPS NALU updates the cached decoder config used
// to build avcC/hvcC; a slice NALU (IDR or not) is appended as a sample.
// IngestVideo returns a completed Fragment and true when this NALU's
// keyframe closed the prior group (the caller should then flush a
// moof+mdat to every delivery-ready client and start counting the new
// group); otherwise it returns false.
func (m *Muxer) IngestVideo(p packet.Encoded) (Fragment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch p.NALUType {
	case packet.NALUSPS:
		m.dc.sps = append([]byte(nil), p.Data...)
		return Fragment{}, false
	case packet.NALUPPS:
		m.dc.pps = append([]byte(nil), p.Data...)
		return Fragment{}, false
	case packet.NALUVPS:
		m.dc.vps = append([]byte(nil), p.Data...)
		return Fragment{}, false
	}

	sample := Sample{
		Data:       p.Data,
		DurationTS: m.cfg.DefaultSampleDuration(),
		IsSync:     p.IsKeyframe,
	}

	if p.IsKeyframe && len(m.building.Video) > 0 {
		done := m.building
		m.building = Fragment{Video: []Sample{sample}}
		return done, true
	}

	m.building.Video = append(m.building.Video, sample)
	return Fragment{}, false
}

// IngestAudio appends one encoded audio frame to the in-progress fragment.
// Audio never closes a fragment on its own — only a video keyframe does
// (§4.D policy: fragments are cut on the video GOP boundary).
func (m *Muxer) IngestAudio(p packet.Encoded) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sample := Sample{
		Data:       p.Data,
		DurationTS: audioSampleDuration(m.cfg, p),
		IsSync:     true,
	}
	m.building.Audio = append(m.building.Audio, sample)
}

func audioSampleDuration(cfg Config, p packet.Encoded) uint32 {
	if cfg.AudioSampleRate <= 0 {
		return 0
	}
	switch cfg.AudioCodec {
	case AudioAACLC:
		return 1024
	default: // MP3
		return 1152
	}
}

// Ready reports whether enough decoder config has arrived to build an init
// segment (§4.D: a client cannot be served until SPS/PPS, or VPS/SPS/PPS
// for H.265, have all been observed at least once).
func (m *Muxer) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dc.ready(m.cfg.VideoCodec)
}

// GetInitSegment builds the ftyp+moov header for a newly-attaching client
// (§4.D: sent once per client, on first frame delivery).
func (m *Muxer) GetInitSegment() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return buildInitSegment(m.cfg, m.dc)
}

// GetMoof renders the moof box for frag against state, then advances
// state's sequence_number/base_data_offset/base_media_decode_time so the
// next call (from this same client) continues the run (§3 Client State,
// invariant 2: sequence_number is strictly increasing per client and
// base_media_decode_time never decreases).
func (m *Muxer) GetMoof(frag Fragment, state *ClientState) []byte {
	moof := buildMoof(frag, state)

	state.SequenceNumber++
	state.BaseDataOffset += uint64(len(moof)) + 8 /* mdat box header */ + mdatPayloadLen(frag)
	state.BaseMediaDecodeTime += fragmentDurationTS(frag)

	return moof
}

// GetMdat renders the mdat box for frag. It does not mutate state; call
// GetMoof first so BaseDataOffset in moof reflects the offset *before*
// this mdat, matching the wire order moof-then-mdat.
func (m *Muxer) GetMdat(frag Fragment) []byte {
	return buildMdat(frag)
}

func mdatPayloadLen(frag Fragment) uint64 {
	n := videoMdatLen(frag)
	for _, s := range frag.Audio {
		n += uint64(len(s.Data))
	}
	return n
}

func fragmentDurationTS(frag Fragment) uint64 {
	var n uint64
	for _, s := range frag.Video {
		n += uint64(s.DurationTS)
	}
	return n
}
