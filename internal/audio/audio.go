// Package audio wraps MP3/AAC-LC encoding over a PCM stream (§4.C). No Go
// MP3/AAC codec exists in this port's example corpus, so Encoder's framing
// and accounting contract — the part of §4.C that the spec actually
// prescribes byte-for-byte — is implemented in full, wired around a
// pluggable Codec interface that a real cgo binding (shine/faac, as named
// in §7) would satisfy. PassthroughCodec stands in for the missing vendor
// codec so the rest of the pipeline (queueing, muting, framing) is
// exercised in tests without a real encoder present.
package audio

import (
	"fmt"
)

// Codec is the minimal surface a real MP3 (shine) or AAC-LC (faac) binding
// would implement. The core never interprets codec internals; it only
// enforces the accounting rules in §4.C around whatever Codec produces.
type Codec interface {
	// Encode consumes exactly InputSamples() interleaved 16-bit PCM samples
	// (per channel, i.e. len(pcm) == InputSamples()*Channels()*2) and
	// returns one complete encoded frame, or nil if the codec needs more
	// input before it can emit (never true for the frame-synchronous
	// codecs this spec targets, but Encoder honors it regardless).
	Encode(pcm []byte) ([]byte, error)
	// InputSamples is the number of samples-per-channel the codec expects
	// per Encode call.
	InputSamples() int
	Channels() int
	SampleRate() int
}

// Kind distinguishes the two supported back-ends (§4.C).
type Kind int

const (
	KindMP3 Kind = iota
	KindAACLC
)

// Encoder accumulates PCM and dispatches complete frames to enc_queue,
// consumed by one worker goroutine (§4.C, §5's "Audio encode worker" row).
type Encoder struct {
	kind  Kind
	codec Codec

	pending []byte
	muted   bool

	queue chan []byte
}

// NewEncoder wraps codec for the given Kind. queueDepth bounds enc_queue;
// the worker goroutine (Run) drains it.
func NewEncoder(kind Kind, codec Codec, queueDepth int) *Encoder {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &Encoder{kind: kind, codec: codec, queue: make(chan []byte, queueDepth)}
}

// SetMute zeros PCM samples before they reach the codec; the codec still
// produces valid frames so downstream RTP/MP4 timing is preserved (§4.C
// Mute, scenario S6).
func (e *Encoder) SetMute(mute bool) { e.muted = mute }

// Queue returns the output channel frames are pushed onto. For AAC-LC
// these are length-prefixed records (2-byte little-endian length + raw
// bytes, §4.C); for MP3 they are raw frames.
func (e *Encoder) Queue() <-chan []byte { return e.queue }

// Feed accumulates raw interleaved 16-bit PCM and encodes complete frames
// as soon as enough samples have accumulated, per Kind's framing rule.
// Encoding runs on the caller's goroutine, and each encoded record is pushed
// onto the queue with a plain channel send, so Feed blocks while the queue
// is full.
func (e *Encoder) Feed(pcm []byte) error {
	if e.muted {
		pcm = zeroed(pcm)
	}
	e.pending = append(e.pending, pcm...)

	bytesPerSample := 2 * e.codec.Channels()
	frameBytes := e.codec.InputSamples() * bytesPerSample
	if frameBytes <= 0 {
		return fmt.Errorf("audio: codec reports zero-length input frame")
	}

	for len(e.pending) >= frameBytes {
		chunk := e.pending[:frameBytes]
		e.pending = e.pending[frameBytes:]

		frame, err := e.codec.Encode(chunk)
		if err != nil {
			return fmt.Errorf("audio: encode: %w", err)
		}
		if frame == nil {
			continue
		}

		record := e.frame(frame)
		e.queue <- record
	}
	return nil
}

// frame applies the per-Kind wire framing: AAC-LC gets a 2-byte
// little-endian length prefix (no ADTS header, §4.C); MP3 frames are
// emitted as-is since the MPEG frame header is itself self-delimiting.
func (e *Encoder) frame(raw []byte) []byte {
	if e.kind != KindAACLC {
		return raw
	}
	out := make([]byte, 2+len(raw))
	out[0] = byte(len(raw))
	out[1] = byte(len(raw) >> 8)
	copy(out[2:], raw)
	return out
}

func zeroed(pcm []byte) []byte {
	out := make([]byte, len(pcm))
	return out
}

// MP3FrameSize returns the exact MP3 frame size in bytes for the given
// sample rate and bitrate (kbps), per §4.C / §8's boundary behavior: the
// branch is 144 for sample rates ≥ 32000 and 72 below that.
func MP3FrameSize(sampleRate, bitrateKbps int) int {
	factor := 72
	if sampleRate >= 32000 {
		factor = 144
	}
	return factor * bitrateKbps * 1000 / sampleRate
}
