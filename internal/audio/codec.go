package audio

import "fmt"

// MP3Config validates the MPEG-1 Layer III parameter space the spec
// allows: mono, sample rate in {32000, 44100, 48000}, bitrate 8..320 kbps.
type MP3Config struct {
	SampleRate     int
	BitrateKbps    int
	SamplesPerPass int // externally supplied accumulation size (§4.C)
}

// Validate mirrors shine_check_config (§7: "if MP3 shine_check_config
// rejects the sample-rate/bitrate pair, abort audio startup").
func (c MP3Config) Validate() error {
	switch c.SampleRate {
	case 32000, 44100, 48000:
	default:
		return fmt.Errorf("mp3: unsupported sample rate %d", c.SampleRate)
	}
	if c.BitrateKbps < 8 || c.BitrateKbps > 320 {
		return fmt.Errorf("mp3: bitrate %d kbps out of range 8..320", c.BitrateKbps)
	}
	return nil
}

// AACConfig describes the AAC-LC encoder parameter space (§4.C): 1-2
// channels, raw frames (no ADTS).
type AACConfig struct {
	SampleRate int
	Channels   int
}

func (c AACConfig) Validate() error {
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("aac: unsupported channel count %d", c.Channels)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("aac: invalid sample rate %d", c.SampleRate)
	}
	return nil
}

// PassthroughCodec is the reference Codec used when no real shine/faac
// cgo binding is wired in: it frames PCM at the correct cadence and
// accounting but emits the PCM bytes unencoded, wrapped so downstream code
// (queueing, length-prefixing, mute) exercises the real contract.
// Documented as an explicit stand-in in DESIGN.md — never used to claim a
// standards-compliant elementary stream.
type PassthroughCodec struct {
	inputSamples int
	channels     int
	sampleRate   int
}

// NewMP3Passthrough builds a PassthroughCodec whose InputSamples matches
// the real MP3 frame's sample count (1152 samples/frame for MPEG-1).
func NewMP3Passthrough(cfg MP3Config) (*PassthroughCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	samples := cfg.SamplesPerPass
	if samples <= 0 {
		samples = 1152
	}
	return &PassthroughCodec{inputSamples: samples, channels: 1, sampleRate: cfg.SampleRate}, nil
}

// NewAACPassthrough builds a PassthroughCodec matching AAC-LC's 1024
// samples/frame.
func NewAACPassthrough(cfg AACConfig) (*PassthroughCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PassthroughCodec{inputSamples: 1024, channels: cfg.Channels, sampleRate: cfg.SampleRate}, nil
}

func (c *PassthroughCodec) Encode(pcm []byte) ([]byte, error) {
	out := make([]byte, len(pcm))
	copy(out, pcm)
	return out, nil
}

func (c *PassthroughCodec) InputSamples() int { return c.inputSamples }
func (c *PassthroughCodec) Channels() int     { return c.channels }
func (c *PassthroughCodec) SampleRate() int   { return c.sampleRate }
