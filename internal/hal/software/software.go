// Package software is a pure-Go reference HAL implementation. No vendor
// silicon is available to this port, so this package stands in for it: it
// synthesizes an H.264-shaped NAL sequence with placeholder payload bytes
// (repeating SPS/PPS/IDR then P slices; not decodable by a real decoder)
// and a sine-wave PCM tone, at the configured channel
// geometry and frame rate. It is registered under the "software" family and
// is what cmd/camerad runs against by default; a real deployment would
// register a second family (e.g. "hisi") backed by cgo bindings to the
// vendor SDK, selected the same way via hal.Probe.
package software

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/divinus-go/camerad/internal/hal"
)

func init() {
	hal.Register("software", func() (hal.Device, error) { return New(), nil })
}

// Device is the reference hal.Device implementation.
type Device struct {
	mu sync.Mutex

	res       hal.Resolution
	orient    hal.Orientation
	framerate int

	channels  map[int]hal.ChannelConfig
	grayscale bool

	audioSampleRate int
	audioGain       int
	audioOn         bool

	regions map[int]region

	onVideo hal.OnVideoFunc
	onAudio hal.OnAudioFunc

	frameCounter map[int]uint64
}

type region struct {
	rect hal.Rect
}

// New constructs an idle software Device.
func New() *Device {
	return &Device{
		channels:     make(map[int]hal.ChannelConfig),
		regions:      make(map[int]region),
		frameCounter: make(map[int]uint64),
	}
}

func (d *Device) Identify() (hal.Identity, error) {
	return hal.Identity{Family: "software", ChipID: "SW0001", Series: "reference"}, nil
}

func (d *Device) PipelineCreate(res hal.Resolution, orient hal.Orientation, framerate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.res, d.orient, d.framerate = res, orient, framerate
	return nil
}

func (d *Device) PipelineDestroy() error { return nil }

func (d *Device) ChannelCreate(index int, cfg hal.ChannelConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[index] = cfg
	d.frameCounter[index] = 0
	return nil
}

func (d *Device) ChannelBind(index int, framerate int) error { return nil }
func (d *Device) ChannelUnbind(index int) error               { return nil }

func (d *Device) ChannelDestroy(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channels, index)
	delete(d.frameCounter, index)
	return nil
}

func (d *Device) ChannelGrayscale(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.grayscale = enabled
	return nil
}

func (d *Device) ChannelRequestIDR(index int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameCounter[index] = 0 // next emitted frame starts a fresh GOP
	return nil
}

func (d *Device) AudioInit(sampleRate int, gain int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.audioSampleRate, d.audioGain, d.audioOn = sampleRate, gain, true
	return nil
}

func (d *Device) AudioDeinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.audioOn = false
	return nil
}

func (d *Device) RegisterCallbacks(onVideo hal.OnVideoFunc, onAudio hal.OnAudioFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onVideo, d.onAudio = onVideo, onAudio
}

// referenceSPS/PPS are a fixed, syntactically-minimal Annex-B-stripped
// SPS/PPS pair (baseline profile, arbitrary geometry placeholders); they
// exist purely so downstream muxers/packetizers have real bytes to carry,
// not to satisfy a real H.264 decoder.
var referenceSPS = []byte{0x67, 0x42, 0x00, 0x1f, 0x96, 0x54, 0x05, 0x01, 0x7b, 0xcb, 0x37, 0x01, 0x01, 0x01, 0x02}
var referencePPS = []byte{0x68, 0xce, 0x3c, 0x80}

// VideoCaptureThread emits one NALU group per frame interval until done is
// closed, cycling SPS+PPS+IDR every gop frames and a P-slice otherwise.
func (d *Device) VideoCaptureThread(done <-chan struct{}) {
	d.mu.Lock()
	fps := d.framerate
	d.mu.Unlock()
	if fps <= 0 {
		fps = 30
	}
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.emitFrame()
		}
	}
}

func (d *Device) emitFrame() {
	d.mu.Lock()
	onVideo := d.onVideo
	var indices []int
	for idx, cfg := range d.channels {
		if cfg.Width == 0 {
			continue
		}
		indices = append(indices, idx)
	}
	d.mu.Unlock()
	if onVideo == nil {
		return
	}

	now := time.Now().UnixMicro()
	for _, idx := range indices {
		d.mu.Lock()
		cfg := d.channels[idx]
		count := d.frameCounter[idx]
		d.frameCounter[idx] = count + 1
		d.mu.Unlock()

		gop := cfg.GOP
		if gop <= 0 {
			gop = 30
		}

		if count%uint64(gop) == 0 {
			onVideo(idx, hal.VideoStream{Codec: "h264", Data: referenceSPS, TimestampUS: now})
			onVideo(idx, hal.VideoStream{Codec: "h264", Data: referencePPS, TimestampUS: now})
			onVideo(idx, hal.VideoStream{Codec: "h264", Data: syntheticSlice(true, count), IsKeyframe: true, TimestampUS: now})
		} else {
			onVideo(idx, hal.VideoStream{Codec: "h264", Data: syntheticSlice(false, count), TimestampUS: now})
		}
	}
}

// syntheticSlice fabricates a plausible-looking slice NALU: a real header
// byte (IDR=5 or non-IDR=1) followed by a deterministic payload so repeated
// runs are reproducible in tests.
func syntheticSlice(idr bool, seq uint64) []byte {
	header := byte(0x61) // nal_ref_idc=3, type=1 (non-IDR)
	if idr {
		header = 0x65 // type=5 (IDR)
	}
	payload := make([]byte, 9)
	payload[0] = header
	binary.BigEndian.PutUint64(payload[1:], seq)
	return payload
}

// AudioCaptureThread emits 20ms PCM frames of a 440Hz test tone until done
// is closed.
func (d *Device) AudioCaptureThread(done <-chan struct{}) {
	d.mu.Lock()
	sr := d.audioSampleRate
	d.mu.Unlock()
	if sr <= 0 {
		sr = 8000
	}

	frameMS := 20
	samplesPerFrame := sr * frameMS / 1000
	interval := time.Duration(frameMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var phase float64
	const freq = 440.0

	for i := 0; ; i++ {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.mu.Lock()
			onAudio := d.onAudio
			d.mu.Unlock()
			if onAudio == nil {
				continue
			}
			pcm := make([]byte, samplesPerFrame*2)
			for s := 0; s < samplesPerFrame; s++ {
				sample := int16(math.Sin(phase) * 8000)
				binary.LittleEndian.PutUint16(pcm[s*2:], uint16(sample))
				phase += 2 * math.Pi * freq / float64(sr)
			}
			onAudio(hal.AudioFrame{PCM: pcm, TimestampUS: time.Now().UnixMicro()})
		}
	}
}

func (d *Device) RegionCreate(id int, rect hal.Rect, fgAlpha, bgAlpha uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regions[id] = region{rect: rect}
	return nil
}

func (d *Device) RegionSetBitmap(id int, argb1555 []byte, w, h int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.regions[id]
	if !ok {
		return &hal.Error{Kind: hal.ErrKindNotFound, Message: "region not attached"}
	}
	r.rect.W, r.rect.H = w, h
	d.regions[id] = r
	return nil
}

func (d *Device) RegionDestroy(id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.regions, id)
	return nil
}

func (d *Device) Snapshot(index int, quality int) ([]byte, error) {
	return nil, hal.ErrNotAvailable
}

func (d *Device) ReadTemperature() (float64, error) { return 42.0, nil }

func (d *Device) ReadISPExposureInfo() (string, error) { return "", hal.ErrNotAvailable }
func (d *Device) ReadISPAverageLuma() (float64, error) { return 0, hal.ErrNotAvailable }
