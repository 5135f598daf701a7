package orchestrator

import (
	"context"
	"fmt"

	"github.com/divinus-go/camerad/internal/audio"
	"github.com/divinus-go/camerad/internal/hal"
	"github.com/divinus-go/camerad/internal/packet"
)

// EnableMP4 (re)creates the main encode channel from the live Stream
// config section and feeds it to the fan-out muxer/RTSP/UDP pipeline. It
// is idempotent: a second call while a main channel already exists is a
// no-op, matching the control API's "enable_mp4 with new parameters"
// semantics once disable_mp4 has already torn the channel down (§4.J
// Reconfiguration).
func (o *Orchestrator) EnableMP4() error {
	o.mainMu.Lock()
	defer o.mainMu.Unlock()
	if o.mainChannel >= 0 {
		return nil
	}

	idx, ok := o.channels.TakeNextFree(true)
	if !ok {
		return fmt.Errorf("orchestrator: no free channel slot for main encode")
	}

	ccfg := hal.ChannelConfig{
		Width:      o.cfg.Stream.Width,
		Height:     o.cfg.Stream.Height,
		FPS:        o.cfg.Stream.FPS,
		GOP:        o.cfg.Stream.GOP,
		BitrateMin: o.cfg.Stream.BitrateMin,
		BitrateMax: o.cfg.Stream.BitrateMax,
		Profile:    o.cfg.Stream.Profile,
		RateMode:   o.cfg.Stream.RateMode,
	}
	if err := o.device.ChannelCreate(idx, ccfg); err != nil {
		o.channels.Destroy(idx)
		return fmt.Errorf("orchestrator: main channel create: %w", err)
	}
	if err := o.device.ChannelBind(idx, o.cfg.Stream.FPS); err != nil {
		o.channels.Destroy(idx)
		return fmt.Errorf("orchestrator: main channel bind: %w", err)
	}
	o.channels.Configure(idx, channelCodecFromString(o.cfg.Stream.Codec), ccfg, nil)
	o.mainChannel = idx

	o.muxer.SetConfig(o.videoConfig())
	if o.rtsp != nil {
		o.rtsp.SetMediaConfig(o.mediaConfig())
	}
	return nil
}

// DisableMP4 unbinds and destroys the main encode channel (§4.J
// Reconfiguration: "disable_mp4() (unbind+destroy the MP4 channel)").
// Idempotent.
func (o *Orchestrator) DisableMP4() error {
	o.mainMu.Lock()
	defer o.mainMu.Unlock()
	if o.mainChannel < 0 {
		return nil
	}
	idx := o.mainChannel
	_ = o.device.ChannelUnbind(idx)
	_ = o.device.ChannelDestroy(idx)
	o.channels.Destroy(idx)
	o.mainChannel = -1
	return nil
}

// ReconfigureAudio tears down and rebuilds the audio pipeline at a new
// sample rate/gain (§4.J: "disable_audio() then enable_audio()"). The codec
// copies cfg.Audio.Bitrate when the encoder is built (at startup or here);
// changing cfg.Audio.Bitrate alone does not affect the running encoder.
func (o *Orchestrator) ReconfigureAudio(sampleRate, gain int) error {
	o.audioMu.Lock()
	defer o.audioMu.Unlock()

	_ = o.device.AudioDeinit()
	if err := o.device.AudioInit(sampleRate, gain); err != nil {
		return fmt.Errorf("orchestrator: audio init: %w", err)
	}

	o.cfg.Audio.SampleRate = sampleRate
	o.cfg.Audio.Gain = gain

	if err := o.buildAudioEncoderLocked(); err != nil {
		return fmt.Errorf("orchestrator: rebuild audio encoder: %w", err)
	}
	o.http.SetAudio(o.audioEnc)

	if o.audioWorkerCancel != nil {
		o.audioWorkerCancel()
	}
	o.startAudioWorkerLocked()

	if o.rtsp != nil {
		o.rtsp.SetMediaConfig(o.mediaConfig())
	}
	return nil
}

// startAudioWorkerLocked launches the goroutine that drains the current
// audio encoder's Queue() and dispatches completed frames to MP4/RTSP/the
// recorder. Callers hold audioMu.
func (o *Orchestrator) startAudioWorkerLocked() {
	ctx, cancel := context.WithCancel(o.runCtx)
	o.audioWorkerCancel = cancel
	enc := o.audioEnc

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case record, ok := <-enc.Queue():
				if !ok {
					return
				}
				o.dispatchAudio(record)
			}
		}
	}()
}

// dispatchAudio feeds one encoded audio record (MP3 frame or length-
// prefixed AAC-LC record) to every always-on consumer: the MP4 muxer (so
// its decoder-config state stays current even without an MP4 client) and
// the RTSP server/recorder.
func (o *Orchestrator) dispatchAudio(record []byte) {
	codec := packet.CodecMP3
	kindIsAAC := o.cfg.Audio.Codec == "aac"
	if kindIsAAC {
		codec = packet.CodecAACLC
	}

	p := packet.Encoded{
		Codec: codec,
		Data:  record,
	}
	o.muxer.IngestAudio(p)
	if o.rec != nil {
		o.rec.IngestAudio(p)
	}
	if o.rtsp != nil {
		kind := audio.KindMP3
		if kindIsAAC {
			kind = audio.KindAACLC
		}
		o.rtsp.PushAudio(record, kind, uint32(o.cfg.Audio.SampleRate))
	}
}
