package orchestrator

import (
	"fmt"

	"github.com/divinus-go/camerad/internal/audio"
	"github.com/divinus-go/camerad/internal/channel"
	"github.com/divinus-go/camerad/internal/hal"
	"github.com/divinus-go/camerad/internal/packet"
)

func channelCodecFromString(s string) channel.Codec {
	switch s {
	case "h265":
		return channel.CodecH265
	case "h264+":
		return channel.CodecH264Plus
	default:
		return channel.CodecH264
	}
}

// startPipeline performs startup step 7: HAL init -> audio init -> pipeline
// create -> encoder(s) enable -> video worker thread. The software HAL (and
// every vendor family behind hal.Device) starts its ISP/video/audio
// "threads" as the two capture-thread goroutines launched at the bottom of
// this function; there is no separate ISP thread handle to join in Go,
// since VideoCaptureThread already blocks until its done channel closes.
func (o *Orchestrator) startPipeline() error {
	if o.cfg.Audio.Enable {
		if err := o.device.AudioInit(o.cfg.Audio.SampleRate, o.cfg.Audio.Gain); err != nil {
			return fmt.Errorf("audio init: %w", err)
		}
		if err := o.buildAudioEncoderLocked(); err != nil {
			return fmt.Errorf("audio encoder: %w", err)
		}
		o.http.SetAudio(o.audioEnc)
	}

	res := hal.Resolution{Width: o.cfg.Stream.Width, Height: o.cfg.Stream.Height}
	orient := hal.Orientation{Mirror: o.cfg.ISP.Mirror, Flip: o.cfg.ISP.Flip}
	if err := o.device.PipelineCreate(res, orient, o.cfg.Stream.FPS); err != nil {
		return fmt.Errorf("pipeline create: %w", err)
	}

	o.muxer.SetConfig(o.videoConfig())

	if err := o.EnableMP4(); err != nil {
		return fmt.Errorf("enable main encode channel: %w", err)
	}

	if o.cfg.Stream.MJPEGEnable {
		idx, ok := o.channels.TakeNextFree(false)
		if !ok {
			return fmt.Errorf("no free channel slot for mjpeg")
		}
		mcfg := hal.ChannelConfig{Width: o.cfg.Stream.Width, Height: o.cfg.Stream.Height, FPS: o.cfg.Stream.FPS}
		if err := o.device.ChannelCreate(idx, mcfg); err != nil {
			return fmt.Errorf("mjpeg channel create: %w", err)
		}
		if err := o.device.ChannelBind(idx, o.cfg.Stream.FPS); err != nil {
			return fmt.Errorf("mjpeg channel bind: %w", err)
		}
		o.channels.Configure(idx, channel.CodecMJPEG, mcfg, nil)
		o.mjpegChan = idx
	}

	o.device.RegisterCallbacks(o.onVideo, o.onAudio)

	o.videoDone = make(chan struct{})
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.device.VideoCaptureThread(o.videoDone)
	}()

	if o.cfg.Audio.Enable {
		o.audioDone = make(chan struct{})
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.device.AudioCaptureThread(o.audioDone)
		}()
		o.startAudioWorkerLocked()
	}

	return nil
}

// teardownPipeline is the SDK teardown step of shutdown (§4.J): join
// video/audio capture goroutines, then destroy channels/pipeline/HAL in
// reverse creation order.
func (o *Orchestrator) teardownPipeline() {
	if o.videoDone != nil {
		close(o.videoDone)
	}
	if o.audioDone != nil {
		close(o.audioDone)
	}
	if o.audioWorkerCancel != nil {
		o.audioWorkerCancel()
	}
	o.wg.Wait()

	if o.mjpegChan >= 0 {
		_ = o.device.ChannelUnbind(o.mjpegChan)
		_ = o.device.ChannelDestroy(o.mjpegChan)
		o.channels.Destroy(o.mjpegChan)
		o.mjpegChan = -1
	}

	_ = o.DisableMP4()

	if o.cfg.Audio.Enable {
		_ = o.device.AudioDeinit()
	}

	_ = o.device.PipelineDestroy()
}

// buildAudioEncoderLocked constructs the audio.Encoder for the currently
// configured codec/sample-rate/channels (§4.C). Callers hold audioMu or are
// on the single-threaded startup path.
func (o *Orchestrator) buildAudioEncoderLocked() error {
	if o.cfg.Audio.Codec == "aac" {
		codec, err := audio.NewAACPassthrough(audio.AACConfig{SampleRate: o.cfg.Audio.SampleRate, Channels: o.cfg.Audio.Channels})
		if err != nil {
			return err
		}
		o.audioEnc = audio.NewEncoder(audio.KindAACLC, codec, 64)
	} else {
		codec, err := audio.NewMP3Passthrough(audio.MP3Config{SampleRate: o.cfg.Audio.SampleRate, BitrateKbps: o.cfg.Audio.Bitrate})
		if err != nil {
			return err
		}
		o.audioEnc = audio.NewEncoder(audio.KindMP3, codec, 64)
	}
	o.audioEnc.SetMute(o.cfg.Audio.Mute)
	return nil
}

// onVideo is the HAL video capture callback (§4.A OnVideoFunc), invoked
// from the HAL's own capture goroutine. It stamps each NALU, then fans it
// out to every sink that has a client or is otherwise always-on (MP4
// muxing needs no client to keep its decoder-config state current).
func (o *Orchestrator) onVideo(channelIndex int, stream hal.VideoStream) {
	codec := videoCodecFromString(stream.Codec)
	if stream.Codec == "mjpeg" {
		codec = packet.CodecMJPEG
	}

	data := append([]byte(nil), stream.Data...)
	p := packet.Encoded{
		ChannelIndex: channelIndex,
		Codec:        codec,
		IsKeyframe:   stream.IsKeyframe,
		TimestampUS:  stream.TimestampUS,
		Sequence:     o.videoSeq.Add(1),
		Data:         data,
	}
	if codec.IsH26x() {
		p.NALUType = packet.ClassifyNALU(codec, data)
	}

	if channelIndex == o.mjpegChan {
		o.fanoutT.SendMJPEG(channelIndex, p.Data)
		return
	}

	if channelIndex != o.mainChannel {
		return
	}

	if o.fanoutT.HasH26xClients() {
		o.fanoutT.SendH26x(channelIndex, []packet.Encoded{p})
	}
	if frag, closed := o.muxer.IngestVideo(p); closed && o.fanoutT.HasMP4Clients() {
		o.fanoutT.SendMP4(channelIndex, o.muxer, frag)
	}
	if o.rtsp != nil {
		o.rtsp.PushVideo(p, microsecondsTo90k(p.TimestampUS))
	}
	if o.udp != nil {
		o.udp.Send(p)
	}
	if o.rec != nil {
		o.rec.IngestVideo(p)
	}
}

// onAudio is the HAL audio capture callback. Raw PCM feeds the /audio.pcm
// sink unconditionally (§4.C); the same PCM also feeds the MP3/AAC-LC
// encoder. Feed encodes on this (the HAL capture) goroutine; the dedicated
// audio worker goroutine drains the encoder's queue and hands the records
// to MP4/RTSP/the recorder.
func (o *Orchestrator) onAudio(frame hal.AudioFrame) {
	if o.fanoutT.HasPCMClients() {
		o.fanoutT.SendPCM(frame.PCM)
	}

	o.audioMu.Lock()
	enc := o.audioEnc
	o.audioMu.Unlock()
	if enc == nil {
		return
	}
	if err := enc.Feed(frame.PCM); err != nil {
		o.log.Warn("audio encode failed", "error", err)
	}
}

// microsecondsTo90k converts a monotonic microsecond timestamp to the RTP
// 90 kHz video clock rate used by §4.F's PushVideo.
func microsecondsTo90k(us int64) uint32 {
	return uint32((us * 90) / 1000)
}
