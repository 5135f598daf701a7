// Package orchestrator implements the startup/shutdown sequencing and
// reconfiguration entrypoints of §4.J: it owns every subsystem built by the
// other internal packages and wires the HAL's capture callbacks into the
// fan-out table, MP4 muxer, RTSP server, UDP streamer, and recorder.
// Grounded on the teacher's cmd/relay/main.go shape (a flat sequence of
// fail-stop setup steps followed by one ctx/cancel-driven run loop and a
// deferred reverse-order teardown), generalized from one outbound relay
// connection to the full camera pipeline's start/stop/reconfigure surface.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/divinus-go/camerad/internal/audio"
	"github.com/divinus-go/camerad/internal/channel"
	"github.com/divinus-go/camerad/internal/config"
	"github.com/divinus-go/camerad/internal/daynight"
	"github.com/divinus-go/camerad/internal/fanout"
	"github.com/divinus-go/camerad/internal/hal"
	"github.com/divinus-go/camerad/internal/httpapi"
	"github.com/divinus-go/camerad/internal/logger"
	"github.com/divinus-go/camerad/internal/mp4"
	"github.com/divinus-go/camerad/internal/osd"
	"github.com/divinus-go/camerad/internal/packet"
	"github.com/divinus-go/camerad/internal/pidlock"
	"github.com/divinus-go/camerad/internal/recorder"
	"github.com/divinus-go/camerad/internal/rtspsrv"
	"github.com/divinus-go/camerad/internal/udpstream"
	"github.com/divinus-go/camerad/internal/watchdog"
)

// maxChannels bounds the channel registry (§4.B: "N is vendor-dependent,
// ≤ 8"); the software HAL and every supported vendor family fit within it.
const maxChannels = 8

// Orchestrator owns every long-lived subsystem and sequences their
// start/stop per §4.J.
type Orchestrator struct {
	cfg     *config.Config
	cfgPath string
	log     *logger.Logger

	lock *pidlock.Lock

	device   hal.Device
	channels *channel.Registry
	fanoutT  *fanout.Table
	muxer    *mp4.Muxer

	wd     *watchdog.Watchdog
	http   *httpapi.Server
	rtsp   *rtspsrv.Server
	udp    *udpstream.Streamer
	night  *daynight.Controller
	osdC   *osd.Compositor
	rec    *recorder.Writer
	poster *httpPoster

	audioMu  sync.Mutex
	audioEnc *audio.Encoder

	mainMu      sync.Mutex
	mainChannel int
	mjpegChan   int

	videoDone chan struct{}
	audioDone chan struct{}
	wg        sync.WaitGroup

	runCtx            context.Context
	audioWorkerCancel context.CancelFunc

	videoSeq atomic.Uint64
}

// New wires every subsystem against cfg and probes the HAL's identity
// (startup steps 1-2: config is already loaded by the caller, step 1's
// self-repair happens inside config.Load). The single-instance pidfile
// lock (§5) is acquired first, before anything touches the HAL, so a
// second invocation fails fast without disturbing a running instance.
func New(cfg *config.Config, cfgPath string, log *logger.Logger) (*Orchestrator, error) {
	if log == nil {
		log = logger.Default()
	}

	lock, err := pidlock.Acquire("divinus-camerad.pid")
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	device, err := hal.Probe(cfg.System.HALFamily)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("orchestrator: hal probe: %w", err)
	}
	identity, err := device.Identify()
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("orchestrator: hal identify: %w", err)
	}
	log.Info("hal identified", "family", identity.Family, "chip", identity.ChipID, "series", identity.Series)

	channels := channel.New(maxChannels)
	fanoutT := fanout.NewTable(maxChannels)
	muxer := mp4.NewMuxer()

	o := &Orchestrator{
		cfg:         cfg,
		cfgPath:     cfgPath,
		log:         log,
		lock:        lock,
		device:      device,
		channels:    channels,
		fanoutT:     fanoutT,
		muxer:       muxer,
		mainChannel: -1,
		mjpegChan:   -1,
	}

	wd, err := watchdog.Open(log, cfg.System.Watchdog)
	if err != nil {
		log.Warn("watchdog unavailable, continuing without it", "error", err)
	}
	o.wd = wd

	if cfg.RTSP.Enable {
		o.rtsp = rtspsrv.NewServer(fmt.Sprintf("%s:%d", cfg.RTSP.Bind, cfg.RTSP.Port), o.mediaConfig(), log)
		o.rtsp.OnPlay = func() {
			if o.mainChannel >= 0 {
				_ = o.device.ChannelRequestIDR(o.mainChannel)
			}
		}
	}

	o.udp = udpstream.NewStreamer(log)

	if cfg.NightMode.Enable {
		night, err := daynight.New(log, device, nightConfigFrom(cfg.NightMode))
		if err != nil {
			log.Warn("night controller unavailable", "error", err)
		}
		o.night = night
	}

	if cfg.OSD.Enable {
		o.osdC = osd.NewCompositor(log, device, channels)
		for _, r := range cfg.OSD.Regions {
			o.osdC.Configure(r.ID, regionFromConfig(r))
		}
	}

	if cfg.HTTPPost.Enable {
		o.poster = newHTTPPoster(log, device, cfg.HTTPPost)
	}

	o.http = httpapi.NewServer(httpapi.Deps{
		Config:           cfg,
		Device:           device,
		Channels:         channels,
		Fanout:           fanoutT,
		RTSP:             o.rtsp,
		UDP:              o.udp,
		OSD:              o.osdC,
		Night:            o.night,
		ConfigPath:       cfgPath,
		OnExit:           func() { /* wired by cmd/camerad to cancel the run context */ },
		EnableMP4:        o.EnableMP4,
		DisableMP4:       o.DisableMP4,
		ReconfigureAudio: o.ReconfigureAudio,
	}, log)

	return o, nil
}

// SetExitHandler lets the caller (cmd/camerad) wire /exit to its own
// context cancellation without the orchestrator importing os/signal.
func (o *Orchestrator) SetExitHandler(fn func()) {
	o.http.SetOnExit(fn)
}

func (o *Orchestrator) mediaConfig() rtspsrv.MediaConfig {
	mc := rtspsrv.MediaConfig{VideoCodec: videoCodecFromString(o.cfg.Stream.Codec)}
	if o.cfg.Audio.Enable {
		mc.AudioEnabled = true
		mc.AudioSampleRate = o.cfg.Audio.SampleRate
		mc.AudioChannels = o.cfg.Audio.Channels
		if o.cfg.Audio.Codec == "aac" {
			mc.AudioKind = audio.KindAACLC
		} else {
			mc.AudioKind = audio.KindMP3
		}
	}
	return mc
}

func videoCodecFromString(s string) packet.Codec {
	switch s {
	case "h265":
		return packet.CodecH265
	case "h264+":
		return packet.CodecH264Plus
	default:
		return packet.CodecH264
	}
}

// Run executes startup steps 3-11, blocks until ctx is cancelled (the main
// loop of §5's thread table: "sleep(1) + watchdog kick... no long
// blocks"), then runs the full shutdown sequence.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return o.Shutdown(shutdownCtx)
		case <-ticker.C:
			// main thread per §5: no long blocks, just the 1s keep_running poll;
			// the watchdog keeps itself fed on its own goroutine (watchdog.Start).
		}
	}
}

// Start performs startup steps 3-11 without blocking the caller: watchdog
// and control API first, then RTSP/UDP, then the HAL pipeline itself, then
// the ambient subsystems in the order §4.J specifies.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.runCtx = ctx

	if o.wd != nil && o.cfg.System.Watchdog > 0 {
		o.wd.Start(time.Duration(o.cfg.System.Watchdog) * time.Second / 3)
	}

	addr := fmt.Sprintf("%s:%d", o.cfg.System.WebBind, o.cfg.System.WebPort)
	if err := o.http.Start(ctx, addr); err != nil {
		return fmt.Errorf("orchestrator: control API: %w", err)
	}

	if o.rtsp != nil {
		if err := o.rtsp.Start(ctx); err != nil {
			return fmt.Errorf("orchestrator: rtsp: %w", err)
		}
	}

	if len(o.cfg.Stream.UDPDestinations) > 0 {
		dests := make([]udpstream.Destination, 0, len(o.cfg.Stream.UDPDestinations))
		for _, addr := range o.cfg.Stream.UDPDestinations {
			dests = append(dests, udpstream.Destination{Addr: addr, MTU: 1400})
		}
		if err := o.udp.Start(ctx, dests); err != nil {
			return fmt.Errorf("orchestrator: udp streamer: %w", err)
		}
	}

	if err := o.startPipeline(); err != nil {
		return fmt.Errorf("orchestrator: pipeline: %w", err)
	}

	if o.night != nil {
		o.night.Start(ctx)
	}

	if o.poster != nil {
		o.poster.Start(ctx)
	}

	if o.osdC != nil {
		o.osdC.Start(ctx)
	}

	if o.cfg.Record.Enable && o.cfg.Record.Continuous {
		if err := o.startRecorder(); err != nil {
			return fmt.Errorf("orchestrator: recorder: %w", err)
		}
	}

	return nil
}

// Shutdown runs the reverse-order teardown sequence of §4.J: recorder ->
// OSD -> night -> SDK teardown -> UDP -> control API -> network ->
// watchdog, releasing the pidfile lock last.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.log.Info("orchestrator: shutting down")

	if o.rec != nil {
		o.rec.Stop()
	}
	if o.osdC != nil {
		o.osdC.Stop()
	}
	if o.night != nil {
		o.night.Stop()
	}
	if o.poster != nil {
		o.poster.Stop()
	}

	o.teardownPipeline()

	if o.udp != nil {
		o.udp.Stop()
	}
	if o.rtsp != nil {
		_ = o.rtsp.Stop()
	}
	if err := o.http.Stop(ctx); err != nil {
		o.log.Warn("control API shutdown error", "error", err)
	}

	if o.wd != nil {
		o.wd.Stop()
	}

	if o.lock != nil {
		_ = o.lock.Release()
	}

	return nil
}

// startRecorder builds and starts the continuous-recording writer (§4.K),
// sized to the main channel's current geometry/codec (startup step 11).
func (o *Orchestrator) startRecorder() error {
	o.rec = recorder.New(o.log, recorder.Config{
		Directory:       o.cfg.Record.Directory,
		FilenamePattern: o.cfg.Record.Filename,
		SegmentDuration: time.Duration(o.cfg.Record.SegmentDuration) * time.Second,
		SegmentSize:     o.cfg.Record.SegmentSize,
	}, o.videoConfig())
	o.http.SetRecorder(o.rec)
	return o.rec.Start()
}

// videoConfig builds the mp4.Config shared by the fan-out muxer and the
// recorder's own muxer, reflecting the live stream section of the YAML
// config (§4.D).
func (o *Orchestrator) videoConfig() mp4.Config {
	cfg := mp4.Config{
		Width:      o.cfg.Stream.Width,
		Height:     o.cfg.Stream.Height,
		FPS:        o.cfg.Stream.FPS,
		VideoCodec: videoCodecFromString(o.cfg.Stream.Codec),
	}
	if o.cfg.Audio.Enable {
		cfg.AudioBitrate = o.cfg.Audio.Bitrate
		cfg.AudioChannels = o.cfg.Audio.Channels
		cfg.AudioSampleRate = o.cfg.Audio.SampleRate
		if o.cfg.Audio.Codec == "aac" {
			cfg.AudioCodec = mp4.AudioAACLC
		} else {
			cfg.AudioCodec = mp4.AudioMP3
		}
	}
	return cfg
}
