// Package daynight implements the ambient-light state machine (§4.I): a
// worker goroutine samples a light source by configured priority and
// drives IR-cut, IR-LED, white-LED, and encoder grayscale with hysteresis
// and a post-transition lockout. Grounded on the teacher's
// pkg/relay/relay.go worker shape (ctx/cancel/wg, a single serialized
// state transition function) generalized from one relay connection to one
// ambient-light sampling loop.
package daynight

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/divinus-go/camerad/internal/gpio"
	"github.com/divinus-go/camerad/internal/hal"
	"github.com/divinus-go/camerad/internal/logger"
)

// Mode is the controller's current day/night state (§3 Day/Night State).
type Mode int

const (
	ModeDay Mode = iota
	ModeNight
)

func (m Mode) String() string {
	if m == ModeNight {
		return "night"
	}
	return "day"
}

// Config mirrors the night_mode config table (§6). Threshold/pin fields use
// the raw config encoding (gpio.DisabledSentinel / negative = disabled);
// IspLumLow/IspLumHi use HasISPThresholds to express "Option" per §9's
// "Manual GPIO number decoding... maps to an Option<PinId> type" pattern,
// generalized here to the luma-threshold pair.
type Config struct {
	Enable bool
	Manual bool

	HasISPThresholds bool
	IspLumLow        float64
	IspLumHi         float64

	AdcDevice    string
	AdcThreshold float64

	IrSensorPin int // raw; gpio.DecodePin applied internally

	IrCutPin1, IrCutPin2 int
	IrLedPin             int
	WhiteLedPin          int
	PinSwitchDelayUs     int

	CheckIntervalS       int
	IspSwitchLockoutS    int
}

// lightSource is implemented by each of the three sampling strategies
// (§4.I priority chain); Sample returns a 0-100 luma-like reading and
// Thresholds returns the (low, high) pair that reading is compared
// against — the ISP source uses isp_lum_low/isp_lum_hi directly, the ADC
// source uses the single adc_threshold as both edges, and the digital-GPIO
// source uses a fixed 50 as both edges against its 0/100 samples (no
// ISP-style band for either; lockout still applies).
type lightSource interface {
	Sample() (float64, error)
	Thresholds() (low, high float64)
	Close() error
}

// Controller runs the sampling+hysteresis loop and owns the GPIO lines it
// drives.
type Controller struct {
	cfg    Config
	device hal.Device
	log    *logger.Logger

	source lightSource

	irCut1, irCut2, irLed, whiteLed *gpio.Line

	mu                sync.Mutex
	mode              Mode
	lastTransition    time.Time
	idleLogLimiter    *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Controller. The light source priority chain (§4.I steps
// 1-4) is resolved once here; GPIO lines are opened eagerly so a disabled
// pin's no-op Line is already in place for night_mode to call
// unconditionally.
func New(log *logger.Logger, device hal.Device, cfg Config) (*Controller, error) {
	if log == nil {
		log = logger.Default()
	}

	c := &Controller{
		cfg:            cfg,
		device:         device,
		log:            log,
		mode:           ModeDay,
		idleLogLimiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}

	var err error
	if c.irCut1, err = gpio.Open(cfg.IrCutPin1, false); err != nil {
		return nil, err
	}
	if c.irCut2, err = gpio.Open(cfg.IrCutPin2, false); err != nil {
		return nil, err
	}
	if c.irLed, err = gpio.Open(cfg.IrLedPin, false); err != nil {
		return nil, err
	}
	if c.whiteLed, err = gpio.Open(cfg.WhiteLedPin, false); err != nil {
		return nil, err
	}

	c.source, err = resolveSource(cfg, device)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// resolveSource implements §4.I's sampling-source priority chain.
func resolveSource(cfg Config, device hal.Device) (lightSource, error) {
	if cfg.HasISPThresholds && cfg.IspLumHi > cfg.IspLumLow {
		return &ispLumaSource{device: device, low: cfg.IspLumLow, high: cfg.IspLumHi}, nil
	}
	if cfg.AdcDevice != "" {
		return &adcSource{path: cfg.AdcDevice, threshold: cfg.AdcThreshold}, nil
	}
	if _, enabled := gpio.DecodePin(cfg.IrSensorPin); enabled {
		line, err := gpio.OpenInput(cfg.IrSensorPin)
		if err != nil {
			return nil, err
		}
		return &gpioSource{line: line, threshold: 50}, nil
	}
	return &idleSource{}, nil
}

// Start launches the sampling loop. Config.Enable is not consulted here (the
// orchestrator creates no Controller when night mode is disabled). An idle
// source never transitions automatically, matching §4.I step 4, but the
// goroutine still runs so manual/forced transitions via ForceMode work.
func (c *Controller) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run()
}

// Stop halts the sampling loop and releases GPIO handles.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	c.irCut1.Close()
	c.irCut2.Close()
	c.irLed.Close()
	c.whiteLed.Close()
	c.source.Close()
}

func (c *Controller) run() {
	defer c.wg.Done()
	interval := time.Duration(c.cfg.CheckIntervalS) * time.Second
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sampleAndEvaluate()
		}
	}
}

func (c *Controller) sampleAndEvaluate() {
	if _, ok := c.source.(*idleSource); ok {
		if c.idleLogLimiter.Allow() {
			c.log.DebugNight("no automatic light source configured, idling")
		}
		return
	}

	luma, err := c.source.Sample()
	if err != nil {
		c.log.Warn("daynight: sample failed", "error", err)
		return
	}

	c.mu.Lock()
	manual := c.cfg.Manual
	mode := c.mode
	lastTransition := c.lastTransition
	c.mu.Unlock()

	if manual {
		return
	}

	lockout := time.Duration(c.cfg.IspSwitchLockoutS) * time.Second
	elapsedOK := lastTransition.IsZero() || time.Since(lastTransition) >= lockout

	low, high := c.source.Thresholds()
	switch mode {
	case ModeDay:
		if luma <= low && elapsedOK {
			c.transition(ModeNight)
		}
	case ModeNight:
		if luma >= high && elapsedOK {
			c.transition(ModeDay)
		}
	}
}

// ForceMode lets the control API force a specific mode regardless of the
// sampled luma (§4.I: "manual mode suppresses transitions; the control API
// can still force a specific mode").
func (c *Controller) ForceMode(mode Mode) {
	c.transition(mode)
}

// SetManual toggles automatic-transition suppression.
func (c *Controller) SetManual(manual bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Manual = manual
}

// CurrentMode reports the controller's current mode.
func (c *Controller) CurrentMode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// transition is night_mode(enable) (§4.I): calls channel_grayscale, pulses
// the IR-cut pin pair, then sets the IR-LED (and white-LED) — serialized
// by the controller's single goroutine plus mu for state reads from
// ForceMode/SetManual called off-goroutine by the HTTP handler.
func (c *Controller) transition(target Mode) {
	c.mu.Lock()
	if c.mode == target {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	enable := target == ModeNight

	if c.device != nil {
		if err := c.device.ChannelGrayscale(enable); err != nil {
			c.log.Warn("daynight: channel_grayscale failed", "error", err)
		}
	}

	c.pulseIRCut()

	_ = c.irLed.SetValue(enable)
	_ = c.whiteLed.SetValue(!enable)

	c.mu.Lock()
	c.mode = target
	c.lastTransition = time.Now()
	c.mu.Unlock()

	c.log.Info("daynight: transitioned", "mode", target.String())
}

// pulseIRCut asserts both sides of the IR-cut pin pair for
// pin_switch_delay_us*100 microseconds, then releases both — the
// mechanical IR-cut filter motor needs a pulse, not a held level (§4.I).
func (c *Controller) pulseIRCut() {
	delay := time.Duration(c.cfg.PinSwitchDelayUs*100) * time.Microsecond
	_ = c.irCut1.SetValue(true)
	_ = c.irCut2.SetValue(true)
	time.Sleep(delay)
	_ = c.irCut1.SetValue(false)
	_ = c.irCut2.SetValue(false)
}
