package osd

import (
	"context"
	"sync"
	"time"

	"github.com/divinus-go/camerad/internal/hal"
	"github.com/divinus-go/camerad/internal/logger"
)

// tickSliceDuration bounds how long the compositor sleeps between checks of
// the shutdown signal while waiting for the next second boundary (§4.H
// step 5: "in <=50ms increments so shutdown is responsive").
const tickSliceDuration = 50 * time.Millisecond

// Compositor owns the MAX_OSD region table and renders/attaches updates on
// a one-second cadence. Grounded on the teacher's pkg/relay/relay.go
// Start/Stop(ctx) shape: one goroutine, a context for cancellation, a
// WaitGroup so Stop blocks until the loop has actually exited.
type Compositor struct {
	log     *logger.Logger
	device  hal.Device
	chans   channelRegistry
	sysinfo *sysStats

	mu      sync.Mutex
	regions [MaxRegions]Region

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCompositor builds a Compositor bound to device for region attach calls
// and chans for per-channel attach eligibility.
func NewCompositor(log *logger.Logger, device hal.Device, chans channelRegistry) *Compositor {
	if log == nil {
		log = logger.Default()
	}
	c := &Compositor{log: log, device: device, chans: chans, sysinfo: newSysStats()}
	for i := range c.regions {
		c.regions[i].ID = i
	}
	return c
}

// Configure replaces slot id's configuration and marks it for re-render on
// the next tick (§3: control API mutates under the same field set the
// compositor reads; relaxed ordering is acceptable per §5).
func (c *Compositor) Configure(id int, cfg Region) {
	if id < 0 || id >= MaxRegions {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg.ID = id
	cfg.NeedsUpdate = true
	cfg.attached = c.regions[id].attached
	cfg.handle = c.regions[id].handle
	cfg.cachedWidth = c.regions[id].cachedWidth
	cfg.cachedHeight = c.regions[id].cachedHeight
	c.regions[id] = cfg
}

// RegionSnapshot returns a copy of slot id's current configuration, for the
// control API's GET /api/osd/<id>.
func (c *Compositor) RegionSnapshot(id int) (Region, bool) {
	if id < 0 || id >= MaxRegions {
		return Region{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regions[id], true
}

// Start launches the compositor goroutine.
func (c *Compositor) Start(ctx context.Context) {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run()
}

// Stop cancels the goroutine and waits for it to exit, destroying any
// attached HAL regions (§4.J shutdown ordering: "stop recorder -> OSD ->
// night").
func (c *Compositor) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.regions {
		if c.regions[i].attached {
			_ = c.device.RegionDestroy(i)
			c.regions[i].attached = false
		}
	}
}

func (c *Compositor) run() {
	defer c.wg.Done()
	for {
		if !c.sleepToNextSecond() {
			return
		}
		c.tick()
	}
}

// sleepToNextSecond blocks until the next wall-clock second boundary,
// waking every tickSliceDuration to check for cancellation. Returns false
// if the context was canceled.
func (c *Compositor) sleepToNextSecond() bool {
	now := time.Now()
	next := now.Truncate(time.Second).Add(time.Second)
	for {
		remaining := time.Until(next)
		if remaining <= 0 {
			return true
		}
		slice := tickSliceDuration
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(slice):
		}
	}
}

func (c *Compositor) tick() {
	c.sysinfo.sample()

	if !c.anyChannelAcceptsOSD() {
		return
	}

	c.mu.Lock()
	dirty := make([]int, 0, MaxRegions)
	for i := range c.regions {
		if c.regions[i].NeedsUpdate {
			dirty = append(dirty, i)
		}
	}
	c.mu.Unlock()

	for _, id := range dirty {
		c.renderAndAttach(id)
	}
}

// anyChannelAcceptsOSD implements §4.H's "Region attach is per-channel-
// allowed... the compositor queries the channel registry and only attaches
// to channels that accept OSD". The narrow hal.Device surface this port
// wires does not expose per-channel region binding (vendor SDKs vary on
// whether OSD is bound to the pipeline or per-encoder-channel), so the
// compositor's best-effort enforcement is an all-or-nothing gate: it skips
// every region this tick when no enabled channel currently accepts OSD
// (e.g. all channels are grayscale/night-only), logging a DebugOSD line on
// every tick that is skipped.
func (c *Compositor) anyChannelAcceptsOSD() bool {
	if c.chans == nil {
		return true
	}
	for _, idx := range c.chans.EnabledIndices() {
		if c.chans.AcceptsOSD(idx) {
			return true
		}
	}
	c.log.DebugOSD("osd skipped: no enabled channel accepts overlay attach")
	return false
}

func (c *Compositor) renderAndAttach(id int) {
	c.mu.Lock()
	region := c.regions[id]
	c.mu.Unlock()

	if region.Empty() {
		if region.attached {
			_ = c.device.RegionDestroy(id)
		}
		c.mu.Lock()
		c.regions[id] = Region{ID: id}
		c.mu.Unlock()
		return
	}

	bmp, err := c.render(&region)
	if err != nil {
		c.log.DebugOSD("osd render failed", "id", id, "error", err)
		return
	}

	c.attach(id, &region, bmp)
}

// render produces the ARGB1555 bitmap for region per §4.H step 1-2: text
// (with macro expansion) takes priority over an image path; an empty image
// path falls back to the per-slot default file.
func (c *Compositor) render(region *Region) (*argbBitmap, error) {
	if region.Text != "" {
		expanded := expandMacros(region.Text, c.macroSource())
		return renderText(expanded, region), nil
	}

	path := region.ImagePath
	if path == "" {
		path = defaultImagePath(region.ID)
	}
	return loadImageFile(path)
}

func (c *Compositor) macroSource() macroSource {
	line1, line2 := "", ""
	if c.device != nil {
		if s, err := c.device.ReadISPExposureInfo(); err == nil {
			line1 = s
		}
		if luma, err := c.device.ReadISPAverageLuma(); err == nil {
			line2 = formatLumaLine(luma)
		}
	}
	temp := 0.0
	if c.device != nil {
		if t, err := c.device.ReadTemperature(); err == nil {
			temp = t
		}
	}
	return macroSource{
		TimeFormat:   "%Y-%m-%d %H:%M:%S",
		Now:          time.Now(),
		BandwidthBps: c.sysinfo.bandwidth,
		CPUPercent:   c.sysinfo.cpuPercent,
		MemUsedMB:    c.sysinfo.memUsedMB,
		MemTotalMB:   c.sysinfo.memTotalMB,
		Temperature:  temp,
		ISPLine1:     line1,
		ISPLine2:     line2,
	}
}

func formatLumaLine(luma float64) string {
	return "Lum=" + formatFixed1(luma)
}

func formatFixed1(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := int(v)
	frac := int((v-float64(whole))*10 + 0.5)
	s := itoa(whole) + "." + itoa(frac)
	if neg {
		s = "-" + s
	}
	return s
}

// attach implements the §4.H step 3-4 size-hysteresis + HAL attach
// sequence (invariant 5, scenario S4).
func (c *Compositor) attach(id int, region *Region, bmp *argbBitmap) {
	decision := decideAttach(region.cachedWidth, region.cachedHeight, bmp.W, bmp.H)

	w, h := bmp.W, bmp.H
	final := bmp
	switch decision {
	case decisionKeep, decisionPad:
		if region.attached {
			final = padTo(bmp, region.cachedWidth, region.cachedHeight)
			w, h = region.cachedWidth, region.cachedHeight
		}
	case decisionReattach:
		if region.attached {
			_ = c.device.RegionDestroy(id)
		}
		if err := c.device.RegionCreate(id, hal.Rect{X: region.PositionX, Y: region.PositionY, W: w, H: h}, region.OpacityFG, region.OpacityBG); err != nil {
			c.log.DebugOSD("osd region create failed", "id", id, "error", err)
			return
		}
	}

	if err := c.device.RegionSetBitmap(id, packARGB1555(final), final.W, final.H); err != nil {
		c.log.DebugOSD("osd region set bitmap failed", "id", id, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions[id].attached = true
	c.regions[id].cachedWidth = w
	c.regions[id].cachedHeight = h
	c.regions[id].NeedsUpdate = false
}

// padTo transparently pads src (top-left aligned) to the attached size
// without re-attaching, per §4.H step 3's anti-churn fallback.
func padTo(src *argbBitmap, w, h int) *argbBitmap {
	if src.W == w && src.H == h {
		return src
	}
	out := newArgbBitmap(w, h)
	for y := 0; y < src.H && y < h; y++ {
		for x := 0; x < src.W && x < w; x++ {
			out.set(x, y, src.Pix[y*src.W+x])
		}
	}
	return out
}

func packARGB1555(bmp *argbBitmap) []byte {
	out := make([]byte, len(bmp.Pix)*2)
	for i, px := range bmp.Pix {
		out[2*i] = byte(px >> 8)
		out[2*i+1] = byte(px)
	}
	return out
}
