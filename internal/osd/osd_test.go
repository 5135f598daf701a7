package osd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinus-go/camerad/internal/hal"
)

func TestExpandMacrosLiteralDollar(t *testing.T) {
	got := expandMacros("price: $$5", macroSource{})
	assert.Equal(t, "price: $5", got)
}

func TestExpandMacrosTimeLocalAndUTC(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	src := macroSource{TimeFormat: "%Y-%m-%d", Now: now}
	assert.Equal(t, "2026-07-29", expandMacros("$tu", src))
	assert.Equal(t, now.Local().Format("2006-01-02"), expandMacros("$t", src))
}

func TestExpandMacrosCPUMemTemp(t *testing.T) {
	src := macroSource{CPUPercent: 42.4, MemUsedMB: 100, MemTotalMB: 512, Temperature: 55.26}
	assert.Equal(t, "42%", expandMacros("$C", src))
	assert.Equal(t, "100/512MB", expandMacros("$M", src))
	assert.Equal(t, "55.3C", expandMacros("$T", src))
}

func TestExpandMacrosISPLines(t *testing.T) {
	src := macroSource{ISPLine1: "Lum=120", ISPLine2: "AE=on"}
	assert.Equal(t, "Lum=120 | AE=on", expandMacros("$I1 | $I2", src))
}

func TestExpandMacrosBandwidthWithInterface(t *testing.T) {
	src := macroSource{BandwidthBps: map[string]float64{"eth0": 2048}}
	assert.Equal(t, "2.0KB/s", expandMacros("$B:eth0", src))
}

// --- §8 invariant 5 / scenario S4: OSD size hysteresis ---

func TestDecideAttachGrowsAlwaysReattaches(t *testing.T) {
	assert.Equal(t, decisionReattach, decideAttach(120, 40, 125, 40))
}

func TestDecideAttachShrinkBelowNinetyPercentReattaches(t *testing.T) {
	// 100x38 = 3800 vs attached 125x40 = 5000 -> 76%, below the 90% floor.
	assert.Equal(t, decisionReattach, decideAttach(125, 40, 100, 38))
}

func TestDecideAttachSmallShrinkPads(t *testing.T) {
	// area ratio above 90% shrink threshold -> pad in place, no re-attach.
	assert.Equal(t, decisionPad, decideAttach(100, 40, 98, 40))
}

func TestDecideAttachGrowAfterShrinkReattaches(t *testing.T) {
	// 110x38 (4180) vs currently-attached 100x38 (3800) -> grew, re-attach.
	assert.Equal(t, decisionReattach, decideAttach(100, 38, 110, 38))
}

func TestScenarioS4FullSequence(t *testing.T) {
	// Attach region with rendered size 120x40.
	w, h := 0, 0
	steps := []struct{ w, h int; want attachDecision }{
		{120, 40, decisionReattach},
		{125, 40, decisionReattach},
		{100, 38, decisionReattach},
		{110, 38, decisionReattach},
	}
	for i, step := range steps {
		got := decideAttach(w, h, step.w, step.h)
		require.Equalf(t, step.want, got, "step %d", i)
		if got == decisionReattach {
			w, h = step.w, step.h
		}
	}
	assert.Equal(t, 110, w)
	assert.Equal(t, 38, h)
}

// --- BMP decode round-trip ---

func TestDecodeBMP24BitRGB(t *testing.T) {
	data := buildTestBMP24(2, 2)
	bmp, err := decodeBMP(data)
	require.NoError(t, err)
	assert.Equal(t, 2, bmp.W)
	assert.Equal(t, 2, bmp.H)
	// top-left pixel was encoded red.
	assert.Equal(t, argb1555(true, 31, 0, 0), bmp.Pix[0])
}

// buildTestBMP24 constructs a minimal bottom-up 24-bit BI_RGB BMP with the
// top-left (stored last) pixel red and the rest black.
func buildTestBMP24(w, h int) []byte {
	rowSize := ((w*24 + 31) / 32) * 4
	pixelDataSize := rowSize * h
	fileSize := 54 + pixelDataSize

	buf := make([]byte, fileSize)
	buf[0], buf[1] = 'B', 'M'
	putU32(buf[2:6], uint32(fileSize))
	putU32(buf[10:14], 54)
	putU32(buf[14:18], 40)
	putU32(buf[18:22], uint32(w))
	putU32(buf[22:26], uint32(h)) // positive height => bottom-up
	putU16(buf[26:28], 1)
	putU16(buf[28:30], 24)
	putU32(buf[30:34], 0) // BI_RGB

	// Bottom-up: last row in the file is the top row of the image.
	topRowOffset := 54 + (h-1)*rowSize
	buf[topRowOffset+0] = 0x00 // B
	buf[topRowOffset+1] = 0x00 // G
	buf[topRowOffset+2] = 0xFF // R
	return buf
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func putU16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// --- compositor wiring ---

type fakeDevice struct {
	hal.Device
	created   map[int]hal.Rect
	destroyed map[int]bool
	bitmaps   map[int][2]int
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		created:   make(map[int]hal.Rect),
		destroyed: make(map[int]bool),
		bitmaps:   make(map[int][2]int),
	}
}

func (f *fakeDevice) RegionCreate(id int, rect hal.Rect, fgAlpha, bgAlpha uint8) error {
	f.created[id] = rect
	delete(f.destroyed, id)
	return nil
}

func (f *fakeDevice) RegionSetBitmap(id int, argb1555 []byte, w, h int) error {
	f.bitmaps[id] = [2]int{w, h}
	return nil
}

func (f *fakeDevice) RegionDestroy(id int) error {
	f.destroyed[id] = true
	return nil
}

func (f *fakeDevice) ReadISPExposureInfo() (string, error)  { return "", hal.ErrNotAvailable }
func (f *fakeDevice) ReadISPAverageLuma() (float64, error)  { return 0, hal.ErrNotAvailable }
func (f *fakeDevice) ReadTemperature() (float64, error)     { return 0, hal.ErrNotAvailable }

type fakeChannels struct{}

func (fakeChannels) EnabledIndices() []int    { return []int{0} }
func (fakeChannels) AcceptsOSD(int) bool      { return true }

func TestCompositorRenderAndAttachTextRegion(t *testing.T) {
	dev := newFakeDevice()
	c := NewCompositor(nil, dev, fakeChannels{})
	c.Configure(0, Region{Text: "hello", Size: 16, ColorRGB555: argb1555(true, 31, 31, 31)})

	c.renderAndAttach(0)

	_, ok := dev.bitmaps[0]
	require.True(t, ok, "expected a bitmap to be pushed for region 0")
	snap, _ := c.RegionSnapshot(0)
	assert.True(t, snap.attached)
	assert.False(t, snap.NeedsUpdate)
}

func TestCompositorEmptyRegionDestroysWhenAttached(t *testing.T) {
	dev := newFakeDevice()
	c := NewCompositor(nil, dev, fakeChannels{})
	c.Configure(0, Region{Text: "hello", Size: 16})
	c.renderAndAttach(0)
	require.True(t, dev.bitmaps[0][0] > 0)

	c.Configure(0, Region{}) // both Text and ImagePath empty -> disabled
	c.renderAndAttach(0)

	assert.True(t, dev.destroyed[0])
}
