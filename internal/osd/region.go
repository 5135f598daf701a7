// Package osd implements the OSD region compositor (§4.H): a single worker
// that renders text/bitmap overlays into ARGB1555 and attaches them to HAL
// regions, with size hysteresis so transient re-renders don't thrash the
// vendor region API. Grounded on the teacher's pkg/relay/relay.go worker
// loop (ctx/cancel/wg, wall-clock-aligned ticking) generalized from one
// relay goroutine to MaxRegions independent slots serviced by one thread.
package osd

// MaxRegions bounds the OSD slot table (§3 "id (0..MAX_OSD-1)").
const MaxRegions = 8

// Region is one OSD slot's configuration and sticky render state (§3 OSD
// Region). Text and ImagePath are mutually exclusive; both empty disables
// the slot.
type Region struct {
	ID      int
	Persist bool

	Text      string
	ImagePath string

	FontSpec            string
	Size                int
	ColorRGB555          uint16
	OutlineColorRGB555   uint16
	OutlineThickness     int

	PositionX, PositionY int
	OpacityFG            uint8
	OpacityBG            uint8 // 0 disables the background box
	BgColorRGB555        uint16
	Padding              int

	NeedsUpdate bool

	// attached mirrors the handle/cached_width/cached_height pair of §3;
	// only the compositor goroutine mutates these after attach.
	attached      bool
	handle        int
	cachedWidth   int
	cachedHeight  int
}

// Empty reports whether the slot has neither text nor an image configured
// (§3: "both empty = disabled").
func (r *Region) Empty() bool {
	return r.Text == "" && r.ImagePath == ""
}

// defaultImagePath is used when ImagePath is empty but Text is also empty
// and the slot was still marked for an image render (§4.H step 1).
func defaultImagePath(id int) string {
	return "/tmp/osd" + itoa(id) + ".bmp"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// attachDecision is the outcome of the size-hysteresis check (§4.H step 3).
type attachDecision int

const (
	decisionKeep attachDecision = iota
	decisionReattach
	decisionPad
)

// decideAttach implements invariant 5 / §4.H step 3: grow always re-attaches;
// shrink re-attaches only once area falls to <=90% of the attached area;
// otherwise the new bitmap is padded to the currently-attached size.
func decideAttach(attachedW, attachedH, newW, newH int) attachDecision {
	if attachedW == 0 && attachedH == 0 {
		return decisionReattach
	}
	if newW > attachedW || newH > attachedH {
		return decisionReattach
	}
	attachedArea := attachedW * attachedH
	newArea := newW * newH
	if attachedArea > 0 && newArea*100 <= attachedArea*90 {
		return decisionReattach
	}
	return decisionPad
}

// channelRegistry is the narrow surface the compositor needs from
// internal/channel.Registry: which channels exist and which accept an
// overlay attach (§4.H "grayscale/night-only channels may opt out").
type channelRegistry interface {
	EnabledIndices() []int
	AcceptsOSD(index int) bool
}
