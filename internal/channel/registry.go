// Package channel implements the fixed-size encoder channel registry
// (§4.B). It is the single source of truth for which channels are enabled;
// the fan-out table references channels by index only, never by pointer,
// per §9's "cyclic reference... is avoided" design note.
package channel

import (
	"sync"
	"sync/atomic"

	"github.com/divinus-go/camerad/internal/hal"
)

// Codec mirrors the Channel data model's codec enum (§3).
type Codec int

const (
	CodecNone Codec = iota
	CodecH264
	CodecH264Plus
	CodecH265
	CodecMJPEG
	CodecJPEG
)

// slot is the registry's per-channel state. enabled, codec, and fileDesc
// are read via atomics so observers (capture callbacks) never take the
// allocation lock (§4.B, §5).
type slot struct {
	enabled  atomic.Bool
	codec    atomic.Int32
	fileDesc atomic.Value // opaque vendor poll handle
	osdOK    atomic.Bool

	mainLoop bool
	config   hal.ChannelConfig
}

// Registry tracks up to N encoder channels.
type Registry struct {
	mu    sync.Mutex
	slots []slot
}

// New creates a registry with N fixed slots (N is vendor-dependent, ≤ 8).
func New(n int) *Registry {
	return &Registry{slots: make([]slot, n)}
}

// Size returns the number of slots in the registry.
func (r *Registry) Size() int { return len(r.slots) }

// TakeNextFree scans low-to-high for a free slot, marks it enabled under
// the allocation lock, and returns its index. Returns (-1, false) if no
// slot is free. Invariant 1 (§8): always returns the lowest-numbered free
// index.
func (r *Registry) TakeNextFree(mainLoop bool) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.slots {
		if !r.slots[i].enabled.Load() {
			r.slots[i].mainLoop = mainLoop
			r.slots[i].codec.Store(int32(CodecNone))
			r.slots[i].osdOK.Store(true)
			r.slots[i].enabled.Store(true)
			return i, true
		}
	}
	return -1, false
}

// Configure records the codec/config for an already-allocated channel
// (called by the orchestrator right after HAL ChannelCreate succeeds).
func (r *Registry) Configure(index int, codec Codec, cfg hal.ChannelConfig, fileDesc any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.slots) {
		return
	}
	s := &r.slots[index]
	s.codec.Store(int32(codec))
	s.config = cfg
	s.fileDesc.Store(fileDesc)
}

// Destroy clears a slot's enable flag, payload, and file descriptor. The
// caller must have already unbound/destroyed the channel on the HAL before
// calling this (§4.B).
func (r *Registry) Destroy(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.slots) {
		return
	}
	s := &r.slots[index]
	s.enabled.Store(false)
	s.codec.Store(int32(CodecNone))
	s.fileDesc.Store(any(nil))
	s.config = hal.ChannelConfig{}
	s.mainLoop = false
}

// Enabled reports whether index is currently enabled. Safe to call without
// the allocation lock (§5).
func (r *Registry) Enabled(index int) bool {
	if index < 0 || index >= len(r.slots) {
		return false
	}
	return r.slots[index].enabled.Load()
}

// CodecOf returns the codec configured for index, or CodecNone if disabled
// or out of range.
func (r *Registry) CodecOf(index int) Codec {
	if index < 0 || index >= len(r.slots) {
		return CodecNone
	}
	return Codec(r.slots[index].codec.Load())
}

// ConfigOf returns the config snapshot for index.
func (r *Registry) ConfigOf(index int) hal.ChannelConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.slots) {
		return hal.ChannelConfig{}
	}
	return r.slots[index].config
}

// MainLoop reports whether index feeds the fan-out main loop (E).
func (r *Registry) MainLoop(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.slots) {
		return false
	}
	return r.slots[index].mainLoop
}

// SetOSDEligible records whether index accepts OSD region attachment (§4.H:
// "grayscale/night-only channels may opt out"). Defaults to true when a
// slot is allocated.
func (r *Registry) SetOSDEligible(index int, ok bool) {
	if index < 0 || index >= len(r.slots) {
		return
	}
	r.slots[index].osdOK.Store(ok)
}

// AcceptsOSD reports whether index currently accepts OSD attachment. Safe
// to call without the allocation lock.
func (r *Registry) AcceptsOSD(index int) bool {
	if index < 0 || index >= len(r.slots) {
		return false
	}
	return r.slots[index].osdOK.Load()
}

// EnabledIndices returns a snapshot of currently-enabled channel indices,
// ascending.
func (r *Registry) EnabledIndices() []int {
	var out []int
	for i := range r.slots {
		if r.slots[i].enabled.Load() {
			out = append(out, i)
		}
	}
	return out
}
