// Package gpio implements the dual cdev/sysfs GPIO backend (§6 Environment)
// used by the day/night controller to drive IR-cut, IR-LED, white-LED, and
// the optional digital light-sensor pin. It follows the style of this
// module's pidlock and watchdog packages, wrapping golang.org/x/sys/unix
// syscalls behind a small Go-idiomatic type (the teacher itself has no GPIO
// code — this is enrichment from the pack's syscall conventions, not a
// teacher port).
package gpio

import (
	"fmt"
	"os"
)

// DisabledSentinel is the legacy "no pin" value (§4.I: "value 999 means
// disabled"). Negative values are also disabled.
const DisabledSentinel = 999

// DecodePin maps a raw config integer to (pin, enabled). A disabled pin
// never triggers a syscall (§8 boundary behavior).
func DecodePin(raw int) (pin int, enabled bool) {
	if raw == DisabledSentinel || raw < 0 {
		return 0, false
	}
	return raw, true
}

// Backend is the narrow surface a GPIO output line exposes once opened.
type Backend interface {
	SetValue(active bool) error
	Close() error
}

// Line is a single GPIO output pin, opened against whichever backend is
// available on this host. A disabled Line (DecodePin returned enabled=false)
// is nil-safe: its methods are no-ops.
type Line struct {
	pin     int
	backend Backend
}

// Open resolves pin via DecodePin and opens it on the preferred backend
// (chardev first, sysfs fallback — §6: "character-device... preferred for
// kernel >= 4.8"). If raw decodes to disabled, Open returns a non-nil Line
// whose methods are no-ops, so callers never need a nil check.
func Open(raw int, activeLow bool) (*Line, error) {
	pin, enabled := DecodePin(raw)
	if !enabled {
		return &Line{pin: -1}, nil
	}

	if cdevAvailable() {
		if b, err := openCdev(pin, activeLow); err == nil {
			return &Line{pin: pin, backend: b}, nil
		}
	}

	b, err := openSysfs(pin, activeLow)
	if err != nil {
		return nil, fmt.Errorf("gpio: open pin %d: %w", pin, err)
	}
	return &Line{pin: pin, backend: b}, nil
}

// SetValue drives the line; a disabled Line silently does nothing.
func (l *Line) SetValue(active bool) error {
	if l == nil || l.backend == nil {
		return nil
	}
	return l.backend.SetValue(active)
}

// Close releases the underlying backend handle, if any.
func (l *Line) Close() error {
	if l == nil || l.backend == nil {
		return nil
	}
	return l.backend.Close()
}

// Enabled reports whether this Line maps to a real pin.
func (l *Line) Enabled() bool { return l != nil && l.backend != nil }

// cdevAvailable reports whether the /dev/gpiochip0 device node exists.
func cdevAvailable() bool {
	_, err := os.Stat("/dev/gpiochip0")
	return err == nil
}

// InputBackend is the narrow surface a GPIO input line exposes.
type InputBackend interface {
	GetValue() (bool, error)
	Close() error
}

// InputLine is a digital input pin — used for the §4.I priority-3 ambient
// light sensor ("digital GPIO level").
type InputLine struct {
	pin     int
	backend InputBackend
}

// OpenInput mirrors Open but requests an input line. A disabled raw value
// returns a nil-safe InputLine whose GetValue always returns (false, nil).
func OpenInput(raw int) (*InputLine, error) {
	pin, enabled := DecodePin(raw)
	if !enabled {
		return &InputLine{pin: -1}, nil
	}

	if cdevAvailable() {
		if b, err := openCdevInput(pin); err == nil {
			return &InputLine{pin: pin, backend: b}, nil
		}
	}

	b, err := openSysfsInput(pin)
	if err != nil {
		return nil, fmt.Errorf("gpio: open input pin %d: %w", pin, err)
	}
	return &InputLine{pin: pin, backend: b}, nil
}

// GetValue reads the line; a disabled InputLine always reads false.
func (l *InputLine) GetValue() (bool, error) {
	if l == nil || l.backend == nil {
		return false, nil
	}
	return l.backend.GetValue()
}

// Close releases the underlying backend handle, if any.
func (l *InputLine) Close() error {
	if l == nil || l.backend == nil {
		return nil
	}
	return l.backend.Close()
}

// Enabled reports whether this InputLine maps to a real pin.
func (l *InputLine) Enabled() bool { return l != nil && l.backend != nil }
