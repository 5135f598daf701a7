package gpio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodePinSentinelDisabled(t *testing.T) {
	_, enabled := DecodePin(999)
	assert.False(t, enabled)
}

func TestDecodePinNegativeLegacyDisabled(t *testing.T) {
	_, enabled := DecodePin(-1)
	assert.False(t, enabled)
}

func TestDecodePinValidRange(t *testing.T) {
	for _, raw := range []int{0, 1, 47, 95} {
		pin, enabled := DecodePin(raw)
		assert.True(t, enabled)
		assert.Equal(t, raw, pin)
	}
}

// A disabled Line must never attempt a syscall (§8 boundary behavior):
// Open on a disabled pin must succeed even with no GPIO hardware present.
func TestOpenDisabledPinNeverSyscalls(t *testing.T) {
	line, err := Open(999, false)
	assert.NoError(t, err)
	assert.False(t, line.Enabled())
	assert.NoError(t, line.SetValue(true))
	assert.NoError(t, line.Close())
}

func TestOpenInputDisabledPinNeverSyscalls(t *testing.T) {
	line, err := OpenInput(-1)
	assert.NoError(t, err)
	assert.False(t, line.Enabled())
	v, err := line.GetValue()
	assert.NoError(t, err)
	assert.False(t, v)
	assert.NoError(t, line.Close())
}

func TestResolveChipOffsetFallsBackToChipZero(t *testing.T) {
	// With no /sys/class/gpio tree in the test sandbox, listChipRanges
	// returns nothing and resolveChipOffset must fall back to chip 0.
	chip, offset := resolveChipOffset(42)
	assert.Equal(t, 0, chip)
	assert.Equal(t, 42, offset)
}
