package daynight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinus-go/camerad/internal/hal"
)

func newFakeController(t *testing.T, low, high float64, lockoutS int) (*Controller, *stubDevice) {
	t.Helper()
	dev := &stubDevice{}
	cfg := Config{
		HasISPThresholds:  true,
		IspLumLow:         low,
		IspLumHi:          high,
		IspSwitchLockoutS: lockoutS,
		CheckIntervalS:    1,
		IrCutPin1:         999,
		IrCutPin2:         999,
		IrLedPin:          999,
		WhiteLedPin:       999,
		IrSensorPin:       999,
	}
	c, err := New(nil, dev, cfg)
	require.NoError(t, err)
	return c, dev
}

// TestScenarioS3HysteresisAndLockout reproduces scenario S3 directly
// against sampleAndEvaluate rather than the real ticker, so the test is
// deterministic and doesn't depend on wall-clock sleeps.
func TestScenarioS3HysteresisAndLockout(t *testing.T) {
	c, dev := newFakeController(t, 30, 70, 15)

	samples := []float64{80, 75, 60, 40, 25, 20, 20}
	for i, v := range samples {
		dev.luma = v
		c.sampleAndEvaluate()
		if i == 4 { // 0-indexed sample t=4 (value 25) per scenario S3
			assert.Equal(t, ModeNight, c.CurrentMode(), "expected Day->Night at sample %d", i)
		} else if i < 4 {
			assert.Equal(t, ModeDay, c.CurrentMode(), "no premature switch at sample %d", i)
		}
	}
	assert.Equal(t, ModeNight, c.CurrentMode())

	// Second feed: Night->Day should be suppressed until >=15s since the
	// last transition, then fire once elapsed.
	c.mu.Lock()
	c.lastTransition = time.Now().Add(-16 * time.Second)
	c.mu.Unlock()

	for _, v := range []float64{25, 30, 50, 80} {
		dev.luma = v
		c.sampleAndEvaluate()
	}
	assert.Equal(t, ModeDay, c.CurrentMode())
}

func TestManualModeSuppressesAutomaticTransitions(t *testing.T) {
	c, dev := newFakeController(t, 30, 70, 0)
	c.SetManual(true)
	dev.luma = 10
	c.sampleAndEvaluate()
	assert.Equal(t, ModeDay, c.CurrentMode())
}

func TestForceModeOverridesManual(t *testing.T) {
	c, _ := newFakeController(t, 30, 70, 0)
	c.SetManual(true)
	c.ForceMode(ModeNight)
	assert.Equal(t, ModeNight, c.CurrentMode())
}

// stubDevice implements only the hal.Device methods the controller path
// touches; the embedded nil hal.Device satisfies the rest of the interface
// and would panic on any other call, which is intentional — it surfaces an
// unexpected dependency immediately.
type stubDevice struct {
	hal.Device
	luma float64
}

func (s *stubDevice) ReadISPAverageLuma() (float64, error) { return s.luma, nil }
func (s *stubDevice) ChannelGrayscale(enabled bool) error  { return nil }
