package watchdog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenDisabledWhenTimeoutZero(t *testing.T) {
	w, err := Open(nil, 0)
	assert.NoError(t, err)
	assert.Nil(t, w)
}

// A nil Watchdog (the disabled case, as Open returns it) must tolerate
// every method call as a no-op.
func TestNilWatchdogMethodsAreNoops(t *testing.T) {
	var w *Watchdog
	assert.NotPanics(t, func() {
		w.Start(0)
		w.Stop()
	})
}

func TestCandidatePathsPreferWatchdog0(t *testing.T) {
	assert.Equal(t, "/dev/watchdog0", candidatePaths[0])
	assert.Equal(t, "/dev/watchdog", candidatePaths[1])
}
