package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divinus-go/camerad/internal/config"
)

// testConfig returns a config.Default() variant safe to bind in a test
// process: ephemeral ports everywhere a privileged default (RTSP 554, web
// 8080) would otherwise collide across parallel test runs or require
// elevated privileges.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.System.WebPort = 0
	cfg.RTSP.Port = 0
	cfg.Audio.Enable = true
	cfg.Audio.SampleRate = 44100
	cfg.Audio.Channels = 1
	cfg.Audio.Codec = "mp3"
	cfg.Audio.Bitrate = 32
	return cfg
}

func TestNewAcquiresPidlockAndWiresSubsystems(t *testing.T) {
	cfg := testConfig(t)
	o, err := New(cfg, t.TempDir()+"/camerad.yaml", nil)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, -1, o.mainChannel)
	assert.Equal(t, -1, o.mjpegChan)
	assert.NotNil(t, o.rtsp)
	assert.NotNil(t, o.http)

	assert.NoError(t, o.Shutdown(context.Background()))
}

// A second instance must fail fast on the pidfile lock rather than
// disturbing the first (§5's single-instance guarantee).
func TestNewFailsWhenPidlockAlreadyHeld(t *testing.T) {
	cfg := testConfig(t)
	first, err := New(cfg, t.TempDir()+"/camerad.yaml", nil)
	require.NoError(t, err)
	defer first.Shutdown(context.Background())

	_, err = New(testConfig(t), t.TempDir()+"/camerad.yaml", nil)
	assert.Error(t, err)
}

// Run must execute the full startup sequence and return promptly, without
// error, once ctx is cancelled.
func TestRunStartsAndStopsCleanly(t *testing.T) {
	cfg := testConfig(t)
	o, err := New(cfg, t.TempDir()+"/camerad.yaml", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	assert.Greater(t, o.mainChannel, -2) // torn down but field still readable
}

// EnableMP4/DisableMP4 must be idempotent: startPipeline already calls
// EnableMP4 once, so a second explicit call (e.g. from the control API)
// must be a no-op rather than leaking or double-freeing a channel slot.
func TestEnableDisableMP4Idempotent(t *testing.T) {
	cfg := testConfig(t)
	o, err := New(cfg, t.TempDir()+"/camerad.yaml", nil)
	require.NoError(t, err)
	defer o.Shutdown(context.Background())

	o.runCtx = context.Background()
	require.NoError(t, o.startPipeline())
	first := o.mainChannel
	assert.GreaterOrEqual(t, first, 0)

	require.NoError(t, o.EnableMP4())
	assert.Equal(t, first, o.mainChannel)

	require.NoError(t, o.DisableMP4())
	assert.Equal(t, -1, o.mainChannel)

	require.NoError(t, o.DisableMP4())
	assert.Equal(t, -1, o.mainChannel)

	require.NoError(t, o.EnableMP4())
	assert.GreaterOrEqual(t, o.mainChannel, 0)
}

// ReconfigureAudio must swap in a fresh encoder and rewire it into the
// control API's Deps without leaking the previous audio worker goroutine.
func TestReconfigureAudioSwapsEncoder(t *testing.T) {
	cfg := testConfig(t)
	o, err := New(cfg, t.TempDir()+"/camerad.yaml", nil)
	require.NoError(t, err)
	defer o.Shutdown(context.Background())

	o.runCtx = context.Background()
	require.NoError(t, o.startPipeline())

	before := o.audioEnc
	require.NoError(t, o.ReconfigureAudio(48000, 50))
	assert.NotSame(t, before, o.audioEnc)
	assert.Equal(t, 48000, o.cfg.Audio.SampleRate)
}
