package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRoundTripPreservesTimeFormat reproduces scenario S5's first half:
// load(save(config)) == config for time_format under normal input.
func TestRoundTripPreservesTimeFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "divinus.yaml")

	cfg := Default()
	cfg.System.TimeFormat = "%Y-%m-%d"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "%Y-%m-%d", loaded.System.TimeFormat)
}

// TestCorruptTimeFormatSelfRepairs reproduces S5's second half: invalid
// UTF-8 in time_format is replaced with DefaultTimeFormat on load, and the
// repaired value is persisted so a subsequent load sees the default too.
func TestCorruptTimeFormatSelfRepairs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "divinus.yaml")

	raw := "system:\n  time_format: \"\xff\xfe bad utf8\"\n  web_port: 8080\n"
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeFormat, loaded.System.TimeFormat)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeFormat, reloaded.System.TimeFormat)
}

// TestNonPrintableAsciiAlsoRepairs covers §6's "sanitized to printable
// ASCII" clause beyond strict UTF-8 validity (e.g. an embedded control
// character survives as valid UTF-8 but is not printable ASCII).
func TestNonPrintableAsciiAlsoRepairs(t *testing.T) {
	got := sanitizeTimeFormat("%Y\x01%m")
	assert.Equal(t, DefaultTimeFormat, got)
}

func TestSaveIsAtomicAndLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "divinus.yaml")

	require.NoError(t, Save(path, Default()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "divinus.yaml", entries[0].Name())
}

func TestFullConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "divinus.yaml")

	cfg := Default()
	cfg.System.WebWhitelist = []string{"127.0.0.1/32", "192.168.1.0/24"}
	cfg.NightMode.Enable = true
	cfg.NightMode.IspLumLow = 30
	cfg.NightMode.IspLumHi = 70
	cfg.OSD.Regions = []OSDRegion{{ID: 0, Text: "$t"}}
	cfg.Stream.UDPDestinations = []string{"udp://239.1.1.1:5000"}

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.System.WebWhitelist, loaded.System.WebWhitelist)
	assert.Equal(t, cfg.NightMode, loaded.NightMode)
	assert.Equal(t, cfg.OSD.Regions, loaded.OSD.Regions)
	assert.Equal(t, cfg.Stream.UDPDestinations, loaded.Stream.UDPDestinations)
}

func TestCanonicalizeBool(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "TRUE": true, "on": true, "yes": true,
		"0": false, "false": false, "off": false, "no": false, "": false,
	}
	for in, want := range cases {
		got, err := CanonicalizeBool(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := CanonicalizeBool("maybe")
	assert.Error(t, err)
}

func TestParseIntKeyReturnsTypedError(t *testing.T) {
	_, err := ParseIntKey("web_port", "not-a-number")
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, ErrNotANumber, cfgErr.Kind)
}
