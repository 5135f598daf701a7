// Package config implements the YAML configuration document (§6): load,
// validate, atomic save, and the UTF-8 self-repair of time_format. Grounded
// on the teacher's pkg/config/config.go (a Config struct plus a package-level
// Load/Validate pair), generalized from a flat .env file to the full
// section/key YAML document this port's control API reads and writes.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the firmware looks for its configuration (§6).
const DefaultPath = "/etc/divinus.yaml"

// DefaultTimeFormat is restored whenever time_format is corrupt or unset
// (§6: "self-repair if corrupt UTF-8 detected"; §8 scenario S5).
const DefaultTimeFormat = "%Y/%m/%d %H:%M:%S"

// System holds the system section (§6).
type System struct {
	SensorConfig     string   `yaml:"sensor_config"`
	IQConfig         string   `yaml:"iq_config"`
	WebPort          int      `yaml:"web_port"`
	WebBind          string   `yaml:"web_bind"`
	WebWhitelist     []string `yaml:"web_whitelist"`
	WebEnableAuth    bool     `yaml:"web_enable_auth"`
	WebAuthUser      string   `yaml:"web_auth_user"`
	WebAuthPass      string   `yaml:"web_auth_pass"`
	WebAuthSkipLocal bool     `yaml:"web_auth_skiplocal"`
	WebEnableStatic  bool     `yaml:"web_enable_static"`
	VideoStackSizeKB int      `yaml:"video_thread_stack_size"`
	AudioStackSizeKB int      `yaml:"audio_thread_stack_size"`
	OSDStackSizeKB   int      `yaml:"osd_thread_stack_size"`
	TimeFormat       string   `yaml:"time_format"`
	Watchdog         int      `yaml:"watchdog"`
	HALFamily        string   `yaml:"hal_family"`
}

// NightMode holds the night_mode section (§4.I, §6).
type NightMode struct {
	Enable            bool    `yaml:"enable"`
	Manual            bool    `yaml:"manual"`
	Grayscale         bool    `yaml:"grayscale"`
	IrSensorPin       int     `yaml:"ir_sensor_pin"`
	CheckIntervalS    int     `yaml:"check_interval_s"`
	IrCutPin1         int     `yaml:"ir_cut_pin1"`
	IrCutPin2         int     `yaml:"ir_cut_pin2"`
	IrLedPin          int     `yaml:"ir_led_pin"`
	WhiteLedPin       int     `yaml:"white_led_pin"`
	PinSwitchDelayUs  int     `yaml:"pin_switch_delay_us"`
	AdcDevice         string  `yaml:"adc_device"`
	AdcThreshold      float64 `yaml:"adc_threshold"`
	IspLumLow         float64 `yaml:"isp_lum_low"`
	IspLumHi          float64 `yaml:"isp_lum_hi"`
	IspIsoLow         float64 `yaml:"isp_iso_low"`
	IspIsoHi          float64 `yaml:"isp_iso_hi"`
	IspExpTimeLow     float64 `yaml:"isp_exptime_low"`
	IspExpTimeHi      float64 `yaml:"isp_exptime_hi"`
	IspSwitchLockoutS int     `yaml:"isp_switch_lockout_s"`
}

// ISP holds pipeline orientation and flicker settings (§6).
type ISP struct {
	SensorMirror bool   `yaml:"sensor_mirror"`
	SensorFlip   bool   `yaml:"sensor_flip"`
	Mirror       bool   `yaml:"mirror"`
	Flip         bool   `yaml:"flip"`
	Antiflicker  string `yaml:"antiflicker"`
}

// MDNS, ONVIF, RTSP, Record, Stream, Audio, MP4, JPEG, HTTPPost, and OSD
// each enable/configure their respective subsystem (§6).
type MDNS struct {
	Enable   bool   `yaml:"enable"`
	Hostname string `yaml:"hostname"`
}

type ONVIF struct {
	Enable       bool   `yaml:"enable"`
	DeviceName   string `yaml:"device_name"`
	Manufacturer string `yaml:"manufacturer"`
}

type RTSP struct {
	Enable bool   `yaml:"enable"`
	Port   int    `yaml:"port"`
	Bind   string `yaml:"bind"`
}

type Record struct {
	Enable          bool   `yaml:"enable"`
	Continuous      bool   `yaml:"continuous"`
	Directory       string `yaml:"directory"`
	Filename        string `yaml:"filename"`
	SegmentDuration int    `yaml:"segment_duration"`
	SegmentSize     int64  `yaml:"segment_size"`
}

type Stream struct {
	UDPDestinations []string `yaml:"udp_destinations"`
	Width           int      `yaml:"width"`
	Height          int      `yaml:"height"`
	FPS             int      `yaml:"fps"`
	GOP             int      `yaml:"gop"`
	BitrateMin      int      `yaml:"bitrate_min"`
	BitrateMax      int      `yaml:"bitrate_max"`
	Profile         string   `yaml:"profile"`
	RateMode        string   `yaml:"rate_mode"`
	Codec           string   `yaml:"codec"`
	MJPEGEnable     bool     `yaml:"mjpeg_enable"`
}

type Audio struct {
	Enable     bool   `yaml:"enable"`
	Codec      string `yaml:"codec"` // "mp3" or "aac"
	SampleRate int    `yaml:"sample_rate"`
	Bitrate    int    `yaml:"bitrate"`
	Channels   int    `yaml:"channels"`
	Gain       int    `yaml:"gain"`
	Mute       bool   `yaml:"mute"`

	// SpeexDSP preprocessing knobs (denoise/AGC/VAD/dereverb ahead of the
	// AAC encoder). Parsed and persisted only: no SpeexDSP binding exists
	// in this port (see DESIGN.md's Audio pipeline entry), so these are
	// inert passthrough config, the same stand-in role PassthroughCodec
	// plays for the missing MP3/AAC vendor codecs themselves.
	SpeexEnable          bool `yaml:"speex_enable"`
	SpeexDenoise         bool `yaml:"speex_denoise"`
	SpeexAGC             bool `yaml:"speex_agc"`
	SpeexVAD             bool `yaml:"speex_vad"`
	SpeexDereverb        bool `yaml:"speex_dereverb"`
	SpeexFrameSize       int  `yaml:"speex_frame_size"`
	SpeexNoiseSuppressDB int  `yaml:"speex_noise_suppress_db"`
	SpeexAGCLevel        int  `yaml:"speex_agc_level"`
	SpeexAGCIncrement    int  `yaml:"speex_agc_increment"`
	SpeexAGCDecrement    int  `yaml:"speex_agc_decrement"`
	SpeexAGCMaxGainDB    int  `yaml:"speex_agc_max_gain_db"`
	SpeexVADProbStart    int  `yaml:"speex_vad_prob_start"`
	SpeexVADProbContinue int  `yaml:"speex_vad_prob_continue"`
}

type MP4 struct {
	Enable bool `yaml:"enable"`
}

type JPEG struct {
	Enable  bool `yaml:"enable"`
	Quality int  `yaml:"quality"`
}

type HTTPPost struct {
	Enable      bool   `yaml:"enable"`
	URL         string `yaml:"url"`
	IntervalSec int    `yaml:"interval_sec"`
}

type OSDRegion struct {
	ID                 int    `yaml:"id"`
	Persist            bool   `yaml:"persist"`
	Text               string `yaml:"text"`
	ImagePath          string `yaml:"image_path"`
	FontSpec           string `yaml:"font_spec"`
	Size               int    `yaml:"size"`
	ColorRGB555        int    `yaml:"color_rgb555"`
	OutlineColorRGB555 int    `yaml:"outline_color_rgb555"`
	OutlineThickness   int    `yaml:"outline_thickness"`
	PositionX          int    `yaml:"position_x"`
	PositionY          int    `yaml:"position_y"`
	OpacityFG          int    `yaml:"opacity_fg"`
	OpacityBG          int    `yaml:"opacity_bg"`
	BgColorRGB555      int    `yaml:"bg_color_rgb555"`
	Padding            int    `yaml:"padding"`
}

type OSD struct {
	Enable  bool        `yaml:"enable"`
	Regions []OSDRegion `yaml:"regions"`
}

// Config is the full §6 YAML document.
type Config struct {
	System    System    `yaml:"system"`
	NightMode NightMode `yaml:"night_mode"`
	ISP       ISP       `yaml:"isp"`
	MDNS      MDNS      `yaml:"mdns"`
	ONVIF     ONVIF     `yaml:"onvif"`
	RTSP      RTSP      `yaml:"rtsp"`
	Record    Record    `yaml:"record"`
	Stream    Stream    `yaml:"stream"`
	Audio     Audio     `yaml:"audio"`
	MP4       MP4       `yaml:"mp4"`
	JPEG      JPEG      `yaml:"jpeg"`
	HTTPPost  HTTPPost  `yaml:"http_post"`
	OSD       OSD       `yaml:"osd"`
}

// Default returns a Config with sane defaults for a bench run against the
// software HAL.
func Default() *Config {
	return &Config{
		System: System{
			WebPort:         8080,
			WebBind:         "0.0.0.0",
			TimeFormat:      DefaultTimeFormat,
			HALFamily:       "software",
			WebEnableStatic: true,
		},
		NightMode: NightMode{
			IrSensorPin:      999,
			IrCutPin1:        999,
			IrCutPin2:        999,
			IrLedPin:         999,
			WhiteLedPin:      999,
			CheckIntervalS:   5,
			PinSwitchDelayUs: 200,
		},
		RTSP:   RTSP{Enable: true, Port: 554, Bind: "0.0.0.0"},
		Stream: Stream{Width: 1920, Height: 1080, FPS: 30, GOP: 30, Codec: "h264"},
		Audio: Audio{
			SpeexEnable:          true,
			SpeexDenoise:         true,
			SpeexAGC:             true,
			SpeexVAD:             true,
			SpeexDereverb:        false,
			SpeexNoiseSuppressDB: -20,
			SpeexAGCLevel:        24000,
			SpeexAGCIncrement:    12,
			SpeexAGCDecrement:    40,
			SpeexAGCMaxGainDB:    30,
			SpeexVADProbStart:    60,
			SpeexVADProbContinue: 45,
		},
		MP4: MP4{Enable: true},
	}
}

// Load reads and parses path, sanitizing time_format (§6: "sanitized to
// printable ASCII on load/save; self-repair if corrupt UTF-8 detected").
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if !utf8.Valid(data) {
		data = bytes.ToValidUTF8(data, []byte("�"))
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if repaired := sanitizeTimeFormat(cfg.System.TimeFormat); repaired != cfg.System.TimeFormat {
		cfg.System.TimeFormat = repaired
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("config: self-repair save: %w", err)
		}
	}

	return cfg, nil
}

// sanitizeTimeFormat returns s unchanged if it is valid UTF-8 composed only
// of printable ASCII; otherwise it returns DefaultTimeFormat (§6, §8 S5).
func sanitizeTimeFormat(s string) string {
	if s == "" || !utf8.ValidString(s) {
		return DefaultTimeFormat
	}
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return DefaultTimeFormat
		}
	}
	return s
}

// Save writes cfg to path atomically: a temp file in the same directory,
// fsync, then rename over the target (§6 "Save policy: atomic via
// mkstemp+fsync+rename").
func Save(path string, cfg *Config) error {
	cfg.System.TimeFormat = sanitizeTimeFormat(cfg.System.TimeFormat)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".divinus-cfg-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("config: fsync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("config: close temp: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: rename temp over %s: %w", path, err)
	}
	return nil
}

// Clone returns a deep-enough copy of cfg for compare-then-swap
// reconfiguration in the orchestrator (slices are copied; nested structs
// are value types so the top-level copy already suffices for those).
func (c *Config) Clone() *Config {
	out := *c
	out.System.WebWhitelist = append([]string(nil), c.System.WebWhitelist...)
	out.Stream.UDPDestinations = append([]string(nil), c.Stream.UDPDestinations...)
	out.OSD.Regions = append([]OSDRegion(nil), c.OSD.Regions...)
	return &out
}

// Diff renders a short human-readable summary of the keys present, used by
// /api/cmd?save=1's log line rather than anything load-bearing.
func (c *Config) Diff() string {
	var b bytes.Buffer
	b.WriteString("web_port=")
	b.WriteString(strconv.Itoa(c.System.WebPort))
	b.WriteString(" rtsp=")
	b.WriteString(strconv.FormatBool(c.RTSP.Enable))
	b.WriteString(" mp4=")
	b.WriteString(strconv.FormatBool(c.MP4.Enable))
	b.WriteString(" night=")
	b.WriteString(strconv.FormatBool(c.NightMode.Enable))
	return b.String()
}

// CanonicalizeBool mirrors §8 invariant 7's "boolean strings canonicalized
// to true/false" for callers that parse booleans out of query parameters
// before folding them into Config (the control API does this; YAML itself
// already round-trips bool natively).
func CanonicalizeBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("config: not a boolean: %q", s)
	}
}
