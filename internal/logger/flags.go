package logger

import (
	"flag"
	"fmt"
	"strings"
)

// Flags holds all logging-related command-line flags
type Flags struct {
	LogLevel    string
	LogFormat   string
	LogFile     string
	DebugHAL    bool
	DebugFanout bool
	DebugMP4    bool
	DebugRTSP   bool
	DebugOSD    bool
	DebugNight  bool
	DebugAll    bool
}

// RegisterFlags registers logging flags with the given FlagSet
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.LogLevel, "log-level", "info",
		"Log level: debug, info, warn, error")
	fs.StringVar(&f.LogLevel, "l", "info",
		"Log level (shorthand)")

	fs.StringVar(&f.LogFormat, "log-format", "text",
		"Log output format: text, json")

	fs.StringVar(&f.LogFile, "log-file", "",
		"Log output file path (default: stdout)")
	fs.StringVar(&f.LogFile, "o", "",
		"Log output file path (shorthand)")

	fs.BoolVar(&f.DebugHAL, "debug-hal", false,
		"Enable HAL vendor-call debugging")
	fs.BoolVar(&f.DebugFanout, "debug-fanout", false,
		"Enable delivery fan-out client debugging")
	fs.BoolVar(&f.DebugMP4, "debug-mp4", false,
		"Enable fragmented MP4 muxer debugging")
	fs.BoolVar(&f.DebugRTSP, "debug-rtsp", false,
		"Enable RTSP session debugging")
	fs.BoolVar(&f.DebugOSD, "debug-osd", false,
		"Enable OSD compositor debugging")
	fs.BoolVar(&f.DebugNight, "debug-night", false,
		"Enable day/night controller debugging")
	fs.BoolVar(&f.DebugAll, "debug-all", false,
		"Enable all debug categories")

	return f
}

// ToConfig converts Flags to a logger Config
func (f *Flags) ToConfig() (*Config, error) {
	cfg := NewConfig()

	level, err := ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := ParseFormat(f.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format

	cfg.OutputFile = f.LogFile

	if f.DebugAll {
		cfg.EnableCategory(DebugAll)
		cfg.Level = LevelDebug
	} else {
		for cat, enabled := range map[DebugCategory]bool{
			DebugHAL:    f.DebugHAL,
			DebugFanout: f.DebugFanout,
			DebugMP4:    f.DebugMP4,
			DebugRTSP:   f.DebugRTSP,
			DebugOSD:    f.DebugOSD,
			DebugNight:  f.DebugNight,
		} {
			if enabled {
				cfg.EnableCategory(cat)
				cfg.Level = LevelDebug
			}
		}
	}

	return cfg, nil
}

// PrintUsageExamples prints usage examples for logging flags
func PrintUsageExamples() {
	examples := `
Logging Examples:

  Basic usage (INFO level, text format to stdout):
    ./camerad

  Enable DEBUG level:
    ./camerad --log-level debug

  Log to file:
    ./camerad --log-file camerad.log

  JSON format for structured logging:
    ./camerad --log-format json -o camerad.json

  Debug the day/night controller only:
    ./camerad --debug-night

  Debug everything:
    ./camerad --debug-all -o debug.log
`
	fmt.Println(examples)
}

// String returns a string representation of enabled flags
func (f *Flags) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("level=%s", f.LogLevel))
	parts = append(parts, fmt.Sprintf("format=%s", f.LogFormat))

	if f.LogFile != "" {
		parts = append(parts, fmt.Sprintf("output=%s", f.LogFile))
	} else {
		parts = append(parts, "output=stdout")
	}

	var cats []string
	if f.DebugAll {
		cats = append(cats, "all")
	} else {
		if f.DebugHAL {
			cats = append(cats, "hal")
		}
		if f.DebugFanout {
			cats = append(cats, "fanout")
		}
		if f.DebugMP4 {
			cats = append(cats, "mp4")
		}
		if f.DebugRTSP {
			cats = append(cats, "rtsp")
		}
		if f.DebugOSD {
			cats = append(cats, "osd")
		}
		if f.DebugNight {
			cats = append(cats, "night")
		}
	}

	if len(cats) > 0 {
		parts = append(parts, fmt.Sprintf("debug=[%s]", strings.Join(cats, ",")))
	}

	return strings.Join(parts, " ")
}
