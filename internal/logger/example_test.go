package logger_test

import (
	"os"

	"github.com/divinus-go/camerad/internal/logger"
)

// Example showing basic logger usage
func ExampleLogger_basic() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatText

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.Info("orchestrator started", "version", "1.0.0")
	log.Warn("deprecated config key used", "key", "night_mode.ir_sensor_pin")
	log.Error("hal pipeline_create failed", "error", "device busy")
}

// Example showing debug category usage
func ExampleLogger_categories() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelDebug
	cfg.EnableCategory(logger.DebugNight)
	cfg.EnableCategory(logger.DebugOSD)

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()

	log.DebugNight("luma sample", "value", 25, "threshold", 30)
	log.DebugOSD("region re-attached", "id", 0, "w", 125, "h", 40)
}

// Example showing JSON format output
func ExampleLogger_json() {
	cfg := logger.NewConfig()
	cfg.Level = logger.LevelInfo
	cfg.Format = logger.FormatJSON
	cfg.OutputFile = "camerad.json"

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Close()
	defer os.Remove("camerad.json")

	log.Info("client connected",
		"sink", "mp4",
		"remote_addr", "192.168.1.50",
		"clients", 3)
}
