// Command camerad is the application-layer firmware process (§1): it
// loads the YAML configuration, probes the vendor HAL, and runs the
// orchestrator until asked to stop. Grounded on the teacher's
// cmd/relay/main.go shape: a flag.NewFlagSet plus logger.RegisterFlags,
// context.WithCancel driven by signal.Notify, and a deferred cleanup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/divinus-go/camerad/internal/config"
	"github.com/divinus-go/camerad/internal/logger"
	"github.com/divinus-go/camerad/internal/orchestrator"
)

func main() {
	fs := flag.NewFlagSet("camerad", flag.ExitOnError)
	logFlags := logger.RegisterFlags(fs)

	configPath := fs.String("config", config.DefaultPath, "path to the YAML configuration file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "divinus camera application firmware\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		logger.PrintUsageExamples()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	logConfig, err := logFlags.ToConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logger: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logger.SetDefault(log)

	cfg, err := loadOrBootstrapConfig(*configPath, log)
	if err != nil {
		log.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	log.Info("configuration loaded", "path", *configPath)

	orch, err := orchestrator.New(cfg, *configPath, log)
	if err != nil {
		log.Error("failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.SetExitHandler(cancel)

	// SIGPIPE/SIGILL are ignored (§4.J: "common on client disconnect").
	signal.Ignore(syscall.SIGPIPE, syscall.SIGILL)

	graceful := make(chan os.Signal, 1)
	signal.Notify(graceful, os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)
	go func() {
		sig := <-graceful
		log.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	fatal := make(chan os.Signal, 1)
	signal.Notify(fatal, syscall.SIGABRT, syscall.SIGBUS, syscall.SIGSEGV, syscall.SIGFPE)
	go func() {
		sig := <-fatal
		log.Error("fatal signal received, aborting without graceful shutdown", "signal", sig)
		os.Exit(1)
	}()

	if err := orch.Run(ctx); err != nil {
		log.Error("orchestrator exited with error", "error", err)
		os.Exit(1)
	}

	log.Info("camerad stopped")
}

// loadOrBootstrapConfig loads the config file, writing out the defaults on
// first run if it doesn't exist yet (§6 describes the document's shape and
// save policy but not a first-run bootstrap; this mirrors how the teacher's
// config layer treats a missing file as fatal for everything except the
// one case where there is nothing yet to load).
func loadOrBootstrapConfig(path string, log *logger.Logger) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	log.Warn("config file not found, writing defaults", "path", path)
	cfg = config.Default()
	if err := config.Save(path, cfg); err != nil {
		return nil, fmt.Errorf("bootstrap defaults: %w", err)
	}
	return cfg, nil
}
