// Package httpapi implements the control API HTTP server (§6): the
// embedded control page, the raw streaming sinks (/video.264, /video.mp4,
// /mjpeg, /audio.pcm, /image.jpg), the /api/* reconfiguration routes, and
// a canned ONVIF SOAP responder. Grounded on the teacher's
// pkg/api/server.go: a Server wrapping *http.Server, http.NewServeMux
// with mux.HandleFunc routes, an embed.FS control page, and a
// withCORS(withLogging(mux)) middleware chain with a status-capturing
// responseWriter wrapper.
package httpapi

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"time"

	"github.com/divinus-go/camerad/internal/audio"
	"github.com/divinus-go/camerad/internal/channel"
	"github.com/divinus-go/camerad/internal/config"
	"github.com/divinus-go/camerad/internal/daynight"
	"github.com/divinus-go/camerad/internal/fanout"
	"github.com/divinus-go/camerad/internal/hal"
	"github.com/divinus-go/camerad/internal/logger"
	"github.com/divinus-go/camerad/internal/osd"
	"github.com/divinus-go/camerad/internal/recorder"
	"github.com/divinus-go/camerad/internal/rtspsrv"
	"github.com/divinus-go/camerad/internal/udpstream"
)

//go:embed web/*
var webFS embed.FS

// Deps is every subsystem the control API reconfigures or streams from.
// The orchestrator owns the concrete instances; Server only reads/mutates
// them through their already-synchronized public methods.
type Deps struct {
	Config   *config.Config
	ConfigMu *configGuard // guards *Config reads/writes across reconfiguration

	Device   hal.Device
	Channels *channel.Registry
	Fanout   *fanout.Table
	RTSP     *rtspsrv.Server
	UDP      *udpstream.Streamer
	OSD      *osd.Compositor
	Night    *daynight.Controller
	Audio    *audio.Encoder
	Recorder *recorder.Writer // nil unless record.continuous is active

	ConfigPath string

	// OnExit is invoked by GET /exit to trigger orchestrator shutdown
	// (§6: "Graceful shutdown"). Nil is treated as a no-op.
	OnExit func()

	// Reconfigure callbacks let the control API apply a subsystem toggle
	// without reaching into orchestrator internals (§4.J's "in-place
	// reconfiguration" entrypoints). Each returns an error the caller
	// surfaces as a 500.
	EnableMP4  func() error
	DisableMP4 func() error
	ReconfigureAudio func(sampleRate, gain int) error
}

// configGuard is a thin named mutex so Deps.Config can be swapped or
// mutated under a single documented lock without importing sync into the
// exported Deps surface directly.
type configGuard struct{ mu chan struct{} }

func newConfigGuard() *configGuard {
	g := &configGuard{mu: make(chan struct{}, 1)}
	g.mu <- struct{}{}
	return g
}

func (g *configGuard) Lock()   { <-g.mu }
func (g *configGuard) Unlock() { g.mu <- struct{}{} }

// SetOnExit wires the /exit route's callback after construction, so the
// caller can close over a context cancel func built after the Server
// itself (its Deps needs the Server's own reconfiguration callbacks, so
// the two can't always be constructed in one step).
func (s *Server) SetOnExit(fn func()) { s.deps.OnExit = fn }

// SetAudio and SetRecorder wire the audio encoder and recorder writer in
// after construction: both are only built once the pipeline starts (audio
// sample rate/codec come from the live config), after the control API is
// already listening (§4.J starts the control API before the HAL pipeline).
func (s *Server) SetAudio(enc *audio.Encoder)    { s.deps.Audio = enc }
func (s *Server) SetRecorder(w *recorder.Writer) { s.deps.Recorder = w }

// Server is the control API's HTTP listener.
type Server struct {
	deps Deps
	log  *logger.Logger

	httpServer *http.Server
}

// NewServer builds a Server bound to deps. deps.ConfigMu is allocated here
// if the caller left it nil.
func NewServer(deps Deps, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	if deps.ConfigMu == nil {
		deps.ConfigMu = newConfigGuard()
	}
	return &Server{deps: deps, log: log}
}

// Start builds the route table and begins serving on addr (§6 route
// table). Mirrors the teacher's "start in a goroutine, watch for an
// immediate bind error" Start shape.
func (s *Server) Start(ctx context.Context, addr string) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.htm", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/exit", s.handleExit)

	mux.HandleFunc("/audio.pcm", s.handleAudioPCM)
	mux.HandleFunc("/video.264", s.handleVideoH26x)
	mux.HandleFunc("/video.265", s.handleVideoH26x)
	mux.HandleFunc("/video.mp4", s.handleVideoMP4)
	mux.HandleFunc("/mjpeg", s.handleMJPEG)
	mux.HandleFunc("/image.jpg", s.handleImageJPG)

	mux.HandleFunc("/api/audio", s.handleAPIAudio)
	mux.HandleFunc("/api/jpeg", s.handleAPIJPEG)
	mux.HandleFunc("/api/mjpeg", s.handleAPIMJPEG)
	mux.HandleFunc("/api/mp4", s.handleAPIMP4)
	mux.HandleFunc("/api/night", s.handleAPINight)
	mux.HandleFunc("/api/isp", s.handleAPIISP)
	mux.HandleFunc("/api/osd/", s.handleAPIOSD)
	mux.HandleFunc("/api/record", s.handleAPIRecord)
	mux.HandleFunc("/api/status", s.handleAPIStatus)
	mux.HandleFunc("/api/time", s.handleAPITime)
	mux.HandleFunc("/api/cmd", s.handleAPICmd)

	mux.HandleFunc("/onvif/device_service", s.handleONVIFDevice)
	mux.HandleFunc("/onvif/media_service", s.handleONVIFMedia)

	if s.deps.Config.System.WebEnableStatic {
		staticFS, err := fs.Sub(webFS, "web/static")
		if err == nil {
			mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
		}
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.withWhitelist(s.withAuth(s.withLogging(mux))),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // streaming routes hold the connection open indefinitely
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info("httpapi: starting control API", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("httpapi: server error", "error", err)
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("httpapi: stopping control API")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.htm" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// handleExit implements GET /exit (§6: "Graceful shutdown").
func (s *Server) handleExit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "shutting down"})
	if s.deps.OnExit != nil {
		go s.deps.OnExit()
	}
}
