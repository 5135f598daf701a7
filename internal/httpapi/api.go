package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/divinus-go/camerad/internal/config"
	"github.com/divinus-go/camerad/internal/daynight"
)

// handleAPIAudio implements GET/POST /api/audio: mute toggle and, on
// POST, re-initializing the HAL audio path at a new sample rate/gain
// (§4.C, §4.J's "disable_audio/enable_audio" entrypoint).
func (s *Server) handleAPIAudio(w http.ResponseWriter, r *http.Request) {
	s.deps.ConfigMu.Lock()
	defer s.deps.ConfigMu.Unlock()
	cfg := s.deps.Config

	if r.Method == http.MethodPost {
		cfg.Audio.Enable = queryBool(r, "enable", cfg.Audio.Enable)
		cfg.Audio.Mute = queryBool(r, "mute", cfg.Audio.Mute)
		cfg.Audio.SampleRate = queryInt(r, "sample_rate", cfg.Audio.SampleRate)
		cfg.Audio.Gain = queryInt(r, "gain", cfg.Audio.Gain)

		if s.deps.Audio != nil {
			s.deps.Audio.SetMute(cfg.Audio.Mute)
		}
		if s.deps.ReconfigureAudio != nil {
			if err := s.deps.ReconfigureAudio(cfg.Audio.SampleRate, cfg.Audio.Gain); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, cfg.Audio)
}

// handleAPIJPEG implements GET/POST /api/jpeg: the snapshot-quality
// default used by /image.jpg when no explicit qfactor is supplied.
func (s *Server) handleAPIJPEG(w http.ResponseWriter, r *http.Request) {
	s.deps.ConfigMu.Lock()
	defer s.deps.ConfigMu.Unlock()
	cfg := s.deps.Config

	if r.Method == http.MethodPost {
		cfg.JPEG.Enable = queryBool(r, "enable", cfg.JPEG.Enable)
		cfg.JPEG.Quality = queryInt(r, "quality", cfg.JPEG.Quality)
	}
	writeJSON(w, http.StatusOK, cfg.JPEG)
}

func (s *Server) handleAPIMJPEG(w http.ResponseWriter, r *http.Request) {
	s.deps.ConfigMu.Lock()
	defer s.deps.ConfigMu.Unlock()
	cfg := s.deps.Config

	if r.Method == http.MethodPost {
		cfg.Stream.MJPEGEnable = queryBool(r, "enable", cfg.Stream.MJPEGEnable)
	}
	writeJSON(w, http.StatusOK, map[string]any{"enable": cfg.Stream.MJPEGEnable})
}

// handleAPIMP4 implements GET/POST /api/mp4, driving the
// disable_mp4/enable_mp4 unbind-destroy-recreate cycle (§4.J) through the
// orchestrator-supplied callbacks rather than touching the channel
// registry directly.
func (s *Server) handleAPIMP4(w http.ResponseWriter, r *http.Request) {
	s.deps.ConfigMu.Lock()
	defer s.deps.ConfigMu.Unlock()
	cfg := s.deps.Config

	if r.Method == http.MethodPost {
		want := queryBool(r, "enable", cfg.MP4.Enable)
		if want != cfg.MP4.Enable {
			var err error
			if want && s.deps.EnableMP4 != nil {
				err = s.deps.EnableMP4()
			} else if !want && s.deps.DisableMP4 != nil {
				err = s.deps.DisableMP4()
			}
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			cfg.MP4.Enable = want
		}
	}
	writeJSON(w, http.StatusOK, cfg.MP4)
}

// handleAPINight implements GET/POST /api/night (§4.I): force a mode,
// flip manual override, or just report current state.
func (s *Server) handleAPINight(w http.ResponseWriter, r *http.Request) {
	s.deps.ConfigMu.Lock()
	cfg := s.deps.Config
	if r.Method == http.MethodPost {
		cfg.NightMode.Manual = queryBool(r, "manual", cfg.NightMode.Manual)
		cfg.NightMode.Grayscale = queryBool(r, "grayscale", cfg.NightMode.Grayscale)
	}
	s.deps.ConfigMu.Unlock()

	if s.deps.Night == nil {
		writeJSON(w, http.StatusOK, map[string]any{"mode": "day", "manual": cfg.NightMode.Manual})
		return
	}

	if r.Method == http.MethodPost {
		s.deps.Night.SetManual(cfg.NightMode.Manual)
		if mode := r.URL.Query().Get("mode"); mode != "" {
			switch strings.ToLower(mode) {
			case "night":
				s.deps.Night.ForceMode(daynight.ModeNight)
			case "day":
				s.deps.Night.ForceMode(daynight.ModeDay)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   s.deps.Night.CurrentMode().String(),
		"manual": cfg.NightMode.Manual,
	})
}

// handleAPIISP implements GET/POST /api/isp: pipeline orientation and
// antiflicker (§6 isp section). A geometry change here takes effect on
// the next PipelineCreate; this port does not tear down/recreate the
// pipeline synchronously from the control API (Open Question, see
// DESIGN.md).
func (s *Server) handleAPIISP(w http.ResponseWriter, r *http.Request) {
	s.deps.ConfigMu.Lock()
	defer s.deps.ConfigMu.Unlock()
	cfg := s.deps.Config

	if r.Method == http.MethodPost {
		cfg.ISP.Mirror = queryBool(r, "mirror", cfg.ISP.Mirror)
		cfg.ISP.Flip = queryBool(r, "flip", cfg.ISP.Flip)
		if af := r.URL.Query().Get("antiflicker"); af != "" {
			cfg.ISP.Antiflicker = af
		}
	}
	writeJSON(w, http.StatusOK, cfg.ISP)
}

// handleAPIOSD implements GET/POST /api/osd/<id> (§3 OSD Region, §4.H).
func (s *Server) handleAPIOSD(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/api/osd/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		writeConfigError(w, &config.Error{Kind: config.ErrNotANumber, Key: "id", Err: err})
		return
	}
	if s.deps.OSD == nil {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodPost {
		region, ok := s.deps.OSD.RegionSnapshot(id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if text := r.URL.Query().Get("text"); text != "" {
			region.Text = text
		}
		if img := r.URL.Query().Get("image_path"); img != "" {
			region.ImagePath = img
		}
		region.PositionX = queryInt(r, "position_x", region.PositionX)
		region.PositionY = queryInt(r, "position_y", region.PositionY)
		region.Size = queryInt(r, "size", region.Size)
		s.deps.OSD.Configure(id, region)
	}

	region, ok := s.deps.OSD.RegionSnapshot(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, region)
}

// handleAPIRecord implements GET/POST /api/record (§4.K, §4.J's
// disable_mp4-adjacent "record" toggle).
func (s *Server) handleAPIRecord(w http.ResponseWriter, r *http.Request) {
	s.deps.ConfigMu.Lock()
	defer s.deps.ConfigMu.Unlock()
	cfg := s.deps.Config

	if r.Method == http.MethodPost {
		cfg.Record.Enable = queryBool(r, "enable", cfg.Record.Enable)
		if s.deps.Recorder != nil {
			if cfg.Record.Enable {
				_ = s.deps.Recorder.Start()
			} else {
				s.deps.Recorder.Stop()
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"enable":     cfg.Record.Enable,
		"continuous": cfg.Record.Continuous,
		"directory":  cfg.Record.Directory,
	})
}

// handleAPIStatus implements GET /api/status: a snapshot of the system's
// reportable state (§3, §6).
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"channels": s.deps.Channels.EnabledIndices(),
	}
	if s.deps.Device != nil {
		if temp, err := s.deps.Device.ReadTemperature(); err == nil {
			status["temperature_c"] = temp
		}
		if luma, err := s.deps.Device.ReadISPAverageLuma(); err == nil {
			status["isp_average_luma"] = luma
		}
	}
	if s.deps.Night != nil {
		status["night_mode"] = s.deps.Night.CurrentMode().String()
	}
	if s.deps.Fanout != nil {
		status["client_count"] = s.deps.Fanout.Len()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleAPITime implements GET /api/time: the current Unix time in seconds
// and the configured time_format string; the time is not formatted here.
func (s *Server) handleAPITime(w http.ResponseWriter, r *http.Request) {
	s.deps.ConfigMu.Lock()
	format := s.deps.Config.System.TimeFormat
	s.deps.ConfigMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"unix":   time.Now().Unix(),
		"format": format,
	})
}

// handleAPICmd implements GET/POST /api/cmd?save=1: persists the live
// config to disk (§6 "Save policy").
func (s *Server) handleAPICmd(w http.ResponseWriter, r *http.Request) {
	if !queryBool(r, "save", false) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "no-op"})
		return
	}

	s.deps.ConfigMu.Lock()
	cfg := s.deps.Config
	path := s.deps.ConfigPath
	s.deps.ConfigMu.Unlock()

	if path == "" {
		path = config.DefaultPath
	}
	if err := config.Save(path, cfg); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	s.log.Info("httpapi: config saved", "path", path, "summary", cfg.Diff())
	writeJSON(w, http.StatusOK, map[string]any{"status": "saved", "path": path})
}
