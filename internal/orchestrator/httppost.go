package orchestrator

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/divinus-go/camerad/internal/config"
	"github.com/divinus-go/camerad/internal/hal"
	"github.com/divinus-go/camerad/internal/logger"
)

// httpPoster implements the snapshot-push sender (§4.J startup step 9): on
// a fixed interval it takes a JPEG snapshot and POSTs it to a configured
// URL, e.g. an NVR ingest endpoint that has no pull-based access to the
// camera. Grounded on the teacher's pkg/relay/relay.go worker shape
// (ctx/cancel/wg, one ticker-driven loop).
type httpPoster struct {
	log    *logger.Logger
	device hal.Device
	cfg    config.HTTPPost
	client *http.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newHTTPPoster(log *logger.Logger, device hal.Device, cfg config.HTTPPost) *httpPoster {
	if log == nil {
		log = logger.Default()
	}
	return &httpPoster{log: log, device: device, cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *httpPoster) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	interval := time.Duration(p.cfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.postOnce()
			}
		}
	}()
}

func (p *httpPoster) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *httpPoster) postOnce() {
	jpeg, err := p.device.Snapshot(0, 80)
	if err != nil {
		p.log.Warn("http_post: snapshot failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(p.ctx, http.MethodPost, p.cfg.URL, bytes.NewReader(jpeg))
	if err != nil {
		p.log.Warn("http_post: build request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn("http_post: send failed", "error", err)
		return
	}
	resp.Body.Close()
}
