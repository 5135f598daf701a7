package httpapi

import (
	"bufio"
	"fmt"
	"net/http"

	"github.com/divinus-go/camerad/internal/channel"
	"github.com/divinus-go/camerad/internal/fanout"
)

// resolveChannel picks the channel a streaming request binds to: an
// explicit ?channel=N query parameter, or the lowest-numbered enabled
// main-loop channel otherwise (§4.E's fan-out is keyed by channel index).
func resolveChannel(r *http.Request, reg *channel.Registry) (int, bool) {
	if raw := r.URL.Query().Get("channel"); raw != "" {
		n := queryInt(r, "channel", -1)
		if n >= 0 && reg.Enabled(n) {
			return n, true
		}
		return 0, false
	}
	for _, idx := range reg.EnabledIndices() {
		if reg.MainLoop(idx) {
			return idx, true
		}
	}
	if indices := reg.EnabledIndices(); len(indices) > 0 {
		return indices[0], true
	}
	return 0, false
}

// hijackAndWriteHeader takes over the connection and writes a raw HTTP
// response line + headers by hand, since fanout's Send* methods only ever
// write chunk/multipart framing, never an HTTP header (§4.E: "the fan-out
// row owns the wire bytes after the initial response line").
func hijackAndWriteHeader(w http.ResponseWriter, status int, headers string) (*bufio.ReadWriter, hijackedConn, error) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return nil, hijackedConn{}, http.ErrNotSupported
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, hijackedConn{}, err
	}
	statusLine := fmt.Sprintf("HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	if _, err := rw.WriteString(statusLine + headers + "\r\n"); err != nil {
		conn.Close()
		return nil, hijackedConn{}, err
	}
	if err := rw.Flush(); err != nil {
		conn.Close()
		return nil, hijackedConn{}, err
	}
	return rw, hijackedConn{conn}, nil
}

// hijackedConn adapts the hijacked net.Conn to fanout.Sink (io.Writer +
// io.Closer) and gives the streaming handlers a blocking read to detect
// when the peer disconnects.
type hijackedConn struct {
	c interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
		Close() error
	}
}

func (h hijackedConn) Write(b []byte) (int, error) { return h.c.Write(b) }
func (h hijackedConn) Close() error                { return h.c.Close() }

// waitForDisconnect blocks until a read on the hijacked connection fails,
// which is the only reliable "client went away" signal once the handler
// has stopped driving the request/response loop itself.
func waitForDisconnect(c hijackedConn) {
	buf := make([]byte, 1)
	for {
		if _, err := c.c.Read(buf); err != nil {
			return
		}
	}
}

func (s *Server) handleVideoH26x(w http.ResponseWriter, r *http.Request) {
	idx, ok := resolveChannel(r, s.deps.Channels)
	if !ok {
		http.Error(w, "no channel available", http.StatusNotFound)
		return
	}

	contentType := "video/h264"
	if s.deps.Channels.CodecOf(idx) == channel.CodecH265 {
		contentType = "video/h265"
	}

	_, conn, err := hijackAndWriteHeader(w, http.StatusOK,
		"Content-Type: "+contentType+"\r\nTransfer-Encoding: chunked\r\nCache-Control: no-cache\r\nConnection: close\r\n")
	if err != nil {
		s.log.Warn("httpapi: h26x hijack failed", "error", err)
		return
	}
	defer conn.Close()

	id, err := s.deps.Fanout.Add(fanout.SinkH26x, idx, conn)
	if err != nil {
		s.log.Warn("httpapi: h26x client rejected", "error", err)
		return
	}
	defer s.deps.Fanout.Remove(id)

	waitForDisconnect(conn)
}

func (s *Server) handleVideoMP4(w http.ResponseWriter, r *http.Request) {
	idx, ok := resolveChannel(r, s.deps.Channels)
	if !ok {
		http.Error(w, "no channel available", http.StatusNotFound)
		return
	}

	_, conn, err := hijackAndWriteHeader(w, http.StatusOK,
		"Content-Type: video/mp4\r\nTransfer-Encoding: chunked\r\nCache-Control: no-cache\r\nConnection: close\r\n")
	if err != nil {
		s.log.Warn("httpapi: mp4 hijack failed", "error", err)
		return
	}
	defer conn.Close()

	id, err := s.deps.Fanout.Add(fanout.SinkMP4, idx, conn)
	if err != nil {
		s.log.Warn("httpapi: mp4 client rejected", "error", err)
		return
	}
	defer s.deps.Fanout.Remove(id)

	waitForDisconnect(conn)
}

func (s *Server) handleMJPEG(w http.ResponseWriter, r *http.Request) {
	idx, ok := resolveChannel(r, s.deps.Channels)
	if !ok {
		http.Error(w, "no channel available", http.StatusNotFound)
		return
	}

	_, conn, err := hijackAndWriteHeader(w, http.StatusOK,
		"Content-Type: multipart/x-mixed-replace; boundary=boundarydonotcross\r\nCache-Control: no-cache\r\nConnection: close\r\n")
	if err != nil {
		s.log.Warn("httpapi: mjpeg hijack failed", "error", err)
		return
	}
	defer conn.Close()

	id, err := s.deps.Fanout.Add(fanout.SinkMJPEG, idx, conn)
	if err != nil {
		s.log.Warn("httpapi: mjpeg client rejected", "error", err)
		return
	}
	defer s.deps.Fanout.Remove(id)

	waitForDisconnect(conn)
}

func (s *Server) handleAudioPCM(w http.ResponseWriter, r *http.Request) {
	_, conn, err := hijackAndWriteHeader(w, http.StatusOK,
		"Content-Type: audio/L16\r\nTransfer-Encoding: chunked\r\nCache-Control: no-cache\r\nConnection: close\r\n")
	if err != nil {
		s.log.Warn("httpapi: pcm hijack failed", "error", err)
		return
	}
	defer conn.Close()

	// PCM is not bound to a video channel (§4.E send_pcm); channel is 0.
	id, err := s.deps.Fanout.Add(fanout.SinkPCM, 0, conn)
	if err != nil {
		s.log.Warn("httpapi: pcm client rejected", "error", err)
		return
	}
	defer s.deps.Fanout.Remove(id)

	waitForDisconnect(conn)
}

// handleImageJPG implements the one-shot snapshot route. Of the query
// parameters only qfactor is read (defaulting to the configured JPEG
// quality); width, height and color2gray are not read, and the snapshot is
// taken at the channel's own size and colour. This goes straight to
// the HAL's synchronous Snapshot rather than registering a fan-out row,
// since a single reply needs neither chunking nor a live subscription.
func (s *Server) handleImageJPG(w http.ResponseWriter, r *http.Request) {
	idx, ok := resolveChannel(r, s.deps.Channels)
	if !ok {
		http.Error(w, "no channel available", http.StatusNotFound)
		return
	}
	s.deps.ConfigMu.Lock()
	def := s.deps.Config.JPEG.Quality
	s.deps.ConfigMu.Unlock()
	if def <= 0 {
		def = 85
	}
	quality := queryInt(r, "qfactor", def)

	jpeg, err := s.deps.Device.Snapshot(idx, quality)
	if err != nil {
		s.log.Warn("httpapi: snapshot failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	w.Write(jpeg)
}
