// Package rtspsrv implements the RTSP session engine (§4.F): a TCP accept
// loop and per-connection state machine that serves OPTIONS/DESCRIBE/
// SETUP/PLAY/TEARDOWN and broadcasts RTP-over-TCP video/audio to every
// playing session. It is grounded on the teacher's pkg/rtsp client.go —
// the same bufio.Reader wire framing and request/response shape — with
// the client/server roles inverted: this side accepts rather than dials,
// and broadcasts outbound media rather than parsing inbound RTP.
package rtspsrv

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/divinus-go/camerad/internal/audio"
	"github.com/divinus-go/camerad/internal/logger"
	"github.com/divinus-go/camerad/internal/packet"
	"github.com/divinus-go/camerad/internal/rtppkt"
)

// Server is the RTSP TCP listener plus its playing-session table (§4.F).
type Server struct {
	addr   string
	log    *logger.Logger
	media  MediaConfig

	listener net.Listener

	mu       sync.Mutex
	sessions map[uint64]*session

	h264Pkt *rtppkt.H264Packetizer
	h265Pkt *rtppkt.H265Packetizer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// OnPlay is invoked when a session transitions to playing, once per
	// session (§4.F PLAY: "triggers an IDR request on the encoder").
	OnPlay func()
}

// NewServer returns a Server bound to addr (host:port, default port 554),
// not yet listening.
func NewServer(addr string, media MediaConfig, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		addr:     addr,
		log:      log,
		media:    media,
		sessions: make(map[uint64]*session),
		h264Pkt:  rtppkt.NewH264Packetizer(1400),
		h265Pkt:  rtppkt.NewH265Packetizer(1400),
	}
}

// SetMediaConfig updates the SDP-visible stream shape for subsequent
// DESCRIBE responses (e.g. after a control-API codec reconfiguration).
func (s *Server) SetMediaConfig(media MediaConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media = media
}

// Start begins listening and accepting connections (§4.F: "TCP listener on
// configured port (default 554)").
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rtspsrv: listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.acceptLoop()

	s.log.Info("rtsp server listening", "addr", s.addr)
	return nil
}

// Stop closes the listener and every active session, then waits for the
// accept loop and all connection goroutines to exit.
func (s *Server) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.log.Warn("rtsp accept error", "error", err)
			continue
		}

		sess := newSession(conn)
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveSession(sess)
	}
}

// serveSession runs one connection's request/response loop until EOF,
// error, TEARDOWN, or server shutdown (§3 RTSP Client lifecycle).
func (s *Server) serveSession(sess *session) {
	defer s.wg.Done()
	defer s.dropSession(sess)

	s.log.DebugRTSP("session accepted", "session_id", sess.sessionIDString(), "remote", sess.conn.RemoteAddr())

	for {
		req, err := readRequest(sess)
		if err != nil {
			return
		}
		if s.handleRequest(sess, req) {
			return // TEARDOWN or fatal response
		}
	}
}

func (s *Server) dropSession(sess *session) {
	sess.close()
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	s.log.DebugRTSP("session closed", "session_id", sess.sessionIDString())
}

// handleRequest dispatches one RTSP method. It returns true when the
// connection should be closed (TEARDOWN or a fatal transport error).
func (s *Server) handleRequest(sess *session, req *request) bool {
	switch req.Method {
	case "OPTIONS":
		return s.handleOptions(sess, req)
	case "DESCRIBE":
		return s.handleDescribe(sess, req)
	case "SETUP":
		return s.handleSetup(sess, req)
	case "PLAY":
		return s.handlePlay(sess, req)
	case "TEARDOWN":
		s.handleTeardown(sess, req)
		return true
	default:
		resp := newResponse(501, "Not Implemented")
		_ = sess.writeResponse(req, resp)
		return false
	}
}

func (s *Server) handleOptions(sess *session, req *request) bool {
	resp := newResponse(200, "OK")
	resp.Header["Public"] = "DESCRIBE, SETUP, PLAY, TEARDOWN"
	_ = sess.writeResponse(req, resp)
	return false
}

func (s *Server) handleDescribe(sess *session, req *request) bool {
	s.mu.Lock()
	media := s.media
	s.mu.Unlock()

	body, err := buildSDP(media, sess.id)
	if err != nil {
		resp := newResponse(500, "Internal Server Error")
		_ = sess.writeResponse(req, resp)
		return false
	}

	resp := newResponse(200, "OK")
	resp.Header["Content-Type"] = "application/sdp"
	resp.Header["Content-Base"] = req.URI + "/"
	resp.Body = body
	_ = sess.writeResponse(req, resp)
	return false
}

// handleSetup enforces interleaved-TCP-only transport (§4.F: "UDP
// transport is rejected with 461").
func (s *Server) handleSetup(sess *session, req *request) bool {
	transport := req.Header["Transport"]

	if !isInterleavedTCP(transport) {
		resp := newResponse(461, "Unsupported Transport")
		_ = sess.writeResponse(req, resp)
		return false
	}

	lo, hi, ok := parseInterleavedRange(transport)
	if !ok {
		resp := newResponse(461, "Unsupported Transport")
		_ = sess.writeResponse(req, resp)
		return false
	}

	if isAudioURI(req.URI) {
		sess.audioChannels = [2]byte{lo, hi}
		sess.hasAudio = true
	} else {
		sess.videoChannels = [2]byte{lo, hi}
	}

	resp := newResponse(200, "OK")
	resp.Header["Session"] = sess.sessionIDString()
	resp.Header["Transport"] = transport
	_ = sess.writeResponse(req, resp)
	return false
}

func (s *Server) handlePlay(sess *session, req *request) bool {
	resp := newResponse(200, "OK")
	resp.Header["Session"] = sess.sessionIDString()
	resp.Header["Range"] = "npt=0.000-"
	_ = sess.writeResponse(req, resp)

	sess.playing.Store(true)
	s.log.DebugRTSP("session playing", "session_id", sess.sessionIDString())

	if s.OnPlay != nil {
		s.OnPlay()
	}
	return false
}

func (s *Server) handleTeardown(sess *session, req *request) {
	resp := newResponse(200, "OK")
	resp.Header["Session"] = sess.sessionIDString()
	_ = sess.writeResponse(req, resp)
	sess.playing.Store(false)
}

func isAudioURI(uri string) bool {
	return len(uri) >= 6 && uri[len(uri)-6:] == "/audio"
}

func isInterleavedTCP(transport string) bool {
	return containsAll(transport, "RTP/AVP/TCP", "interleaved=")
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !contains(s, sub) {
			return false
		}
	}
	return true
}

func contains(s, sub string) bool {
	return len(sub) == 0 || indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func parseInterleavedRange(transport string) (byte, byte, bool) {
	const key = "interleaved="
	idx := indexOf(transport, key)
	if idx < 0 {
		return 0, 0, false
	}
	rest := transport[idx+len(key):]
	var lo, hi int
	n, err := fmt.Sscanf(rest, "%d-%d", &lo, &hi)
	if err != nil || n != 2 {
		return 0, 0, false
	}
	return byte(lo), byte(hi), true
}

// PushVideo packetizes one H.264/H.265 NALU per RFC 6184/7798 and
// broadcasts it to every playing session's video channel (§4.F push_video,
// called from the capture thread). Timestamp is a monotonic microsecond
// value the caller scales to 90 kHz; each fragment of a multi-packet NALU
// shares the same RTP timestamp, and only the last carries the marker bit.
func (s *Server) PushVideo(p packet.Encoded, timestamp90k uint32) {
	s.mu.Lock()
	sessions := s.snapshotPlayingLocked()
	s.mu.Unlock()
	if len(sessions) == 0 {
		return
	}

	var fragments [][]byte
	if p.Codec == packet.CodecH265 {
		fragments = s.h265Pkt.Packetize(p.Data)
	} else {
		fragments = s.h264Pkt.Packetize(p.Data)
	}

	for _, sess := range sessions {
		s.sendFragments(sess, sess.videoChannels[0], &sess.videoSeq, sess.videoSSRC, videoPayloadType, timestamp90k, fragments)
	}
}

// PushAudio broadcasts one encoded audio frame (MP3 or AAC-LC) to every
// playing session's audio channel (§4.F push_aac/push_mp3).
func (s *Server) PushAudio(frame []byte, kind audio.Kind, timestamp uint32) {
	s.mu.Lock()
	sessions := s.snapshotPlayingLocked()
	s.mu.Unlock()
	if len(sessions) == 0 {
		return
	}

	var payload []byte
	pt := uint8(aacPayloadType)
	if kind == audio.KindMP3 {
		payload = rtppkt.PacketizeMP3Frame(frame)
		pt = mp3PayloadType
	} else {
		payload = rtppkt.PacketizeAACAU(frame)
	}

	for _, sess := range sessions {
		if !sess.hasAudio {
			continue
		}
		s.sendFragments(sess, sess.audioChannels[0], &sess.audioSeq, sess.audioSSRC, pt, timestamp, [][]byte{payload})
	}
}

func (s *Server) snapshotPlayingLocked() []*session {
	var out []*session
	for _, sess := range s.sessions {
		if sess.playing.Load() {
			out = append(out, sess)
		}
	}
	return out
}

// sendFragments writes one RTP packet per fragment over the session's
// interleaved channel. Send failures drop that session only (§5 failure
// semantics): the first failed write logs once via DebugRTSP, closes the
// session and returns.
func (s *Server) sendFragments(sess *session, channel byte, seq *atomic.Uint32, ssrc uint32, pt uint8, ts uint32, fragments [][]byte) {
	for i, frag := range fragments {
		marker := i == len(fragments)-1
		rtpPacket, err := marshalRTP(uint16(seq.Add(1)), ts, ssrc, pt, marker, frag)
		if err != nil {
			continue
		}
		if err := sess.writeInterleaved(channel, rtpPacket); err != nil {
			s.log.DebugRTSP("send failed, dropping session", "session_id", sess.sessionIDString(), "error", err)
			sess.close()
			return
		}
	}
}
