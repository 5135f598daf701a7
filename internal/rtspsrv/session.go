package rtspsrv

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/rtcp"

	"github.com/divinus-go/camerad/internal/logger"
)

// session is one accepted RTSP TCP connection (§3 RTSP Client). Unlike the
// teacher's pkg/rtsp client.go (which dials out and parses responses),
// this side accepts connections and parses requests — the wire framing
// (bufio.Reader, '$'-prefixed interleaved binary data detection, CRLF
// header parsing) is kept in the teacher's idiom but inverted.
type session struct {
	id     uint64
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	videoChannels [2]byte // RTP, RTCP
	audioChannels [2]byte
	hasAudio      bool

	playing atomic.Bool
	closed  atomic.Bool

	videoSeq atomic.Uint32
	audioSeq atomic.Uint32
	videoSSRC uint32
	audioSSRC uint32
}

func newSession(conn net.Conn) *session {
	s := &session{
		conn:          conn,
		reader:        bufio.NewReaderSize(conn, 8192),
		videoChannels: [2]byte{0, 1},
		audioChannels: [2]byte{2, 3},
	}
	s.id = randomSessionID()
	s.videoSSRC = randomSSRC()
	s.audioSSRC = randomSSRC()
	return s
}

func randomSessionID() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := binary.BigEndian.Uint64(b[:])
	if v == 0 {
		v = 1
	}
	return v
}

func randomSSRC() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

func (s *session) sessionIDString() string {
	return fmt.Sprintf("%d", s.id)
}

// writeInterleaved writes one '$'-framed RTP/RTCP record on the given
// channel (§4.F: "All RTP is interleaved over TCP in this design").
func (s *session) writeInterleaved(channel byte, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	header := [4]byte{'$', channel, byte(len(payload) >> 8), byte(len(payload))}
	if _, err := s.conn.Write(header[:]); err != nil {
		return err
	}
	_, err := s.conn.Write(payload)
	return err
}

// drainInterleavedRecord consumes one '$'-framed record from the stream.
// The engine never originates interleaved data on an RTCP channel from the
// client side in this design, but some clients echo receiver reports back
// over the same TCP connection; those are decoded with pion/rtcp purely
// for diagnostic logging (§4.F: "the spec has no RTCP feedback loop").
func (s *session) drainInterleavedRecord() error {
	var header [4]byte
	if _, err := io.ReadFull(s.reader, header[:]); err != nil {
		return err
	}
	channel := header[1]
	size := binary.BigEndian.Uint16(header[2:4])

	payload := make([]byte, size)
	if _, err := io.ReadFull(s.reader, payload); err != nil {
		return err
	}

	if channel%2 == 1 { // RTCP channels are always odd per §4.F's default pairing.
		if packets, err := rtcp.Unmarshal(payload); err == nil {
			logger.Default().DebugRTSP("rtcp receiver report", "session_id", s.sessionIDString(), "channel", channel, "packets", len(packets))
		}
	}
	return nil
}

func (s *session) close() {
	if s.closed.CompareAndSwap(false, true) {
		s.conn.Close()
	}
}
