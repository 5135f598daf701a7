// Package udpstream implements the UDP NALU streamer (§4.G): for each
// configured destination, encoded NALUs are sent as UDP datagrams,
// fragmented when they exceed the MTU. Grounded on the teacher's
// ctx/cancel/wg lifecycle (pkg/relay/relay.go) generalized from one
// long-lived RTSP connection to N fire-and-forget UDP destinations.
package udpstream

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/net/ipv4"

	"github.com/divinus-go/camerad/internal/logger"
	"github.com/divinus-go/camerad/internal/packet"
)

// fragment flag bits (§4.G: "1-byte fragment flag (start/middle/end)...
// Keyframes are marked with a top bit in the fragment flag").
const (
	flagStart     = 0x01
	flagMiddle    = 0x02
	flagEnd       = 0x04
	flagKeyframe  = 0x80
	headerLen     = 4 // codec(1) + fragment flag(1) + sequence(2)
	crcTrailerLen = 2
)

// Destination is one configured `udp://host[:port]` sink.
type Destination struct {
	Addr      string
	MTU       int
	MulticastIface string // optional; used only when Addr is in 224.0.0.0/4
}

// udpWriter is the minimal surface destConn needs; a connected *net.UDPConn
// satisfies it directly, and wrappedMulticastConn adapts an unconnected one.
type udpWriter interface {
	Write([]byte) (int, error)
	Close() error
}

// destConn is one live UDP socket for a Destination.
type destConn struct {
	dest Destination
	conn udpWriter
	seq  uint16
}

// Streamer fans encoded NALUs out to every configured destination.
type Streamer struct {
	log  *logger.Logger
	mu   sync.Mutex
	dest []*destConn

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStreamer returns a Streamer with no destinations dialed yet.
func NewStreamer(log *logger.Logger) *Streamer {
	if log == nil {
		log = logger.Default()
	}
	return &Streamer{log: log}
}

// Start resolves and dials every destination (§4.G: unicast or multicast,
// detected by the 224.0.0.0/4 range in the first octet).
func (s *Streamer) Start(ctx context.Context, destinations []Destination) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, d := range destinations {
		dc, err := dial(d)
		if err != nil {
			s.log.Warn("udp streamer: dial failed", "addr", d.Addr, "error", err)
			continue
		}
		s.mu.Lock()
		s.dest = append(s.dest, dc)
		s.mu.Unlock()
	}
	return nil
}

// Stop closes every destination socket.
func (s *Streamer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dc := range s.dest {
		dc.conn.Close()
	}
	s.dest = nil
}

func dial(d Destination) (*destConn, error) {
	addr := strings.TrimPrefix(d.Addr, "udp://")
	if !strings.Contains(addr, ":") {
		addr += ":5004"
	}

	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}

	var conn udpWriter
	if IsMulticast(udpAddr.IP) {
		raw, err := net.ListenUDP("udp4", &net.UDPAddr{Port: 0})
		if err != nil {
			return nil, err
		}
		pconn := ipv4.NewPacketConn(raw)
		if err := pconn.SetMulticastTTL(16); err != nil {
			raw.Close()
			return nil, fmt.Errorf("set multicast ttl: %w", err)
		}
		if d.MulticastIface != "" {
			if iface, err := net.InterfaceByName(d.MulticastIface); err == nil {
				_ = pconn.SetMulticastInterface(iface)
			}
		}
		conn = &wrappedMulticastConn{UDPConn: raw, dest: udpAddr}
	} else {
		raw, err := net.DialUDP("udp4", nil, udpAddr)
		if err != nil {
			return nil, err
		}
		conn = raw
	}

	mtu := d.MTU
	if mtu <= 0 {
		mtu = 1400
	}
	return &destConn{dest: Destination{Addr: d.Addr, MTU: mtu}, conn: conn}, nil
}

// IsMulticast reports whether ip falls in the 224.0.0.0/4 range (§4.G).
func IsMulticast(ip net.IP) bool {
	return ip != nil && ip.IsMulticast()
}

// wrappedMulticastConn adapts an unconnected multicast-bound UDPConn so
// Write() sends to the fixed destination, matching the DialUDP connected
// socket interface the rest of this package relies on.
type wrappedMulticastConn struct {
	*net.UDPConn
	dest *net.UDPAddr
}

func (w *wrappedMulticastConn) Write(b []byte) (int, error) {
	return w.UDPConn.WriteToUDP(b, w.dest)
}

// Send fragments and transmits one NALU to every live destination (§4.G).
func (s *Streamer) Send(p packet.Encoded) {
	s.mu.Lock()
	dests := s.dest
	s.mu.Unlock()
	if len(dests) == 0 {
		return
	}

	for _, dc := range dests {
		s.sendTo(dc, p)
	}
}

func (s *Streamer) sendTo(dc *destConn, p packet.Encoded) {
	codecByte := codecFlag(p.Codec)
	maxPayload := dc.dest.MTU - headerLen - crcTrailerLen
	if maxPayload <= 0 {
		maxPayload = 1
	}

	if len(p.Data) <= maxPayload {
		dc.seq++
		s.writeFragment(dc, codecByte, flagStart|flagEnd, p.IsKeyframe, dc.seq, p.Data)
		return
	}

	for offset := 0; offset < len(p.Data); offset += maxPayload {
		end := offset + maxPayload
		if end > len(p.Data) {
			end = len(p.Data)
		}
		flag := byte(flagMiddle)
		if offset == 0 {
			flag = flagStart
		} else if end == len(p.Data) {
			flag = flagEnd
		}
		dc.seq++
		s.writeFragment(dc, codecByte, flag, p.IsKeyframe, dc.seq, p.Data[offset:end])
	}
}

func (s *Streamer) writeFragment(dc *destConn, codecByte, flag byte, keyframe bool, seq uint16, payload []byte) {
	if keyframe {
		flag |= flagKeyframe
	}

	datagram := make([]byte, headerLen+len(payload)+crcTrailerLen)
	datagram[0] = codecByte
	datagram[1] = flag
	datagram[2] = byte(seq >> 8)
	datagram[3] = byte(seq)
	copy(datagram[headerLen:], payload)

	crc := crc16Checksum(datagram[:headerLen+len(payload)])
	datagram[len(datagram)-2] = byte(crc >> 8)
	datagram[len(datagram)-1] = byte(crc)

	if _, err := dc.conn.Write(datagram); err != nil {
		s.log.DebugUDP("udp send failed", "addr", dc.dest.Addr, "error", err)
	}
}

func codecFlag(c packet.Codec) byte {
	switch c {
	case packet.CodecH264, packet.CodecH264Plus:
		return 0
	case packet.CodecH265:
		return 1
	default:
		return 0xFF
	}
}
