package rtspsrv

import (
	"github.com/pion/rtp"
)

// marshalRTP builds one RTP packet with the fixed 12-byte header pion/rtp
// implements, matching the wire format the teacher's client.go parses on
// the receive side (pkg/rtsp/client.go's ReadPackets channel%2==0 path).
func marshalRTP(seq uint16, timestamp uint32, ssrc uint32, payloadType uint8, marker bool, payload []byte) ([]byte, error) {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    payloadType,
			SequenceNumber: seq,
			Timestamp:      timestamp,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	return pkt.Marshal()
}
