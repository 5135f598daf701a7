// Package rtppkt packetizes H.264/H.265 NAL units and AAC/MP3 audio frames
// into RTP payloads for the RTSP session engine and UDP streamer. This is
// the outbound counterpart of a depacketizer: the camera is always the RTP
// sender here, never the receiver.
package rtppkt

const (
	// H.264 NAL unit types (low 5 bits of the NAL header byte).
	H264NALUTypeSlice = 1
	H264NALUTypeIDR   = 5
	H264NALUTypeSEI   = 6
	H264NALUTypeSPS   = 7
	H264NALUTypePPS   = 8
	H264NALUTypeAUD   = 9
	H264NALUTypeSTAPA = 24
	H264NALUTypeFUA   = 28
)

// H264Packetizer turns single, start-code-stripped NAL units into one or
// more RTP payloads per RFC 6184. Single NAL unit mode is used when the
// NALU fits within MTU; FU-A fragmentation is used otherwise.
type H264Packetizer struct {
	MTU int
}

// NewH264Packetizer returns a packetizer with the given maximum RTP payload
// size (excluding the 12-byte fixed RTP header).
func NewH264Packetizer(mtu int) *H264Packetizer {
	if mtu <= 0 {
		mtu = 1400
	}
	return &H264Packetizer{MTU: mtu}
}

// NALUType returns the NAL unit type byte (low 5 bits) of a NALU.
func NALUType(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

// IsKeyframe reports whether the NALU is an IDR slice.
func IsKeyframe(nalu []byte) bool {
	return NALUType(nalu) == H264NALUTypeIDR
}

// Packetize splits a single NAL unit into one or more RTP payloads. The
// caller (rtspsrv) owns RTP header fields (sequence number, timestamp,
// SSRC); only the marker-bit convention is implied here: the final
// returned payload corresponds to the last packet of the NALU and should
// carry the RTP marker bit.
func (p *H264Packetizer) Packetize(nalu []byte) [][]byte {
	if len(nalu) == 0 {
		return nil
	}
	if len(nalu) <= p.MTU {
		return [][]byte{nalu}
	}

	header := nalu[0]
	naluType := header & 0x1F
	nri := header & 0x60
	payload := nalu[1:]

	maxFragSize := p.MTU - 2 // FU indicator + FU header
	if maxFragSize <= 0 {
		maxFragSize = 1
	}

	var out [][]byte
	for offset := 0; offset < len(payload); offset += maxFragSize {
		end := offset + maxFragSize
		if end > len(payload) {
			end = len(payload)
		}
		start := offset == 0
		last := end == len(payload)

		fuIndicator := 0x1C | nri // forbidden_zero_bit=0, NRI preserved, type=FU-A(28)
		fuHeader := naluType
		if start {
			fuHeader |= 0x80
		}
		if last {
			fuHeader |= 0x40
		}

		frag := make([]byte, 2+(end-offset))
		frag[0] = fuIndicator
		frag[1] = fuHeader
		copy(frag[2:], payload[offset:end])
		out = append(out, frag)
	}
	return out
}
