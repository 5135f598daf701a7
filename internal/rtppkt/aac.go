package rtppkt

import "encoding/binary"

// AACTimestampIncrement returns the RTP timestamp advance for one AAC-LC
// access unit of inputSamples samples (typically 1024).
func AACTimestampIncrement(inputSamples int) uint32 {
	return uint32(inputSamples)
}

// PacketizeAACAU wraps one AAC access unit in an RFC 3640 mpeg4-generic
// (AAC-hbr) RTP payload: a 16-bit AU-headers-length field, one 16-bit AU
// header (13-bit size, 3-bit index-delta, both zero here since one AU per
// RTP packet), then the raw access unit bytes.
func PacketizeAACAU(au []byte) []byte {
	payload := make([]byte, 4+len(au))
	binary.BigEndian.PutUint16(payload[0:2], 16) // AU-headers-length in bits
	auHeader := uint16(len(au)&0x1FFF) << 3       // 13-bit size, 3-bit index/delta = 0
	binary.BigEndian.PutUint16(payload[2:4], auHeader)
	copy(payload[4:], au)
	return payload
}

// MP3TimestampIncrement returns the RTP timestamp advance for one MPEG-1
// Layer III frame: exactly 1152 samples regardless of bitrate.
const MP3TimestampIncrement uint32 = 1152

// PacketizeMP3Frame wraps one MPEG-1 Layer III frame in an RFC 2250 MPA
// payload: a 4-byte header (2 reserved + 2 fragment-offset bytes, both
// zero since the core never splits one frame across RTP packets) followed
// by the raw frame bytes.
func PacketizeMP3Frame(frame []byte) []byte {
	payload := make([]byte, 4+len(frame))
	copy(payload[4:], frame)
	return payload
}
