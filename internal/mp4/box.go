// Package mp4 builds fragmented ISO/IEC 14496-12 MP4 (§4.D) by hand: per
// §9's design note, no MP4 library is used here — the spec's box layout is
// the contract, so it is written with encoding/binary exactly as specified.
package mp4

import "encoding/binary"

// box wraps payload in a 4-byte-size + 4-byte-type ISO-BMFF box.
func box(boxType string, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(out[0:4], uint32(8+len(payload)))
	copy(out[4:8], boxType)
	copy(out[8:], payload)
	return out
}

// concat joins box byte slices.
func concat(boxes ...[]byte) []byte {
	n := 0
	for _, b := range boxes {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range boxes {
		out = append(out, b...)
	}
	return out
}

func u8(v byte) []byte { return []byte{v} }

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func fullBoxHeader(version byte, flags uint32) []byte {
	return append([]byte{version}, u24(flags)...)
}

func u24(v uint32) []byte {
	return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
}
