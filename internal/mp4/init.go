package mp4

import (
	"github.com/divinus-go/camerad/internal/packet"
)

const (
	videoTrackID = 1
	audioTrackID = 2
)

// buildInitSegment constructs ftyp+moov for the given config and decoder
// config snapshot (§4.D). Duration is always 0 (live).
func buildInitSegment(cfg Config, dc decoderConfig) []byte {
	major := "iso5"
	if cfg.VideoCodec == packet.CodecH265 {
		major = "hev1"
	}
	ftypBox := box("ftyp", concat([]byte(major), u32(0), []byte("iso5"), []byte("iso6"), []byte(major)))

	mvhd := buildMVHD()
	videoTrak := buildVideoTrak(cfg, dc)

	var tracks [][]byte
	tracks = append(tracks, videoTrak)
	trexBoxes := [][]byte{buildTREX(videoTrackID)}

	if cfg.AudioCodec != AudioNone {
		tracks = append(tracks, buildAudioTrak(cfg))
		trexBoxes = append(trexBoxes, buildTREX(audioTrackID))
	}

	mvex := box("mvex", concat(trexBoxes...))

	moovPayload := concat(append([][]byte{mvhd}, append(tracks, mvex)...)...)
	moovBox := box("moov", moovPayload)

	return concat(ftypBox, moovBox)
}

func buildMVHD() []byte {
	payload := concat(
		fullBoxHeader(0, 0),
		u32(0), u32(0), // creation/modification time
		u32(VideoTimescale),
		u32(0), // duration=0 (live)
		u32(0x00010000), // rate 1.0
		u16(0x0100),     // volume 1.0
		u16(0),          // reserved
		u32(0), u32(0),  // reserved
		identityMatrix(),
		make([]byte, 24), // pre_defined
		u32(3), // next_track_ID
	)
	return box("mvhd", payload)
}

func identityMatrix() []byte {
	vals := []uint32{0x00010000, 0, 0, 0, 0x00010000, 0, 0, 0, 0x40000000}
	out := make([]byte, 0, 36)
	for _, v := range vals {
		out = append(out, u32(v)...)
	}
	return out
}

func buildTREX(trackID uint32) []byte {
	payload := concat(
		fullBoxHeader(0, 0),
		u32(trackID),
		u32(1), // default_sample_description_index
		u32(0), // default_sample_duration
		u32(0), // default_sample_size
		u32(0), // default_sample_flags
	)
	return box("trex", payload)
}

func buildVideoTrak(cfg Config, dc decoderConfig) []byte {
	tkhd := concat(
		fullBoxHeader(0, 0x000007), // enabled|in_movie|in_preview
		u32(0), u32(0),
		u32(videoTrackID),
		u32(0),
		u32(0), // duration=0
		u32(0), u32(0),
		u16(0), u16(0), u16(0), u16(0),
		identityMatrix(),
		u32(uint32(cfg.Width)<<16), u32(uint32(cfg.Height)<<16),
	)
	tkhdBox := box("tkhd", tkhd)

	mdhd := concat(
		fullBoxHeader(0, 0),
		u32(0), u32(0),
		u32(VideoTimescale),
		u32(0),
		u16(0x55c4), u16(0), // language 'und', pre_defined
	)
	mdhdBox := box("mdhd", mdhd)

	hdlr := concat(
		fullBoxHeader(0, 0),
		u32(0), []byte("vide"),
		u32(0), u32(0), u32(0),
		[]byte("divinus video\x00"),
	)
	hdlrBox := box("hdlr", hdlr)

	var sampleEntry []byte
	if cfg.VideoCodec == packet.CodecH265 {
		sampleEntry = buildHEV1(cfg, dc)
	} else {
		sampleEntry = buildAVC1(cfg, dc)
	}

	stsd := box("stsd", concat(fullBoxHeader(0, 0), u32(1), sampleEntry))
	stts := box("stts", concat(fullBoxHeader(0, 0), u32(0)))
	stsc := box("stsc", concat(fullBoxHeader(0, 0), u32(0)))
	stsz := box("stsz", concat(fullBoxHeader(0, 0), u32(0), u32(0)))
	stco := box("stco", concat(fullBoxHeader(0, 0), u32(0)))
	stbl := box("stbl", concat(stsd, stts, stsc, stsz, stco))

	vmhd := box("vmhd", concat(fullBoxHeader(0, 1), u16(0), u16(0), u16(0), u16(0)))
	dref := box("dref", concat(fullBoxHeader(0, 0), u32(1), box("url ", fullBoxHeader(0, 1))))
	dinf := box("dinf", dref)
	minf := box("minf", concat(vmhd, dinf, stbl))

	mdia := box("mdia", concat(mdhdBox, hdlrBox, minf))

	return box("trak", concat(tkhdBox, mdia))
}

func buildAVC1(cfg Config, dc decoderConfig) []byte {
	avcC := box("avcC", concat(
		u8(1), // configurationVersion
		u8(safeByte(dc.sps, 1)),
		u8(safeByte(dc.sps, 2)),
		u8(safeByte(dc.sps, 3)),
		u8(0xFF), // lengthSizeMinusOne=3 | reserved
		u8(0xE1), // numSPS=1 | reserved
		u16(uint16(len(dc.sps))), dc.sps,
		u8(1), // numPPS
		u16(uint16(len(dc.pps))), dc.pps,
	))

	visual := buildVisualSampleEntry("avc1", cfg, avcC)
	return visual
}

func buildHEV1(cfg Config, dc decoderConfig) []byte {
	hvcC := box("hvcC", concat(
		u8(1), // configurationVersion
		make([]byte, 21),
		u8(3), // numOfArrays
		hvccArray(32, dc.vps),
		hvccArray(33, dc.sps),
		hvccArray(34, dc.pps),
	))
	return buildVisualSampleEntry("hev1", cfg, hvcC)
}

func hvccArray(nalType byte, nalu []byte) []byte {
	return concat(u8(nalType&0x3F), u16(1), u16(uint16(len(nalu))), nalu)
}

func buildVisualSampleEntry(fourcc string, cfg Config, configBox []byte) []byte {
	payload := concat(
		make([]byte, 6), // reserved
		u16(1),          // data_reference_index
		u16(0), u16(0),  // pre_defined, reserved
		make([]byte, 12), // pre_defined
		u16(uint16(cfg.Width)), u16(uint16(cfg.Height)),
		u32(0x00480000), u32(0x00480000), // horiz/vert resolution 72dpi
		u32(0), // reserved
		u16(1), // frame_count
		make([]byte, 32), // compressorname
		u16(0x0018), // depth
		u16(0xFFFF), // pre_defined
		configBox,
	)
	return box(fourcc, payload)
}

func safeByte(b []byte, i int) byte {
	if i < len(b) {
		return b[i]
	}
	return 0
}

func buildAudioTrak(cfg Config) []byte {
	tkhd := concat(
		fullBoxHeader(0, 0x000007),
		u32(0), u32(0),
		u32(audioTrackID),
		u32(0),
		u32(0),
		u32(0), u32(0),
		u16(0), u16(0), u16(0x0100), u16(0),
		identityMatrix(),
		u32(0), u32(0),
	)
	tkhdBox := box("tkhd", tkhd)

	mdhd := concat(
		fullBoxHeader(0, 0),
		u32(0), u32(0),
		u32(uint32(cfg.AudioSampleRate)),
		u32(0),
		u16(0x55c4), u16(0),
	)
	mdhdBox := box("mdhd", mdhd)

	hdlr := concat(
		fullBoxHeader(0, 0),
		u32(0), []byte("soun"),
		u32(0), u32(0), u32(0),
		[]byte("divinus audio\x00"),
	)
	hdlrBox := box("hdlr", hdlr)

	sampleEntry := buildAudioSampleEntry(cfg)
	stsd := box("stsd", concat(fullBoxHeader(0, 0), u32(1), sampleEntry))
	stts := box("stts", concat(fullBoxHeader(0, 0), u32(0)))
	stsc := box("stsc", concat(fullBoxHeader(0, 0), u32(0)))
	stsz := box("stsz", concat(fullBoxHeader(0, 0), u32(0), u32(0)))
	stco := box("stco", concat(fullBoxHeader(0, 0), u32(0)))
	stbl := box("stbl", concat(stsd, stts, stsc, stsz, stco))

	smhd := box("smhd", concat(fullBoxHeader(0, 0), u16(0), u16(0)))
	dref := box("dref", concat(fullBoxHeader(0, 0), u32(1), box("url ", fullBoxHeader(0, 1))))
	dinf := box("dinf", dref)
	minf := box("minf", concat(smhd, dinf, stbl))

	mdia := box("mdia", concat(mdhdBox, hdlrBox, minf))
	return box("trak", concat(tkhdBox, mdia))
}

func buildAudioSampleEntry(cfg Config) []byte {
	var esds []byte
	switch cfg.AudioCodec {
	case AudioAACLC:
		// A minimal MPEG-4 AudioSpecificConfig: object type 2 (AAC-LC),
		// sample-rate index, channel config. Kept intentionally small —
		// this port's init segment only needs to identify the stream as
		// AAC, decoders derive the rest from the first access unit.
		asc := aacAudioSpecificConfig(cfg.AudioSampleRate, cfg.AudioChannels)
		esds = box("esds", concat(fullBoxHeader(0, 0), esdsDescriptor(asc)))
	default: // MP3
		esds = box("esds", concat(fullBoxHeader(0, 0), esdsDescriptor(nil)))
	}

	payload := concat(
		make([]byte, 6),
		u16(1), // data_reference_index
		u16(0), u16(0),
		u32(0), u32(0),
		u16(uint16(cfg.AudioChannels)),
		u16(16), // samplesize
		u16(0), u16(0),
		u32(uint32(cfg.AudioSampleRate)<<16),
		esds,
	)
	return box("mp4a", payload)
}

func aacAudioSpecificConfig(sampleRate, channels int) []byte {
	idx := aacSampleRateIndex(sampleRate)
	b0 := (2 << 3) | (idx >> 1)
	b1 := (idx&1)<<7 | byte(channels)<<3
	return []byte{b0, b1}
}

func aacSampleRateIndex(rate int) byte {
	table := []int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}
	for i, r := range table {
		if r == rate {
			return byte(i)
		}
	}
	return 15 // explicit, unsupported here but never indexes out of range
}

// esdsDescriptor builds a minimal ES_Descriptor carrying an optional
// DecoderSpecificInfo payload (AAC's AudioSpecificConfig); MP3 carries none.
func esdsDescriptor(decoderSpecific []byte) []byte {
	dsi := []byte{}
	if len(decoderSpecific) > 0 {
		dsi = tlvDescriptor(0x05, decoderSpecific)
	}
	decConfig := tlvDescriptor(0x04, concat(
		u8(0x40), // objectTypeIndication: MPEG-4 Audio
		u8(0x15), // streamType=audio, upStream=0, reserved=1
		u24(0), u32(0), u32(0), // buffer size, max/avg bitrate
		dsi,
	))
	slConfig := tlvDescriptor(0x06, []byte{0x02})
	return tlvDescriptor(0x03, concat(u16(0), u8(0), decConfig, slConfig))
}

func tlvDescriptor(tag byte, payload []byte) []byte {
	return concat([]byte{tag}, encodeDescriptorLength(len(payload)), payload)
}

func encodeDescriptorLength(n int) []byte {
	// MPEG-4 descriptor length is a variable-length base-128 big-endian
	// encoding; n here is always small so one byte suffices.
	if n < 0x80 {
		return []byte{byte(n)}
	}
	return []byte{byte(n>>7) | 0x80, byte(n & 0x7F)}
}
