package mp4

// avcSample prepends the 4-byte big-endian length prefix the spec requires
// inside mdat (§4.D: "NALUs inside mdat are length-prefixed (4-byte
// big-endian) — not start-code-prefixed").
func avcSample(nalu []byte) []byte {
	out := make([]byte, 4+len(nalu))
	out[0] = byte(len(nalu) >> 24)
	out[1] = byte(len(nalu) >> 16)
	out[2] = byte(len(nalu) >> 8)
	out[3] = byte(len(nalu))
	copy(out[4:], nalu)
	return out
}

const (
	mfhdBoxSize = 16 // box header(8) + fullbox header(4) + sequence_number(4)
	tfhdBoxSize = 24 // box header(8) + fullbox header(4) + track_ID(4) + base_data_offset(8)
	tfdtBoxSize = 20 // box header(8) + fullbox header(4) + baseMediaDecodeTime(8, version 1)
)

func trunBoxSize(sampleCount int) int {
	// box header(8) + fullbox header(4) + sample_count(4) + data_offset(4)
	// + sampleCount * (duration(4) + size(4) + flags(4))
	return 20 + 12*sampleCount
}

func trafBoxSize(sampleCount int) int {
	return 8 + tfhdBoxSize + tfdtBoxSize + trunBoxSize(sampleCount)
}

// videoMdatLen returns the byte length video samples occupy inside mdat,
// including their 4-byte length prefixes.
func videoMdatLen(frag Fragment) uint64 {
	var n uint64
	for _, s := range frag.Video {
		n += uint64(4 + len(s.Data))
	}
	return n
}

// buildMoof constructs mfhd + traf(video)[+traf(audio)] for one fragment,
// using client-specific sequence_number/base_data_offset/
// base_media_decode_time (§4.D invariants). trun's data_offset (relative to
// the start of this moof box) is computed analytically so every traf
// points at its track's first sample byte inside the following mdat.
func buildMoof(frag Fragment, state *ClientState) []byte {
	mfhd := box("mfhd", concat(fullBoxHeader(0, 0), u32(state.SequenceNumber)))

	moofSize := 8 + mfhdBoxSize + trafBoxSize(len(frag.Video))
	hasAudio := len(frag.Audio) > 0
	if hasAudio {
		moofSize += trafBoxSize(len(frag.Audio))
	}

	videoDataOffset := uint32(moofSize + 8) // skip mdat's own box header
	videoTraf := buildTraf(videoTrackID, frag.Video, state.BaseDataOffset, state.BaseMediaDecodeTime, videoDataOffset)

	trafs := [][]byte{videoTraf}
	if hasAudio {
		audioDataOffset := videoDataOffset + uint32(videoMdatLen(frag))
		audioTraf := buildTraf(audioTrackID, frag.Audio, state.BaseDataOffset, state.BaseMediaDecodeTime, audioDataOffset)
		trafs = append(trafs, audioTraf)
	}

	moofPayload := concat(append([][]byte{mfhd}, trafs...)...)
	return box("moof", moofPayload)
}

func buildTraf(trackID uint32, samples []Sample, baseDataOffset uint64, baseMediaDecodeTime uint64, dataOffset uint32) []byte {
	const tfhdBaseDataOffsetPresent = 0x000001
	tfhd := box("tfhd", concat(
		fullBoxHeader(0, tfhdBaseDataOffsetPresent),
		u32(trackID),
		u64(baseDataOffset),
	))

	tfdt := box("tfdt", concat(fullBoxHeader(1, 0), u64(baseMediaDecodeTime)))

	const (
		trunDataOffsetPresent     = 0x000001
		trunSampleDurationPresent = 0x000100
		trunSampleSizePresent     = 0x000200
		trunSampleFlagsPresent    = 0x000400
	)
	flags := uint32(trunDataOffsetPresent | trunSampleDurationPresent | trunSampleSizePresent | trunSampleFlagsPresent)

	trunPayload := concat(
		fullBoxHeader(0, flags),
		u32(uint32(len(samples))),
		u32(dataOffset),
	)
	for _, s := range samples {
		trunPayload = append(trunPayload, u32(s.DurationTS)...)
		trunPayload = append(trunPayload, u32(uint32(4+len(s.Data)))...)
		trunPayload = append(trunPayload, sampleFlags(s.IsSync)...)
	}
	trun := box("trun", trunPayload)

	return box("traf", concat(tfhd, tfdt, trun))
}

func sampleFlags(isSync bool) []byte {
	// sample_depends_on (bits 25-26 of the 32-bit flags word), is_difference.
	if isSync {
		return []byte{0x02, 0x00, 0x00, 0x00} // depends_on=2 (no), not-difference
	}
	return []byte{0x01, 0x00, 0x10, 0x00} // depends_on=1 (yes), is-difference
}

// buildMdat concatenates AVC-length-prefixed video samples followed by raw
// audio sample bytes, matching the order trun's sample lists describe.
func buildMdat(frag Fragment) []byte {
	var payload []byte
	for _, s := range frag.Video {
		payload = append(payload, avcSample(s.Data)...)
	}
	for _, s := range frag.Audio {
		payload = append(payload, s.Data...)
	}
	return box("mdat", payload)
}
