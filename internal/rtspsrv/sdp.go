package rtspsrv

import (
	"fmt"

	"github.com/pion/sdp/v3"

	"github.com/divinus-go/camerad/internal/audio"
	"github.com/divinus-go/camerad/internal/packet"
)

// MediaConfig describes the current stream shape used to build DESCRIBE's
// SDP (§4.F): a video track at dynamic payload type 96 and, when audio is
// enabled, an MP3 (static PT 14) or AAC-LC (dynamic) audio track.
type MediaConfig struct {
	VideoCodec packet.Codec

	AudioEnabled    bool
	AudioKind       audio.Kind
	AudioSampleRate int
	AudioChannels   int
}

const videoPayloadType = 96
const mp3PayloadType = 14
const aacPayloadType = 97

func buildSDP(cfg MediaConfig, sessionID uint64) ([]byte, error) {
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "0.0.0.0",
		},
		SessionName: "divinus camera stream",
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
	}

	videoName := "H264"
	if cfg.VideoCodec == packet.CodecH265 {
		videoName = "H265"
	}
	videoMedia := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "video",
			Port:    sdp.RangedPort{Value: 0},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{fmt.Sprintf("%d", videoPayloadType)},
		},
		Attributes: []sdp.Attribute{
			{Key: "rtpmap", Value: fmt.Sprintf("%d %s/90000", videoPayloadType, videoName)},
			{Key: "control", Value: "track0"},
		},
	}
	desc.MediaDescriptions = append(desc.MediaDescriptions, videoMedia)

	if cfg.AudioEnabled {
		desc.MediaDescriptions = append(desc.MediaDescriptions, buildAudioMedia(cfg))
	}

	return desc.Marshal()
}

func buildAudioMedia(cfg MediaConfig) *sdp.MediaDescription {
	if cfg.AudioKind == audio.KindMP3 {
		return &sdp.MediaDescription{
			MediaName: sdp.MediaName{
				Media:   "audio",
				Port:    sdp.RangedPort{Value: 0},
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{fmt.Sprintf("%d", mp3PayloadType)},
			},
			Attributes: []sdp.Attribute{
				{Key: "rtpmap", Value: fmt.Sprintf("%d MPA/%d", mp3PayloadType, cfg.AudioSampleRate)},
				{Key: "fmtp", Value: fmt.Sprintf("%d layer=3", mp3PayloadType)},
				{Key: "control", Value: "track1"},
			},
		}
	}

	// AAC-LC: dynamic payload type, mpeg4-generic fmtp per RFC 3640.
	config := aacConfigHex(cfg.AudioSampleRate, cfg.AudioChannels)
	return &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: 0},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{fmt.Sprintf("%d", aacPayloadType)},
		},
		Attributes: []sdp.Attribute{
			{Key: "rtpmap", Value: fmt.Sprintf("%d mpeg4-generic/%d/%d", aacPayloadType, cfg.AudioSampleRate, cfg.AudioChannels)},
			{Key: "fmtp", Value: fmt.Sprintf(
				"%d streamtype=5;profile-level-id=1;mode=AAC-hbr;sizelength=13;indexlength=3;indexdeltalength=3;config=%s",
				aacPayloadType, config)},
			{Key: "control", Value: "track1"},
		},
	}
}

// aacConfigHex renders the 2-byte AudioSpecificConfig as hex, matching
// internal/mp4's aacAudioSpecificConfig (object type 2, AAC-LC).
func aacConfigHex(sampleRate, channels int) string {
	idx := aacSampleRateIndex(sampleRate)
	b0 := (2 << 3) | (idx >> 1)
	b1 := (idx&1)<<7 | byte(channels)<<3
	return fmt.Sprintf("%02x%02x", b0, b1)
}

func aacSampleRateIndex(rate int) byte {
	table := []int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}
	for i, r := range table {
		if r == rate {
			return byte(i)
		}
	}
	return 15
}
