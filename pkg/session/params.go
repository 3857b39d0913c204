package session

import (
	"strconv"
	"strings"
	"time"

	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/rtsp"
)

// containsToken reports whether header contains needle as a
// substring, used for the Server: header PC-source sniff
// (HandleM2Response's original does a plain substring match, not a
// token-boundary comparison).
func containsToken(header, needle string) bool {
	return needle != "" && strings.Contains(header, needle)
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// firstToken returns the first space-separated token of a
// wfd_presentation_URL value ("rtsp://host/wfd1.0 none" — the second
// token addresses a coupled secondary sink this rendition doesn't
// support).
func firstToken(v string) string {
	v = strings.TrimSpace(v)
	if idx := strings.IndexByte(v, ' '); idx >= 0 {
		return v[:idx]
	}
	return v
}

// parseSessionHeader splits a "<sessionid>;timeout=<seconds>" Session
// header, defaulting to keepAliveTimeoutDefault when the timeout
// attribute is absent or malformed.
func parseSessionHeader(header string) (id string, timeout time.Duration) {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return "", keepAliveTimeoutDefault
	}
	id = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if after, ok := strings.CutPrefix(p, "timeout="); ok {
			if secs, err := strconv.Atoi(strings.TrimSpace(after)); err == nil {
				return id, time.Duration(secs) * time.Second
			}
		}
	}
	return id, keepAliveTimeoutDefault
}

// parseVideoTrack reads the negotiated video track out of an M4
// SET_PARAMETER body. WFD's native/preferred-display-mode bitmask
// selects among a fixed resolution/refresh-rate table; this rendition
// doesn't decode that table (the sink's renderer is resolution-
// agnostic), so only the codec — always H.264 baseline per the WFD
// spec — is recorded.
func parseVideoTrack(values map[string]string) media.VideoTrack {
	track := media.VideoTrack{Codec: media.CodecH264}
	if _, ok := values[rtsp.ParamVideoFormats]; !ok {
		return track
	}
	return track
}

// parseAudioTrack reads the negotiated audio codec out of an M4
// SET_PARAMETER body's wfd_audio_codecs value (e.g. "AAC 00000001 00"
// — codec name, mode bitmask, latency). Only the codec name is needed
// downstream; the mode bitmask selects sample rate/channel count the
// decoder negotiates directly from the elementary stream.
func parseAudioTrack(values map[string]string) media.AudioTrack {
	raw, ok := values[rtsp.ParamAudioCodecs]
	if !ok {
		return media.AudioTrack{}
	}
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return media.AudioTrack{}
	}
	switch strings.ToUpper(fields[0]) {
	case "AAC":
		return media.AudioTrack{Codec: media.CodecAAC, SampleRate: 48000, Channels: 2, BitDepth: 16}
	case "LPCM":
		return media.AudioTrack{Codec: media.CodecPCMS16BE, SampleRate: 48000, Channels: 2, BitDepth: 16}
	default:
		return media.AudioTrack{Codec: media.CodecAAC, SampleRate: 48000, Channels: 2, BitDepth: 16}
	}
}
