// Package media defines the Frame and MediaData primitives produced
// by the ingest pipeline (C3) and carried through the buffer
// dispatcher (C5), plus the dispatcher itself.
package media

// CodecID identifies the elementary-stream codec carried by a Frame.
type CodecID int

const (
	CodecNone CodecID = iota
	CodecH264
	CodecAAC
	CodecPCMS16BE
	CodecG711A
	CodecG711U
)

func (c CodecID) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecAAC:
		return "aac"
	case CodecPCMS16BE:
		return "pcm_s16be"
	case CodecG711A:
		return "g711a"
	case CodecG711U:
		return "g711u"
	default:
		return "none"
	}
}

// TrackKind distinguishes audio from video media.
type TrackKind int

const (
	TrackVideo TrackKind = iota
	TrackAudio
)

// Frame is an ordered, immutable-after-publish access unit produced
// by the ingest pipeline. Once published it is read-only; a Frame is
// shared by value-copy of its header fields but its Payload slice is
// never mutated after the ingest pipeline hands it on.
type Frame struct {
	Codec     CodecID
	Track     TrackKind
	KeyFrame  bool
	DTS       int64 // 90kHz (video) or stream-native rate (audio)
	PTS       int64
	Payload   []byte // includes any start-code / length prefix
	SSRC      uint32
}

// AudioTrack is the negotiated audio descriptor, immutable after
// session negotiation.
type AudioTrack struct {
	Codec      CodecID
	SampleRate int
	Channels   int
	BitDepth   int
}

// VideoTrack is the negotiated video descriptor, immutable after
// session negotiation.
type VideoTrack struct {
	Codec     CodecID
	Width     int
	Height    int
	FrameRate float64
}

// MediaData wraps a Frame (or, post-decode, a raw decoded buffer) as
// it travels through the dispatcher, adding the bookkeeping the
// dispatcher and its receivers need that the Frame itself does not
// carry: whether this datum is raw (pre-decode) or decoded output,
// its key-frame flag (duplicated from Frame for receivers that only
// see decoded buffers), and which media type it belongs to.
type MediaData struct {
	Frame     Frame
	IsRaw     bool
	KeyFrame  bool
	MediaType TrackKind
	// writeIndex is not set by the dispatcher: it keeps each datum's
	// monotonic slot index in its own log entries, and receivers' read
	// cursors are expressed in terms of those.
	writeIndex uint64
}

// NewMediaData wraps a raw Frame as dispatcher input.
func NewMediaData(f Frame) MediaData {
	return MediaData{
		Frame:     f,
		IsRaw:     true,
		KeyFrame:  f.KeyFrame,
		MediaType: f.Track,
	}
}
