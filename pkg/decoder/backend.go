package decoder

import (
	"context"
	"time"

	"github.com/ethan/wfd-sink/pkg/media"
)

// DecodedSample is one unit of decoder output: PCM for audio, or a
// renderer-ready frame for video (which, for the common surface-copy
// path, is simply the access unit re-wrapped after format validation).
type DecodedSample struct {
	PTS      int64
	Data     []byte
	Channels int
	Rate     int
}

// Backend is the external decode engine boundary — the Go-side stand-in
// for the original's platform codec (AVCodec-style async
// input-buffer/output-buffer callbacks collapsed into one synchronous,
// context-bounded call per access unit). Concrete implementations wrap
// whatever native or cgo decode library is available on the target;
// none ships in this module.
type Backend interface {
	Configure(audio media.AudioTrack, video media.VideoTrack) error
	Start() error
	// Decode submits one access unit and blocks until the backend has
	// an output sample or ctx expires. A context deadline exceeded
	// error models the original's "no input buffer became available
	// within AUDIO_DECODE_WAIT_MILLISECONDS" condition.
	Decode(ctx context.Context, pts int64, data []byte) (DecodedSample, error)
	Stop() error
	Release()
}

// AudioRenderer plays decoded PCM and reports the pipeline's current
// output latency, used by GetDecoderTimestamp to convert the last
// played PTS into a live audio clock.
type AudioRenderer interface {
	Render(sample DecodedSample) error
	SetVolume(vol float32) error
	Latency() time.Duration
}

// VideoRenderer draws a decoded (or pass-through) video frame to a
// surface.
type VideoRenderer interface {
	Render(f media.Frame) error
}
