// Package decoder defines the uniform decoder-runner contract (C6/C7):
// a codec-keyed factory, and audio/video runners each owning an input
// pump and output render thread around an external decode back-end.
package decoder

import (
	"context"
	"fmt"
	"time"

	"github.com/ethan/wfd-sink/pkg/media"
)

// State is the decoder runner's lifecycle state machine:
// CREATED → INITED → RUNNING → STOPPED → RELEASED. Stop moves a
// running runner to STOPPED and Release moves it to RELEASED; the
// runners have no Flush or Reset step, so there is no flush-failure
// path to RELEASED.
type State int

const (
	StateCreated State = iota
	StateInited
	StateRunning
	StateStopped
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateInited:
		return "inited"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateReleased:
		return "released"
	default:
		return "created"
	}
}

// Decoder is the uniform contract every codec-specific runner
// implements.
type Decoder interface {
	Init(ctx context.Context) error
	Start() error
	Stop()
	Release()
	OnFrame(f media.Frame)
	// GetDecoderTimestamp returns the decoder's current output clock
	// and whether it is valid yet — a two-value return replacing the
	// original's zero-sentinel-means-no-clock-yet convention (see
	// SPEC_FULL.md §9 open-question decisions).
	GetDecoderTimestamp() (us int64, valid bool)
	DropOneFrame()
	State() State
}

// EventKind enumerates the telemetry events a decoder runner can
// raise upward, distinct from the session-level agent events of
// pkg/events — these are decoder-internal diagnostics.
type EventKind int

const (
	EventAudioDecodeTimeout EventKind = iota
	EventDecoderDied
)

// Factory builds a Decoder for a negotiated track. Registered per
// media.CodecID at package init — the closed-variant replacement for
// a class-name-keyed factory (Design Notes §9).
type Factory func(opts Options) (Decoder, error)

// Options bundles everything a Factory needs to build a runner.
type Options struct {
	AudioTrack   media.AudioTrack
	VideoTrack   media.VideoTrack
	IsPCSource   bool // §12 supplement: carried from the session; neither runner reads it, so PC and non-PC sources get the same audio buffering
	AudioSink    AudioRenderer
	VideoSink    VideoRenderer
	Backend      Backend
	OnEvent      func(EventKind, error)
}

var videoFactories = map[media.CodecID]Factory{}
var audioFactories = map[media.CodecID]Factory{}

// RegisterVideoFactory installs a video Factory for codec id.
func RegisterVideoFactory(id media.CodecID, f Factory) { videoFactories[id] = f }

// RegisterAudioFactory installs an audio Factory for codec id.
func RegisterAudioFactory(id media.CodecID, f Factory) { audioFactories[id] = f }

// NewVideoDecoder looks up and invokes the registered video factory.
func NewVideoDecoder(id media.CodecID, opts Options) (Decoder, error) {
	f, ok := videoFactories[id]
	if !ok {
		return nil, fmt.Errorf("decoder: no video factory registered for codec %s", id)
	}
	return f(opts)
}

// NewAudioDecoder looks up and invokes the registered audio factory.
func NewAudioDecoder(id media.CodecID, opts Options) (Decoder, error) {
	f, ok := audioFactories[id]
	if !ok {
		return nil, fmt.Errorf("decoder: no audio factory registered for codec %s", id)
	}
	return f(opts)
}

func init() {
	RegisterAudioFactory(media.CodecAAC, func(opts Options) (Decoder, error) { return NewAudioRunner(opts) })
	RegisterAudioFactory(media.CodecPCMS16BE, func(opts Options) (Decoder, error) { return NewAudioRunner(opts) })
	RegisterAudioFactory(media.CodecG711A, func(opts Options) (Decoder, error) { return NewAudioRunner(opts) })
	RegisterAudioFactory(media.CodecG711U, func(opts Options) (Decoder, error) { return NewAudioRunner(opts) })
	RegisterVideoFactory(media.CodecH264, func(opts Options) (Decoder, error) { return NewVideoRunner(opts) })
}

const defaultInputWait = 10 * time.Millisecond
const audioDecodeDropInterval = 500 * time.Millisecond
const maxRenderQueueSize = 64
