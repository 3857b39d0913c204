package decoder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/wfderr"
)

// VideoRunner is the video decoder runner, one per attached surface
// (§12: MediaController maps surfaceID → VideoRunner). keyFrameOnly
// mirrors the original's "background" scene mode, set via SetKeyMode
// and checked before every non-key access unit is submitted.
type VideoRunner struct {
	mu       sync.Mutex
	state    State
	track    media.VideoTrack
	backend  Backend
	renderer VideoRenderer
	onEvent  func(EventKind, error)

	keyFrameOnly atomic.Bool

	input chan media.Frame
	stop  chan struct{}
	wg    sync.WaitGroup
}

func NewVideoRunner(opts Options) (*VideoRunner, error) {
	if opts.VideoTrack.Codec == media.CodecNone {
		return nil, wfderr.ErrDecodeFormat
	}
	if opts.Backend == nil || opts.VideoSink == nil {
		return nil, wfderr.ErrDecodeFormat
	}
	return &VideoRunner{
		state:    StateCreated,
		track:    opts.VideoTrack,
		backend:  opts.Backend,
		renderer: opts.VideoSink,
		onEvent:  opts.OnEvent,
		input:    make(chan media.Frame, maxRenderQueueSize),
	}, nil
}

func (r *VideoRunner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *VideoRunner) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCreated {
		return nil
	}
	if err := r.backend.Configure(media.AudioTrack{}, r.track); err != nil {
		return err
	}
	r.state = StateInited
	return nil
}

func (r *VideoRunner) Start() error {
	r.mu.Lock()
	if r.state != StateInited {
		r.mu.Unlock()
		return nil
	}
	if err := r.backend.Start(); err != nil {
		r.mu.Unlock()
		return err
	}
	r.state = StateRunning
	r.stop = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go r.pump()
	return nil
}

// SetKeyMode toggles key-frame-only rendering, used when a surface is
// backgrounded — matching media_controller's per-surface sceneType.
func (r *VideoRunner) SetKeyMode(keyOnly bool) {
	r.keyFrameOnly.Store(keyOnly)
}

func (r *VideoRunner) OnFrame(f media.Frame) {
	if r.keyFrameOnly.Load() && !f.KeyFrame {
		return
	}
	select {
	case r.input <- f:
	case <-time.After(defaultInputWait):
		if r.onEvent != nil {
			r.onEvent(EventDecoderDied, wfderr.ErrProtocolTimeout)
		}
	}
}

func (r *VideoRunner) pump() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case f := <-r.input:
			r.decodeAndRender(f)
		}
	}
}

func (r *VideoRunner) decodeAndRender(f media.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultInputWait)
	sample, err := r.backend.Decode(ctx, f.PTS, f.Payload)
	cancel()
	if err != nil {
		return
	}
	_ = r.renderer.Render(media.Frame{
		Codec:    f.Codec,
		Track:    media.TrackVideo,
		KeyFrame: f.KeyFrame,
		DTS:      f.DTS,
		PTS:      sample.PTS,
		Payload:  sample.Data,
		SSRC:     f.SSRC,
	})
}

// DropOneFrame discards the next queued access unit without
// submitting it to the backend. The controller's A/V sync does not
// call it: frames behind the audio clock past threshold_drop are
// dropped when read from the dispatcher, before reaching the runner.
func (r *VideoRunner) DropOneFrame() {
	select {
	case <-r.input:
	default:
	}
}

// GetDecoderTimestamp is unused for video — pacing is driven by the
// audio clock (§4.6) — and always reports no clock.
func (r *VideoRunner) GetDecoderTimestamp() (int64, bool) {
	return 0, false
}

func (r *VideoRunner) Stop() {
	r.mu.Lock()
	if r.state != StateRunning {
		r.mu.Unlock()
		return
	}
	r.state = StateStopped
	stop := r.stop
	r.mu.Unlock()

	close(stop)
	r.wg.Wait()
	_ = r.backend.Stop()
}

func (r *VideoRunner) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateReleased {
		return
	}
	r.backend.Release()
	r.state = StateReleased
}
