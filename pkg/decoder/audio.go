package decoder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/wfderr"
)

// AudioRunner is the audio decoder runner: an input pump that submits
// access units to a Backend with a bounded wait, a force-drop flag set
// by the A/V sync component, and a live output clock derived from the
// renderer's reported latency. Grounded on AudioPlayController/
// AudioPlayer/AudioAvCodecDecoder's three-layer split, collapsed into
// one runner since the layering existed to cross a process boundary
// this module does not have.
type AudioRunner struct {
	mu       sync.Mutex
	state    State
	track    media.AudioTrack
	backend  Backend
	renderer AudioRenderer
	onEvent  func(EventKind, error)

	firstTimestampUs atomic.Int64
	lastPlayPts      atomic.Int64
	audioLatencyUs   atomic.Int64
	forceDrop        atomic.Bool
	lastDropTimeUs   atomic.Int64

	input chan media.Frame
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewAudioRunner constructs an AudioRunner from Options. It is
// registered against every audio CodecID this sink negotiates (AAC,
// PCM S16BE, G.711 A/u-law) since none of them change the runner's
// shape, only the Backend's internal configuration.
func NewAudioRunner(opts Options) (*AudioRunner, error) {
	if opts.AudioTrack.Codec == media.CodecNone {
		return nil, wfderr.ErrDecodeFormat
	}
	if opts.Backend == nil || opts.AudioSink == nil {
		return nil, wfderr.ErrDecodeFormat
	}
	return &AudioRunner{
		state:    StateCreated,
		track:    opts.AudioTrack,
		backend:  opts.Backend,
		renderer: opts.AudioSink,
		onEvent:  opts.OnEvent,
		input:    make(chan media.Frame, maxRenderQueueSize),
	}, nil
}

func (r *AudioRunner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *AudioRunner) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateCreated {
		return nil
	}
	if err := r.backend.Configure(r.track, media.VideoTrack{}); err != nil {
		return err
	}
	r.state = StateInited
	return nil
}

func (r *AudioRunner) Start() error {
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

// OnFrame enqueues one access unit for decode. If the render queue is
// already at MAX_BUFFER_SIZE, every currently queued frame is dropped
// and released (their output indices freed back) rather than blocking
// for a single free slot — the bulk render-queue-cap policy (§4.5) —
// before this frame is retried with the usual bounded wait exactly as
// the original waited on its input-buffer condition variable before
// declaring a decode timeout.
func (r *AudioRunner) OnFrame(f media.Frame) {
	select {
	case r.input <- f:
		return
	default:
	}

	r.dropAllQueued()

	select {
	case r.input <- f:
	case <-time.After(defaultInputWait):
		if r.onEvent != nil {
			r.onEvent(EventAudioDecodeTimeout, wfderr.ErrProtocolTimeout)
		}
	}
}

// dropAllQueued drains every frame currently sitting in the input
// channel without submitting them to the backend, releasing their
// slots back to the queue.
func (r *AudioRunner) dropAllQueued() {
	for {
		select {
		case <-r.input:
		default:
			return
		}
	}
}

func (r *AudioRunner) pump() {
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

func (r *AudioRunner) decodeAndRender(f media.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultInputWait)
	sample, err := r.backend.Decode(ctx, f.PTS, f.Payload)
	cancel()
	if err != nil {
		return
	}

	if r.needDropFrame() {
		return
	}
	if err := r.renderer.Render(sample); err != nil {
		return
	}

	r.firstTimestampUs.CompareAndSwap(0, sample.PTS+1)
	r.lastPlayPts.Store(sample.PTS)
	r.audioLatencyUs.Store(r.renderer.Latency().Microseconds())
}

// needDropFrame implements the original's IsNeedDropFrame: a force
// drop fires at most once per audioDecodeDropInterval.
func (r *AudioRunner) needDropFrame() bool {
	if !r.forceDrop.Load() {
		return false
	}
	now := time.Now().UnixMicro()
	last := r.lastDropTimeUs.Load()
	if now-last <= audioDecodeDropInterval.Microseconds() {
		return false
	}
	r.forceDrop.Store(false)
	r.lastDropTimeUs.Store(now)
	return true
}

func (r *AudioRunner) DropOneFrame() {
	r.forceDrop.Store(true)
}

// GetDecoderTimestamp returns the live audio clock, or (0, false) if
// no sample has played yet — the two-value form resolving the
// original's zero-sentinel ambiguity (SPEC_FULL.md §9).
func (r *AudioRunner) GetDecoderTimestamp() (int64, bool) {
	if r.firstTimestampUs.Load() == 0 {
		return 0, false
	}
	return r.lastPlayPts.Load() - r.audioLatencyUs.Load(), true
}

func (r *AudioRunner) Stop() {
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

func (r *AudioRunner) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateReleased {
		return
	}
	r.backend.Release()
	r.state = StateReleased
}
