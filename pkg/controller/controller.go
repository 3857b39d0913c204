// Package controller implements the media/playback controller (C9):
// it owns the audio decoder runner and a surfaceID-keyed map of video
// decoder runners sharing one A/V sync clock, and exposes the
// surface-attach/detach and playback-control surface the session
// layer drives. Grounded on
// original_source/services/mediaplayer/src/media_controller.cpp.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethan/wfd-sink/pkg/decoder"
	"github.com/ethan/wfd-sink/pkg/media"
	wfdsync "github.com/ethan/wfd-sink/pkg/sync"
	"github.com/ethan/wfd-sink/pkg/wfderr"
)

// SceneType mirrors the original's per-surface attach hint: a
// foregrounded surface renders every frame, a backgrounded one only
// key frames (§12 supplement).
type SceneType int

const (
	SceneForeground SceneType = iota
	SceneBackground
)

// SurfaceID identifies one attached render surface.
type SurfaceID uint64

// VideoSinkFactory builds a VideoRenderer bound to a concrete surface,
// deferred to the caller since surfaces are a platform concept this
// module does not define.
type VideoSinkFactory func(id SurfaceID) (decoder.VideoRenderer, error)

// Dispatcher is the subset of *media.Dispatcher the controller drives.
type Dispatcher interface {
	AttachReceiver() media.ReceiverID
	DetachReceiver(id media.ReceiverID)
	RequestRead(id media.ReceiverID, mediaType media.TrackKind, cb func(media.ReadResult))
}

type videoEntry struct {
	runner      *decoder.VideoRunner
	receiver    media.ReceiverID
	keyRedirect bool
	pacer       *wfdsync.Sync
}

// Controller is the per-media-channel playback controller.
type Controller struct {
	mu sync.Mutex

	isPlaying bool

	audioTrack media.AudioTrack
	videoTrack media.VideoTrack
	isPCSource bool

	backend       decoder.Backend
	audioSink     decoder.AudioRenderer
	videoSinkFor  VideoSinkFactory
	dispatcher    Dispatcher
	audioReceiver media.ReceiverID

	audioRunner *decoder.AudioRunner
	surfaces    map[SurfaceID]*videoEntry

	thresholdDrop time.Duration
	thresholdWait time.Duration
	frameInterval time.Duration
}

// Options bundles the controller's external collaborators and the
// A/V sync thresholds from configuration (§4.6).
type Options struct {
	Backend       decoder.Backend
	AudioSink     decoder.AudioRenderer
	VideoSinkFor  VideoSinkFactory
	Dispatcher    Dispatcher
	OnEvent       func(decoder.EventKind, error)
	ThresholdDrop time.Duration
	ThresholdWait time.Duration
	FrameInterval time.Duration
}

// New constructs a Controller; Init must be called before Start.
func New(opts Options) *Controller {
	return &Controller{
		backend:       opts.Backend,
		audioSink:     opts.AudioSink,
		videoSinkFor:  opts.VideoSinkFor,
		dispatcher:    opts.Dispatcher,
		surfaces:      make(map[SurfaceID]*videoEntry),
		thresholdDrop: opts.ThresholdDrop,
		thresholdWait: opts.ThresholdWait,
		frameInterval: opts.FrameInterval,
	}
}

// noAudioClock reports no clock ever, driving a surface's pacer
// straight to wall-clock fallback when this controller has no audio
// track negotiated.
type noAudioClock struct{}

func (noAudioClock) GetDecoderTimestamp() (int64, bool) { return 0, false }

// Init negotiates the audio/video tracks and, when an audio track is
// present, builds and initializes the audio runner. It fails if both
// tracks are CODEC_NONE — a sink with neither stream has nothing to
// play — or if the audio runner cannot be built or initialized.
func (c *Controller) Init(audioTrack media.AudioTrack, videoTrack media.VideoTrack, isPCSource bool) error {
	if audioTrack.Codec == media.CodecNone && videoTrack.Codec == media.CodecNone {
		return fmt.Errorf("controller: no audio or video track negotiated: %w", wfderr.ErrDecodeFormat)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioTrack = audioTrack
	c.videoTrack = videoTrack
	c.isPCSource = isPCSource

	if audioTrack.Codec != media.CodecNone {
		runner, err := decoder.NewAudioDecoder(audioTrack.Codec, decoder.Options{
			AudioTrack: audioTrack,
			IsPCSource: isPCSource,
			Backend:    c.backend,
			AudioSink:  c.audioSink,
		})
		if err != nil {
			return fmt.Errorf("controller: audio decoder init: %w", err)
		}
		ar, ok := runner.(*decoder.AudioRunner)
		if !ok {
			return fmt.Errorf("controller: unexpected audio decoder type")
		}
		if err := ar.Init(context.Background()); err != nil {
			return err
		}
		c.audioRunner = ar
	}
	return nil
}

// Start attaches the audio runner to the dispatcher and begins
// playback, starting a video runner with its own receiver for every
// surface appended so far; surfaces appended while playback is
// running are started by AppendSurface.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isPlaying {
		return nil
	}
	if c.audioRunner != nil {
		if err := c.audioRunner.Start(); err != nil {
			return err
		}
		c.audioReceiver = c.dispatcher.AttachReceiver()
		go c.pumpAudio(c.audioReceiver)
	}
	for id, entry := range c.surfaces {
		c.startVideoLocked(id, entry)
	}
	c.isPlaying = true
	return nil
}

// Stop detaches every receiver and stops every runner, but does not
// release decode resources (see Release).
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.isPlaying {
		return
	}
	if c.audioRunner != nil {
		c.dispatcher.DetachReceiver(c.audioReceiver)
		c.audioRunner.Stop()
	}
	for _, entry := range c.surfaces {
		c.dispatcher.DetachReceiver(entry.receiver)
		entry.runner.Stop()
	}
	c.isPlaying = false
}

// Release tears down decode resources entirely; the controller is not
// reusable after this call.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audioRunner != nil {
		c.audioRunner.Release()
	}
	for _, entry := range c.surfaces {
		entry.runner.Release()
	}
	c.surfaces = make(map[SurfaceID]*videoEntry)
}

// AppendSurface attaches a new video render target. It fails if no
// video track was negotiated or the surface is already attached.
// sceneType selects key-frame-only rendering for a backgrounded
// surface. If playback is already running, the surface starts
// receiving frames immediately.
func (c *Controller) AppendSurface(id SurfaceID, sceneType SceneType) error {
	if c.videoTrack.Codec == media.CodecNone {
		return fmt.Errorf("controller: no video track negotiated: %w", wfderr.ErrDecodeFormat)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.surfaces[id]; exists {
		return fmt.Errorf("controller: surface %d already attached", id)
	}

	sink, err := c.videoSinkFor(id)
	if err != nil {
		return fmt.Errorf("controller: build video sink for surface %d: %w", id, err)
	}
	runner, err := decoder.NewVideoDecoder(c.videoTrack.Codec, decoder.Options{
		VideoTrack: c.videoTrack,
		Backend:    c.backend,
		VideoSink:  sink,
	})
	if err != nil {
		return fmt.Errorf("controller: video decoder init for surface %d: %w", id, err)
	}
	vr, ok := runner.(*decoder.VideoRunner)
	if !ok {
		return fmt.Errorf("controller: unexpected video decoder type")
	}
	if err := vr.Init(context.Background()); err != nil {
		return err
	}
	vr.SetKeyMode(sceneType == SceneBackground)

	var clock wfdsync.AudioClock = noAudioClock{}
	if c.audioRunner != nil {
		clock = c.audioRunner
	}
	entry := &videoEntry{
		runner: vr,
		pacer:  wfdsync.New(clock, c.thresholdDrop, c.thresholdWait, c.frameInterval),
	}
	c.surfaces[id] = entry
	if c.isPlaying {
		c.startVideoLocked(id, entry)
	}
	return nil
}

func (c *Controller) startVideoLocked(id SurfaceID, entry *videoEntry) {
	if err := entry.runner.Start(); err != nil {
		return
	}
	entry.receiver = c.dispatcher.AttachReceiver()
	go c.pumpVideo(id, entry)
}

// RemoveSurface detaches and releases a surface's video runner.
func (c *Controller) RemoveSurface(id SurfaceID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.surfaces[id]
	if !ok {
		return
	}
	c.dispatcher.DetachReceiver(entry.receiver)
	entry.runner.Stop()
	entry.runner.Release()
	delete(c.surfaces, id)
}

// SetVolume forwards to the audio renderer.
func (c *Controller) SetVolume(volume float32) error {
	c.mu.Lock()
	sink := c.audioSink
	c.mu.Unlock()
	if sink == nil {
		return nil
	}
	return sink.SetVolume(volume)
}

// SetKeyMode toggles a surface between full and key-frame-only
// rendering.
func (c *Controller) SetKeyMode(id SurfaceID, keyOnly bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.surfaces[id]; ok {
		entry.runner.SetKeyMode(keyOnly)
	}
}

// SetKeyRedirect flags whether a surface's input events should be
// redirected upstream (UIBC target selection happens above this
// package; this only tracks the flag per §12).
func (c *Controller) SetKeyRedirect(id SurfaceID, redirect bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.surfaces[id]; ok {
		entry.keyRedirect = redirect
	}
}

func (c *Controller) pumpAudio(receiver media.ReceiverID) {
	for {
		done := false
		c.dispatcher.RequestRead(receiver, media.TrackAudio, func(r media.ReadResult) {
			if r.Stopped {
				done = true
				return
			}
			c.audioRunner.OnFrame(r.Data.Frame)
		})
		if done {
			return
		}
	}
}

func (c *Controller) pumpVideo(id SurfaceID, entry *videoEntry) {
	for {
		done := false
		var (
			drop  bool
			frame media.Frame
			wait  wfdsync.Decision
		)
		c.dispatcher.RequestRead(entry.receiver, media.TrackVideo, func(r media.ReadResult) {
			// Only decide here — RequestRead holds the dispatcher's lock
			// for the full duration of this callback (dispatcher.go),
			// so sleeping inside it would stall InputData and every
			// other surface/audio's RequestRead too. The actual
			// wfdsync.Wait happens after this call returns and the lock
			// is released.
			if r.Stopped {
				done = true
				return
			}
			wait = entry.pacer.Decide(r.Data.Frame.PTS)
			if wait.Drop {
				drop = true
				return
			}
			frame = r.Data.Frame
		})
		if done {
			return
		}
		if drop {
			continue
		}
		wfdsync.Wait(wait)
		entry.runner.OnFrame(frame)
	}
}
