package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethan/wfd-sink/pkg/decoder"
	"github.com/ethan/wfd-sink/pkg/media"
)

type fakeBackend struct{}

func (fakeBackend) Configure(media.AudioTrack, media.VideoTrack) error { return nil }
func (fakeBackend) Start() error                                      { return nil }
func (fakeBackend) Decode(_ context.Context, pts int64, data []byte) (decoder.DecodedSample, error) {
	return decoder.DecodedSample{PTS: pts, Data: data}, nil
}
func (fakeBackend) Stop() error { return nil }
func (fakeBackend) Release()    {}

type fakeAudioRenderer struct{}

func (fakeAudioRenderer) Render(decoder.DecodedSample) error { return nil }
func (fakeAudioRenderer) SetVolume(float32) error             { return nil }
func (fakeAudioRenderer) Latency() time.Duration              { return 0 }

type fakeVideoRenderer struct {
	rendered chan media.Frame
}

func (f *fakeVideoRenderer) Render(fr media.Frame) error {
	if f.rendered != nil {
		f.rendered <- fr
	}
	return nil
}

type fakeDispatcher struct {
	nextID media.ReceiverID
}

func (d *fakeDispatcher) AttachReceiver() media.ReceiverID {
	d.nextID++
	return d.nextID
}
func (d *fakeDispatcher) DetachReceiver(media.ReceiverID) {}
func (d *fakeDispatcher) RequestRead(id media.ReceiverID, kind media.TrackKind, cb func(media.ReadResult)) {
	cb(media.ReadResult{Stopped: true})
}

func newTestController() *Controller {
	return New(Options{
		Backend:    fakeBackend{},
		AudioSink:  fakeAudioRenderer{},
		Dispatcher: &fakeDispatcher{},
		VideoSinkFor: func(id SurfaceID) (decoder.VideoRenderer, error) {
			return &fakeVideoRenderer{}, nil
		},
		ThresholdDrop: 40 * time.Millisecond,
		ThresholdWait: 40 * time.Millisecond,
		FrameInterval: 33 * time.Millisecond,
	})
}

func TestController_InitFailsWithNoTracks(t *testing.T) {
	c := newTestController()
	err := c.Init(media.AudioTrack{Codec: media.CodecNone}, media.VideoTrack{Codec: media.CodecNone}, false)
	require.Error(t, err)
}

func TestController_AppendSurfaceRequiresVideoTrack(t *testing.T) {
	c := newTestController()
	require.NoError(t, c.Init(media.AudioTrack{Codec: media.CodecAAC}, media.VideoTrack{Codec: media.CodecNone}, false))
	err := c.AppendSurface(1, SceneForeground)
	require.Error(t, err)
}

func TestController_AppendSurfaceRejectsDuplicate(t *testing.T) {
	c := newTestController()
	require.NoError(t, c.Init(media.AudioTrack{Codec: media.CodecNone}, media.VideoTrack{Codec: media.CodecH264}, false))
	require.NoError(t, c.AppendSurface(1, SceneForeground))
	err := c.AppendSurface(1, SceneForeground)
	require.Error(t, err)
}

func TestController_RemoveSurfaceIsIdempotent(t *testing.T) {
	c := newTestController()
	require.NoError(t, c.Init(media.AudioTrack{Codec: media.CodecNone}, media.VideoTrack{Codec: media.CodecH264}, false))
	require.NoError(t, c.AppendSurface(1, SceneForeground))
	c.RemoveSurface(1)
	c.RemoveSurface(1) // no-op, must not panic
}

func TestController_StartStopRelease(t *testing.T) {
	c := newTestController()
	require.NoError(t, c.Init(media.AudioTrack{Codec: media.CodecAAC}, media.VideoTrack{Codec: media.CodecH264}, false))
	require.NoError(t, c.AppendSurface(1, SceneForeground))
	require.NoError(t, c.Start())
	c.Stop()
	c.Release()
}
