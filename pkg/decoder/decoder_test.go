package decoder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethan/wfd-sink/pkg/media"
)

type fakeBackend struct{}

func (fakeBackend) Configure(media.AudioTrack, media.VideoTrack) error { return nil }
func (fakeBackend) Start() error                                      { return nil }
func (fakeBackend) Decode(_ context.Context, pts int64, data []byte) (DecodedSample, error) {
	return DecodedSample{PTS: pts, Data: data}, nil
}
func (fakeBackend) Stop() error { return nil }
func (fakeBackend) Release()    {}

type fakeAudioRenderer struct {
	latency time.Duration
	played  chan DecodedSample
}

func (f *fakeAudioRenderer) Render(s DecodedSample) error { f.played <- s; return nil }
func (f *fakeAudioRenderer) SetVolume(float32) error      { return nil }
func (f *fakeAudioRenderer) Latency() time.Duration       { return f.latency }

type fakeVideoRenderer struct {
	rendered chan media.Frame
}

func (f *fakeVideoRenderer) Render(fr media.Frame) error { f.rendered <- fr; return nil }

func TestAudioRunner_ClockInvalidUntilFirstSample(t *testing.T) {
	renderer := &fakeAudioRenderer{played: make(chan DecodedSample, 4)}
	r, err := NewAudioRunner(Options{
		AudioTrack: media.AudioTrack{Codec: media.CodecAAC, SampleRate: 48000, Channels: 2},
		Backend:    fakeBackend{},
		AudioSink:  renderer,
	})
	require.NoError(t, err)
	require.NoError(t, r.Init(context.Background()))
	require.NoError(t, r.Start())
	defer r.Release()
	defer r.Stop()

	_, valid := r.GetDecoderTimestamp()
	require.False(t, valid)

	r.OnFrame(media.Frame{Codec: media.CodecAAC, Track: media.TrackAudio, PTS: 1000, Payload: []byte{1, 2, 3}})

	select {
	case <-renderer.played:
	case <-time.After(time.Second):
		t.Fatal("frame never reached renderer")
	}

	require.Eventually(t, func() bool {
		_, valid := r.GetDecoderTimestamp()
		return valid
	}, time.Second, 5*time.Millisecond)
}

func TestAudioRunner_DropOneFrameSkipsNextRender(t *testing.T) {
	renderer := &fakeAudioRenderer{played: make(chan DecodedSample, 4)}
	r, err := NewAudioRunner(Options{
		AudioTrack: media.AudioTrack{Codec: media.CodecAAC},
		Backend:    fakeBackend{},
		AudioSink:  renderer,
	})
	require.NoError(t, err)
	require.NoError(t, r.Init(context.Background()))
	require.NoError(t, r.Start())
	defer r.Release()
	defer r.Stop()

	r.DropOneFrame()
	r.OnFrame(media.Frame{Codec: media.CodecAAC, PTS: 1})
	r.OnFrame(media.Frame{Codec: media.CodecAAC, PTS: 2})

	select {
	case s := <-renderer.played:
		require.Equal(t, int64(2), s.PTS)
	case <-time.After(time.Second):
		t.Fatal("expected second frame to render after the first was dropped")
	}
}

func TestAudioRunner_OnFrameDropsAllQueuedWhenFull(t *testing.T) {
	renderer := &fakeAudioRenderer{played: make(chan DecodedSample, 4)}
	r, err := NewAudioRunner(Options{
		AudioTrack: media.AudioTrack{Codec: media.CodecAAC},
		Backend:    fakeBackend{},
		AudioSink:  renderer,
	})
	require.NoError(t, err)
	require.NoError(t, r.Init(context.Background()))
	// Pump deliberately not started: nothing drains r.input, so the
	// queue fills to capacity and the next OnFrame must hit the
	// bulk-drop path rather than blocking.
	defer r.Release()

	for i := 0; i < maxRenderQueueSize; i++ {
		r.OnFrame(media.Frame{Codec: media.CodecAAC, PTS: int64(i)})
	}
	require.Len(t, r.input, maxRenderQueueSize)

	r.OnFrame(media.Frame{Codec: media.CodecAAC, PTS: 999})

	require.Len(t, r.input, 1, "a full queue must be dropped wholesale, not trimmed by one")
	queued := <-r.input
	require.Equal(t, int64(999), queued.PTS)
}

func TestVideoRunner_KeyFrameOnlyModeDropsNonKeyFrames(t *testing.T) {
	renderer := &fakeVideoRenderer{rendered: make(chan media.Frame, 4)}
	r, err := NewVideoRunner(Options{
		VideoTrack: media.VideoTrack{Codec: media.CodecH264, Width: 1920, Height: 1080},
		Backend:    fakeBackend{},
		VideoSink:  renderer,
	})
	require.NoError(t, err)
	require.NoError(t, r.Init(context.Background()))
	require.NoError(t, r.Start())
	defer r.Release()
	defer r.Stop()

	r.SetKeyMode(true)
	r.OnFrame(media.Frame{Codec: media.CodecH264, KeyFrame: false, PTS: 1})
	r.OnFrame(media.Frame{Codec: media.CodecH264, KeyFrame: true, PTS: 2})

	select {
	case f := <-renderer.rendered:
		require.Equal(t, int64(2), f.PTS)
	case <-time.After(time.Second):
		t.Fatal("expected only the key frame to render")
	}

	select {
	case f := <-renderer.rendered:
		t.Fatalf("unexpected second frame rendered: %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}
