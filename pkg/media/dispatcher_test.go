package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func sps() Frame {
	return Frame{Codec: CodecH264, Track: TrackVideo, Payload: []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0xAA}}
}

func pps() Frame {
	return Frame{Codec: CodecH264, Track: TrackVideo, Payload: []byte{0x00, 0x00, 0x00, 0x01, 0x68, 0xBB}}
}

func slice(key bool) Frame {
	naluType := byte(0x01)
	if key {
		naluType = 0x05
	}
	return Frame{Codec: CodecH264, Track: TrackVideo, KeyFrame: key, Payload: []byte{0x00, 0x00, 0x00, 0x01, naluType, 0xCC}}
}

func TestDispatcher_LateJoinSeesSPSPPSAnchor(t *testing.T) {
	d := NewDispatcher(500, 64, 0)

	d.InputData(NewMediaData(sps()))
	d.InputData(NewMediaData(pps()))
	d.InputData(NewMediaData(slice(false)))
	d.InputData(NewMediaData(slice(true))) // IDR
	d.InputData(NewMediaData(slice(false)))
	d.InputData(NewMediaData(slice(false)))

	id := d.AttachReceiver()

	var observed []byte
	for i := 0; i < 5; i++ {
		d.RequestRead(id, TrackVideo, func(r ReadResult) {
			require.False(t, r.Stopped)
			payload := r.Data.Frame.Payload
			require.Equal(t, []byte{0x00, 0x00, 0x00, 0x01}, payload[:4],
				"synthetic and real Frame payloads must share Annex-B start-code framing")
			// last byte identifies the NAL
			observed = append(observed, payload[len(payload)-1])
		})
	}

	require.Equal(t, []byte{0xAA, 0xBB, 0xCC, 0xCC, 0xCC}, observed)
}

func TestDispatcher_Backpressure(t *testing.T) {
	d := NewDispatcher(4, 2, 0)

	for i := 0; i < 6; i++ {
		d.InputData(NewMediaData(slice(false)))
		stats := d.Stats()
		require.LessOrEqual(t, stats.VideoLen, stats.Capacity+stats.CapacityStep)
	}

	stats := d.Stats()
	require.LessOrEqual(t, stats.VideoLen, 4)
}

func TestDispatcher_IntakeTimeoutFires(t *testing.T) {
	d := NewDispatcher(1, 4, 10*time.Millisecond)
	fired := make(chan struct{}, 1)
	d.OnWriteTimeout(func() { fired <- struct{}{} })

	// Only key frames: no non-key video to evict, no audio to evict,
	// so occupancy stays pinned above capacity until the hard bound.
	d.InputData(NewMediaData(slice(true)))
	d.InputData(NewMediaData(slice(true)))
	time.Sleep(20 * time.Millisecond)
	d.InputData(NewMediaData(slice(true)))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected write-timeout callback to fire")
	}
}

func TestDispatcher_NotifyReadStopWakesReaders(t *testing.T) {
	d := NewDispatcher(500, 64, 0)
	id := d.AttachReceiver()

	done := make(chan bool, 1)
	go d.RequestRead(id, TrackVideo, func(r ReadResult) { done <- r.Stopped })

	time.Sleep(10 * time.Millisecond)
	d.NotifyReadStop()

	select {
	case stopped := <-done:
		require.True(t, stopped)
	case <-time.After(time.Second):
		t.Fatal("RequestRead did not wake on NotifyReadStop")
	}
}
