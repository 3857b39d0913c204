package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	us    int64
	valid bool
}

func (c fixedClock) GetDecoderTimestamp() (int64, bool) { return c.us, c.valid }

func TestSync_FirstFrameNeverWaitsOrDrops(t *testing.T) {
	s := New(fixedClock{valid: false}, 40*time.Millisecond, 40*time.Millisecond, 33*time.Millisecond)
	d := s.Decide(0)
	require.False(t, d.Drop)
	require.Zero(t, d.WaitFor)
}

func TestSync_DropsWhenFarBehindAudio(t *testing.T) {
	s := New(fixedClock{us: 1_000_000, valid: true}, 40*time.Millisecond, 40*time.Millisecond, 33*time.Millisecond)
	s.Decide(1_000_000) // establishes timeline

	d := s.Decide(900_000) // 100ms behind audio, beyond threshold_drop
	require.True(t, d.Drop)
}

func TestSync_WaitsWhenAheadOfAudio(t *testing.T) {
	s := New(fixedClock{us: 1_000_000, valid: true}, 40*time.Millisecond, 40*time.Millisecond, 33*time.Millisecond)
	s.Decide(1_000_000)

	d := s.Decide(1_100_000) // 100ms ahead, beyond threshold_wait, capped at frameInterval
	require.False(t, d.Drop)
	require.Equal(t, 33*time.Millisecond, d.WaitFor)
}

func TestSync_WithinThresholdsNeitherDropsNorWaits(t *testing.T) {
	s := New(fixedClock{us: 1_000_000, valid: true}, 40*time.Millisecond, 40*time.Millisecond, 33*time.Millisecond)
	s.Decide(1_000_000)

	d := s.Decide(1_010_000) // 10ms ahead, within both thresholds
	require.False(t, d.Drop)
	require.Zero(t, d.WaitFor)
}

func TestSync_FallsBackToWallClockWithNoAudioTrack(t *testing.T) {
	s := New(fixedClock{valid: false}, 40*time.Millisecond, 40*time.Millisecond, 20*time.Millisecond)
	s.Decide(0)

	d := s.Decide(1)
	require.False(t, d.Drop)
	require.Greater(t, d.WaitFor, time.Duration(0))
	require.LessOrEqual(t, d.WaitFor, 20*time.Millisecond)
}
