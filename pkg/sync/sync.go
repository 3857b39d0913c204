// Package sync implements the playback controller's A/V sync policy
// (C8): an audio-clock-anchored video pacer with forced drop and
// sleep-to-wait thresholds, falling back to wall-clock pacing when no
// audio track is negotiated. Re-themed from the teacher's RTP output
// pacer (pkg/bridge/pacer.go) — "pace outbound send timing against an
// RTP timestamp delta" becomes "pace decoded video render timing
// against the audio decoder's live PTS clock."
package sync

import (
	"time"
)

// AudioClock is satisfied by the audio decoder runner: the last
// played PTS minus audio output latency, or false if nothing has
// played yet.
type AudioClock interface {
	GetDecoderTimestamp() (us int64, valid bool)
}

// Decision is the pacer's verdict for one video frame.
type Decision struct {
	Drop    bool
	WaitFor time.Duration
}

// Sync holds the thresholds and wall-clock fallback state for one
// video track. threshold_drop/threshold_wait are in tens of
// milliseconds per the design notes; frameInterval bounds both the
// wall-clock fallback step and the maximum single sleep, mirroring
// the teacher pacer's maxPacketDelay cap on runaway waits.
type Sync struct {
	audio AudioClock

	thresholdDrop time.Duration
	thresholdWait time.Duration
	frameInterval time.Duration

	firstFrame   bool
	lastSendAt   time.Time
	lastFramePTS int64
}

// New constructs a Sync. frameInterval is the nominal inter-frame
// duration (1/fps) used both as the wall-clock fallback step and as
// the cap on any single sleep-to-wait.
func New(audio AudioClock, thresholdDrop, thresholdWait, frameInterval time.Duration) *Sync {
	return &Sync{
		audio:         audio,
		thresholdDrop: thresholdDrop,
		thresholdWait: thresholdWait,
		frameInterval: frameInterval,
		firstFrame:    true,
	}
}

// Decide returns the pacing decision for a video frame with
// presentation time ptsUs (microseconds). The first frame is always
// sent immediately to establish the timeline.
func (s *Sync) Decide(ptsUs int64) Decision {
	if s.firstFrame {
		s.firstFrame = false
		s.lastSendAt = time.Now()
		s.lastFramePTS = ptsUs
		return Decision{}
	}

	tAudio, ok := s.audio.GetDecoderTimestamp()
	if !ok {
		return s.wallClockFallback(ptsUs)
	}

	delta := time.Duration(ptsUs-tAudio) * time.Microsecond
	s.lastFramePTS = ptsUs

	if delta < -s.thresholdDrop {
		return Decision{Drop: true}
	}
	if delta > s.thresholdWait {
		wait := delta - s.thresholdWait
		if wait > s.frameInterval {
			wait = s.frameInterval
		}
		return Decision{WaitFor: wait}
	}
	return Decision{}
}

// wallClockFallback paces purely by elapsed wall time against the
// nominal frame interval, used whenever no audio track exists to
// anchor the master clock (§4.6).
func (s *Sync) wallClockFallback(ptsUs int64) Decision {
	now := time.Now()
	elapsed := now.Sub(s.lastSendAt)
	s.lastSendAt = now
	s.lastFramePTS = ptsUs

	if elapsed >= s.frameInterval {
		return Decision{}
	}
	wait := s.frameInterval - elapsed
	return Decision{WaitFor: wait}
}

// Wait blocks for d.WaitFor and never returns early; a caller that
// needs cancellation selects on its own stop channel instead. Kept as
// a thin helper so render loops don't repeat time.Sleep(d.WaitFor)
// everywhere.
func Wait(d Decision) {
	if d.WaitFor > 0 {
		time.Sleep(d.WaitFor)
	}
}
