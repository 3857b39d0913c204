package media

import (
	"sync"
	"time"

	"github.com/ethan/wfd-sink/pkg/nal"
)

// ReceiverID names a registered receiver. Dispatcher methods that take
// a ReceiverID never hold a pointer back to the receiver itself (see
// Design Notes §9 on self-referencing shared pointers) — the caller
// owns its receiver value and only ever hands the dispatcher this id.
type ReceiverID uint64

// ReadResult is handed to a RequestRead callback. Stopped is set once
// NotifyReadStop has been called; Data is the zero value in that case.
type ReadResult struct {
	Data    MediaData
	Stopped bool
}

// DispatcherStats is a snapshot of dispatcher occupancy, used by the
// diagnostics server and by tests asserting P3.
type DispatcherStats struct {
	VideoLen      int
	AudioLen      int
	Capacity      int
	CapacityStep  int
	IntakeTimeout bool
}

type receiverState struct {
	videoCursor uint64 // next video writeIndex this receiver has not yet consumed
	audioCursor uint64
	pendingSPS  []byte // synthetic SPS to hand out before videoCursor advances
	pendingPPS  []byte
}

// Dispatcher is the bounded, single-producer/multi-consumer buffer
// sitting between the ingest pipeline and the decoder runners. It is
// passive: every method runs on its caller's goroutine, serialized by
// mu, matching the "dispatcher has no thread of its own" scheduling
// model.
type Dispatcher struct {
	mu   sync.Mutex
	cond *sync.Cond

	capacity     int
	capacityStep int
	writeTimeout time.Duration

	videoLog    []videoEntry
	audioLog    []audioEntry
	videoBase   uint64 // writeIndex of videoLog[0]
	audioBase   uint64
	videoWrites uint64 // next writeIndex to assign
	audioWrites uint64

	spsCache []byte
	ppsCache []byte

	receivers map[ReceiverID]*receiverState
	nextID    ReceiverID

	stopped       bool
	overflowSince time.Time
	onWriteTimeout func()
	writeTimeoutFired bool // callback already fired in the current overflow episode
}

type videoEntry struct {
	writeIndex uint64
	data       MediaData
}

type audioEntry struct {
	writeIndex uint64
	data       MediaData
}

// NewDispatcher builds a Dispatcher with the given capacity and
// transient-overload increment (P3's bound is capacity+capacityStep).
func NewDispatcher(capacity, capacityStep int, writeTimeout time.Duration) *Dispatcher {
	if capacity <= 0 {
		capacity = 500
	}
	d := &Dispatcher{
		capacity:     capacity,
		capacityStep: capacityStep,
		writeTimeout: writeTimeout,
		receivers:    make(map[ReceiverID]*receiverState),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// OnWriteTimeout registers the callback invoked when sustained
// overflow persists past the configured write-timeout, surfaced
// upward as ERR_INTAKE_TIMEOUT.
func (d *Dispatcher) OnWriteTimeout(cb func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onWriteTimeout = cb
}

// AttachReceiver registers a new receiver and returns its id. Its
// video cursor is positioned just before the most recent key frame
// (with cached SPS/PPS scheduled to precede it), or at the tail if no
// key frame has been observed yet — satisfying P2.
func (d *Dispatcher) AttachReceiver() ReceiverID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID

	rs := &receiverState{
		audioCursor: d.audioWrites, // audio has no anchor semantics; start at tail
	}

	if anchor, ok := d.latestKeyFrameIndex(); ok {
		rs.videoCursor = anchor
		if len(d.spsCache) > 0 {
			rs.pendingSPS = append([]byte(nil), d.spsCache...)
		}
		if len(d.ppsCache) > 0 {
			rs.pendingPPS = append([]byte(nil), d.ppsCache...)
		}
	} else {
		rs.videoCursor = d.videoWrites
	}

	d.receivers[id] = rs
	return id
}

// DetachReceiver removes a receiver. Receivers hold only cursors into
// the shared logs, so detaching frees no entries; entries leave the
// logs only through capacity enforcement or FlushBuffer.
func (d *Dispatcher) DetachReceiver(id ReceiverID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.receivers, id)
	d.cond.Broadcast()
}

// latestKeyFrameIndex returns the writeIndex of the most recent video
// key frame still resident in videoLog.
func (d *Dispatcher) latestKeyFrameIndex() (uint64, bool) {
	for i := len(d.videoLog) - 1; i >= 0; i-- {
		if d.videoLog[i].data.KeyFrame {
			return d.videoLog[i].writeIndex, true
		}
	}
	return 0, false
}

// InputData appends a media datum produced by the ingest pipeline.
func (d *Dispatcher) InputData(md MediaData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if md.MediaType == TrackVideo {
		d.updateSPSPPSCache(md)
		idx := d.videoWrites
		d.videoWrites++
		d.videoLog = append(d.videoLog, videoEntry{writeIndex: idx, data: md})
	} else {
		idx := d.audioWrites
		d.audioWrites++
		d.audioLog = append(d.audioLog, audioEntry{writeIndex: idx, data: md})
	}

	d.enforceCapacity()
	d.cond.Broadcast()
}

// updateSPSPPSCache replaces the cached SPS/PPS bytes only when the
// NAL payload actually differs from the cache. No anchor is recorded
// here: AttachReceiver finds a late joiner's anchor by scanning
// videoLog for the newest resident key frame.
func (d *Dispatcher) updateSPSPPSCache(md MediaData) {
	payload := md.Frame.Payload
	units := nal.Split(payload)
	if len(units) == 0 {
		return
	}
	u := units[0]
	switch u.Type(payload) {
	case nal.TypeSPS:
		body := u.Bytes(payload)
		if !bytesEqual(d.spsCache, body) {
			d.spsCache = append([]byte(nil), body...)
		}
	case nal.TypePPS:
		body := u.Bytes(payload)
		if !bytesEqual(d.ppsCache, body) {
			d.ppsCache = append([]byte(nil), body...)
		}
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// enforceCapacity drops entries per the oldest-non-key-video-first,
// then oldest-audio backpressure policy (§4.4), bounding total size by
// capacity+capacityStep (P3). Must be called with mu held.
func (d *Dispatcher) enforceCapacity() {
	total := len(d.videoLog) + len(d.audioLog)
	if total <= d.capacity {
		d.overflowSince = time.Time{}
		d.writeTimeoutFired = false
		return
	}

	progressed := false
	for total > d.capacity {
		if d.dropOldestNonKeyVideo() {
			progressed = true
		} else if d.dropOldestAudio() {
			progressed = true
		} else if total > d.capacity+d.capacityStep {
			// Hard bound: forcibly drop the oldest video entry even if
			// it is a key frame, rather than grow without limit.
			if len(d.videoLog) > 0 {
				d.videoLog = d.videoLog[1:]
				progressed = true
			} else if len(d.audioLog) > 0 {
				d.audioLog = d.audioLog[1:]
				progressed = true
			} else {
				break
			}
		} else {
			break
		}
		total = len(d.videoLog) + len(d.audioLog)
	}

	if total > d.capacity {
		if d.overflowSince.IsZero() {
			d.overflowSince = time.Now()
		} else if !progressed && d.writeTimeout > 0 && time.Since(d.overflowSince) > d.writeTimeout {
			if d.onWriteTimeout != nil && !d.writeTimeoutFired {
				d.writeTimeoutFired = true // fire once per sustained-overflow episode
				go d.onWriteTimeout()
			}
		}
	} else {
		d.overflowSince = time.Time{}
		d.writeTimeoutFired = false
	}
}

func (d *Dispatcher) dropOldestNonKeyVideo() bool {
	for i, e := range d.videoLog {
		if !e.data.KeyFrame {
			d.videoLog = append(d.videoLog[:i], d.videoLog[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Dispatcher) dropOldestAudio() bool {
	if len(d.audioLog) == 0 {
		return false
	}
	d.audioLog = d.audioLog[1:]
	return true
}

// RequestRead blocks the caller until a datum of mediaType is
// available at the receiver's cursor, then invokes cb and advances
// the cursor. It returns once cb has been invoked exactly once, or
// immediately with Stopped=true if NotifyReadStop was called.
func (d *Dispatcher) RequestRead(id ReceiverID, mediaType TrackKind, cb func(ReadResult)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		if d.stopped {
			cb(ReadResult{Stopped: true})
			return
		}

		rs, ok := d.receivers[id]
		if !ok {
			cb(ReadResult{Stopped: true})
			return
		}

		if mediaType == TrackVideo {
			if len(rs.pendingSPS) > 0 {
				data := d.syntheticNAL(rs.pendingSPS, nal.TypeSPS)
				rs.pendingSPS = nil
				cb(ReadResult{Data: data})
				return
			}
			if len(rs.pendingPPS) > 0 {
				data := d.syntheticNAL(rs.pendingPPS, nal.TypePPS)
				rs.pendingPPS = nil
				cb(ReadResult{Data: data})
				return
			}
			if e, ok := d.videoAt(rs.videoCursor); ok {
				rs.videoCursor = e.writeIndex + 1
				cb(ReadResult{Data: e.data})
				return
			}
		} else {
			if e, ok := d.audioAt(rs.audioCursor); ok {
				rs.audioCursor = e.writeIndex + 1
				cb(ReadResult{Data: e.data})
				return
			}
		}

		d.cond.Wait()
	}
}

func (d *Dispatcher) syntheticNAL(body []byte, t nal.Type) MediaData {
	// Start-code framed like every other Frame.Payload in the system
	// (ingest's real entries included) — the decoder runners forward
	// this straight to backend.Decode with no reframing step.
	payload := nal.AppendStartCode(nil, body)
	_ = t
	return MediaData{
		Frame:     Frame{Codec: CodecH264, Track: TrackVideo, Payload: payload},
		IsRaw:     true,
		MediaType: TrackVideo,
	}
}

func (d *Dispatcher) videoAt(writeIndex uint64) (videoEntry, bool) {
	if len(d.videoLog) == 0 {
		return videoEntry{}, false
	}
	first := d.videoLog[0].writeIndex
	if writeIndex < first {
		writeIndex = first // entry was dropped by backpressure; skip forward
	}
	idx := writeIndex - first
	if int(idx) >= len(d.videoLog) {
		return videoEntry{}, false
	}
	return d.videoLog[idx], true
}

func (d *Dispatcher) audioAt(writeIndex uint64) (audioEntry, bool) {
	if len(d.audioLog) == 0 {
		return audioEntry{}, false
	}
	first := d.audioLog[0].writeIndex
	if writeIndex < first {
		writeIndex = first
	}
	idx := writeIndex - first
	if int(idx) >= len(d.audioLog) {
		return audioEntry{}, false
	}
	return d.audioLog[idx], true
}

// NotifyReadStop wakes every blocked RequestRead call and makes
// subsequent reads return Stopped=true immediately.
func (d *Dispatcher) NotifyReadStop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.cond.Broadcast()
}

// FlushBuffer discards all buffered data without tearing down
// receivers, leaving SPS/PPS caches intact so late joiners after a
// flush still get a clean key-frame-anchored start.
func (d *Dispatcher) FlushBuffer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.videoLog = nil
	d.audioLog = nil
}

// StopDispatch halts intake and wakes all readers; it is the
// dispatcher half of a component Stop (§5 cancellation discipline).
func (d *Dispatcher) StopDispatch() {
	d.NotifyReadStop()
}

// ReleaseAllReceiver detaches every registered receiver.
func (d *Dispatcher) ReleaseAllReceiver() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.receivers = make(map[ReceiverID]*receiverState)
}

// Stats reports current occupancy for diagnostics and tests.
func (d *Dispatcher) Stats() DispatcherStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DispatcherStats{
		VideoLen:      len(d.videoLog),
		AudioLen:      len(d.audioLog),
		Capacity:      d.capacity,
		CapacityStep:  d.capacityStep,
		IntakeTimeout: !d.overflowSince.IsZero(),
	}
}
