// Package channel implements the media channel (C10): the per-session
// event bus that sits between the dispatcher/controller and the
// outward agent-event surface, translating prosumer and playback
// controller status into the typed events the session layer and
// diagnostics surface observe. Grounded on
// original_source/services/mediachannel/media_channel.cpp's
// OnProducerNotify/OnConsumerNotify/OnMediaControllerNotify
// translation switches and base_consumer.cpp's consumer-id bookkeeping.
package channel

import (
	"sync"

	"github.com/ethan/wfd-sink/pkg/events"
)

// Dispatcher is the subset of *media.Dispatcher the channel manages
// for lifecycle purposes (flush/release on teardown).
type Dispatcher interface {
	StopDispatch()
	FlushBuffer()
	ReleaseAllReceiver()
}

// Channel is one media channel: one dispatcher it manages for
// teardown and one upward event sink. It holds no reference to the
// playback controller.
type Channel struct {
	id uint32

	mu        sync.Mutex
	dispatcher Dispatcher
	sinkAgentID uint32
	consumerID  uint32

	sendAgentEvent func(events.Event)
	sendEvent      func(events.Event) // internal/private-event path, bypasses agent translation
}

// New constructs a Channel bound to id, a dispatcher to own, and the
// callback used to emit outward agent events.
func New(id uint32, dispatcher Dispatcher, sendAgentEvent, sendEvent func(events.Event)) *Channel {
	return &Channel{
		id:             id,
		dispatcher:     dispatcher,
		sendAgentEvent: sendAgentEvent,
		sendEvent:      sendEvent,
	}
}

// SetConsumer records which consumer (decoder pump / render path)
// owns the sink-side agent identity for this channel, used to stamp
// outward events and OnWriteTimeout.
func (c *Channel) SetConsumer(consumerID, sinkAgentID uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consumerID = consumerID
	c.sinkAgentID = sinkAgentID
}

// GetSinkAgentID returns the owning consumer's sink agent id, or
// events.InvalidID if no consumer has registered yet.
func (c *Channel) GetSinkAgentID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinkAgentID
}

// OnWriteTimeout is the dispatcher's INTAKE_TIMEOUT escalation
// callback: it raises a write-warning agent event carrying the
// consumer id that owns this channel.
func (c *Channel) OnWriteTimeout() {
	c.mu.Lock()
	msg := events.ProsumerStatusMsg{ProsumerID: c.consumerID, AgentID: c.sinkAgentID}
	c.mu.Unlock()
	c.emit(events.TypeWriteWarning, msg)
}

// OnProducerNotify translates a producer's lifecycle status into an
// outward agent event. The channel keeps no producer registry, so
// Destroy is translated like any other status and unregisters nothing.
func (c *Channel) OnProducerNotify(msg events.ProsumerStatusMsg) {
	c.translateProsumerNotify(msg)
}

// OnConsumerNotify is the symmetric path for consumer lifecycle
// status.
func (c *Channel) OnConsumerNotify(msg events.ProsumerStatusMsg) {
	c.translateProsumerNotify(msg)
}

func (c *Channel) translateProsumerNotify(msg events.ProsumerStatusMsg) {
	switch msg.Status {
	case events.ProsumerNotifyInitSuccess:
		c.emit(events.TypeProsumerCreate, msg)
	case events.ProsumerNotifyStartSuccess:
		c.emit(events.TypeProsumerStart, msg)
	case events.ProsumerNotifyStopSuccess:
		c.emit(events.TypeProsumerStop, msg)
	case events.ProsumerNotifyPauseSuccess:
		c.emit(events.TypeProsumerPause, msg)
	case events.ProsumerNotifyResumeSuccess:
		c.emit(events.TypeProsumerResume, msg)
	case events.ProsumerNotifyDestroySuccess:
		c.emit(events.TypeProsumerDestroy, msg)
	case events.ProsumerNotifyError:
		c.emit(events.TypeProsumerError, msg)
	case events.ProsumerNotifyPrivateEvent:
		if c.sendEvent != nil {
			c.sendEvent(events.Event{SrcID: c.id, Type: events.TypeUnknown, Payload: msg.Payload})
		}
	}
}

// OnMediaControllerNotify translates playback controller status into
// an outward agent event.
func (c *Channel) OnMediaControllerNotify(msg events.ControllerStatusMsg) {
	switch msg.Status {
	case events.ControllerNotifyAcceleration:
		c.emit(events.TypeAccelerationDone, msg)
	case events.ControllerNotifyDecoderDied:
		c.emit(events.TypeDecoderDied, msg)
	case events.ControllerNotifyKeyModeStart:
		c.emit(events.TypeKeyModeStart, msg)
	case events.ControllerNotifyKeyModeStop:
		c.emit(events.TypeKeyModeStop, msg)
	}
}

func (c *Channel) emit(t events.Type, payload any) {
	if c.sendAgentEvent == nil {
		return
	}
	c.mu.Lock()
	sinkAgentID := c.sinkAgentID
	c.mu.Unlock()
	c.sendAgentEvent(events.Event{
		SrcID:   c.id,
		DstID:   sinkAgentID,
		Type:    t,
		Payload: payload,
	})
}

// Close tears down the dispatcher in the original's destructor order:
// stop, flush, release all receivers.
func (c *Channel) Close() {
	if c.dispatcher == nil {
		return
	}
	c.dispatcher.StopDispatch()
	c.dispatcher.FlushBuffer()
	c.dispatcher.ReleaseAllReceiver()
}
