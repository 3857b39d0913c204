package channel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethan/wfd-sink/pkg/events"
)

type fakeDispatcher struct {
	stopped, flushed, released bool
}

func (d *fakeDispatcher) StopDispatch()      { d.stopped = true }
func (d *fakeDispatcher) FlushBuffer()       { d.flushed = true }
func (d *fakeDispatcher) ReleaseAllReceiver() { d.released = true }

func TestChannel_ProsumerNotifyTranslation(t *testing.T) {
	var got []events.Event
	ch := New(1, &fakeDispatcher{}, func(e events.Event) { got = append(got, e) }, nil)
	ch.SetConsumer(7, 42)

	ch.OnConsumerNotify(events.ProsumerStatusMsg{ProsumerID: 7, Status: events.ProsumerNotifyStartSuccess})

	require.Len(t, got, 1)
	require.Equal(t, events.TypeProsumerStart, got[0].Type)
	require.Equal(t, uint32(42), got[0].DstID)
}

func TestChannel_WriteTimeoutEmitsWriteWarning(t *testing.T) {
	var got []events.Event
	ch := New(1, &fakeDispatcher{}, func(e events.Event) { got = append(got, e) }, nil)
	ch.SetConsumer(7, 42)

	ch.OnWriteTimeout()

	require.Len(t, got, 1)
	require.Equal(t, events.TypeWriteWarning, got[0].Type)
}

func TestChannel_ControllerNotifyTranslation(t *testing.T) {
	var got []events.Event
	ch := New(1, &fakeDispatcher{}, func(e events.Event) { got = append(got, e) }, nil)

	ch.OnMediaControllerNotify(events.ControllerStatusMsg{Status: events.ControllerNotifyDecoderDied})

	require.Len(t, got, 1)
	require.Equal(t, events.TypeDecoderDied, got[0].Type)
}

func TestChannel_CloseTearsDownDispatcher(t *testing.T) {
	d := &fakeDispatcher{}
	ch := New(1, d, nil, nil)
	ch.Close()

	require.True(t, d.stopped)
	require.True(t, d.flushed)
	require.True(t, d.released)
}

func TestChannel_PrivateEventBypassesAgentTranslation(t *testing.T) {
	var agentEvents, rawEvents []events.Event
	ch := New(1, &fakeDispatcher{}, func(e events.Event) { agentEvents = append(agentEvents, e) },
		func(e events.Event) { rawEvents = append(rawEvents, e) })

	ch.OnProducerNotify(events.ProsumerStatusMsg{Status: events.ProsumerNotifyPrivateEvent, Payload: "x"})

	require.Empty(t, agentEvents)
	require.Len(t, rawEvents, 1)
}
