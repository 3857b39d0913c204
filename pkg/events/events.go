// Package events defines the sink's upward agent-event surface: the
// typed notifications a media channel sends to the surrounding
// service layer (session, diagnostics) as prosumer and playback
// state changes. Grounded on
// original_source/services/common/event_comm.h's ProsumerNotifyStatus/
// PlayConntrollerNotifyStatus enums and MediaChannel's
// SendAgentEvent translation switch.
package events

// Type enumerates every outward agent event this sink can raise.
type Type int

const (
	TypeUnknown Type = iota

	// Prosumer (producer/consumer) lifecycle, mirrored from
	// ProsumerNotifyStatus.
	TypeProsumerCreate
	TypeProsumerStart
	TypeProsumerStop
	TypeProsumerPause
	TypeProsumerResume
	TypeProsumerDestroy
	TypeProsumerError
	TypeProsumerInit

	// Dispatcher/channel-level conditions.
	TypeWriteWarning // ERR_INTAKE_TIMEOUT escalated from the dispatcher

	// Playback controller notifications, mirrored from
	// PlayConntrollerNotifyStatus.
	TypeAccelerationDone
	TypeDecoderDied
	TypeKeyModeStart
	TypeKeyModeStop

	// Session-level events (§6 upward event API), raised directly by
	// pkg/session rather than translated through a media channel.
	TypeRTSPPlayed
	TypeRTSPTeardown
	TypeRequestIDR
	TypeNotifyIsPCSource

	// TypeSessionInterrupted fires exactly once when Session.Interrupt
	// preempts a connect retry or an in-flight handshake wait, in place
	// of whatever error that wait would otherwise have raised.
	TypeSessionInterrupted
)

func (t Type) String() string {
	switch t {
	case TypeProsumerCreate:
		return "PROSUMER_CREATE"
	case TypeProsumerStart:
		return "PROSUMER_START"
	case TypeProsumerStop:
		return "PROSUMER_STOP"
	case TypeProsumerPause:
		return "PROSUMER_PAUSE"
	case TypeProsumerResume:
		return "PROSUMER_RESUME"
	case TypeProsumerDestroy:
		return "PROSUMER_DESTROY"
	case TypeProsumerError:
		return "PROSUMER_ERROR"
	case TypeProsumerInit:
		return "PROSUMER_INIT"
	case TypeWriteWarning:
		return "STATE_WRITE_WARNING"
	case TypeAccelerationDone:
		return "ACCELERATION_DONE"
	case TypeDecoderDied:
		return "DECODER_DIED"
	case TypeKeyModeStart:
		return "KEYMODE_START"
	case TypeKeyModeStop:
		return "KEYMODE_STOP"
	case TypeRTSPPlayed:
		return "RTSP_PLAYED"
	case TypeRTSPTeardown:
		return "RTSP_TEARDOWN"
	case TypeRequestIDR:
		return "REQUEST_IDR"
	case TypeNotifyIsPCSource:
		return "NOTIFY_IS_PC_SOURCE"
	case TypeSessionInterrupted:
		return "STATE_SESSION_INTERRUPTED"
	default:
		return "UNKNOWN"
	}
}

// InvalidID marks an absent channel/prosumer identifier.
const InvalidID uint32 = 0

// Event is one outward notification: {srcId, dstId, fromMgr, toMgr,
// type, requestId, errorCode} plus a type-specific payload, exactly
// the wire shape described in §6's upward event API.
type Event struct {
	SrcID     uint32
	DstID     uint32
	FromMgr   string
	ToMgr     string
	Type      Type
	RequestID uint32
	ErrorCode int32
	Payload   any
}

// ProsumerNotifyStatus mirrors the producer/consumer lifecycle status
// a prosumer reports to its owning media channel.
type ProsumerNotifyStatus int

const (
	ProsumerNotifyInitSuccess ProsumerNotifyStatus = iota
	ProsumerNotifyStartSuccess
	ProsumerNotifyStopSuccess
	ProsumerNotifyPauseSuccess
	ProsumerNotifyResumeSuccess
	ProsumerNotifyDestroySuccess
	ProsumerNotifyError
	ProsumerNotifyPrivateEvent
)

// ControllerNotifyStatus mirrors the playback controller's upward
// notifications.
type ControllerNotifyStatus int

const (
	ControllerNotifyAcceleration ControllerNotifyStatus = iota
	ControllerNotifyDecoderDied
	ControllerNotifyKeyModeStart
	ControllerNotifyKeyModeStop
)

// ProsumerStatusMsg is the status payload a producer or consumer
// hands to its media channel, matching the original's
// ProsumerStatusMsg::Ptr fields relevant to this rendition.
type ProsumerStatusMsg struct {
	ProsumerID uint32
	AgentID    uint32
	Status     ProsumerNotifyStatus
	ErrorCode  int32
	Payload    any
}

// ControllerStatusMsg is the playback controller's equivalent
// upward-notification payload.
type ControllerStatusMsg struct {
	SurfaceID uint64
	Status    ControllerNotifyStatus
	ErrorCode int32
}
