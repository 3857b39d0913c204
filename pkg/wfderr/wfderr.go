// Package wfderr declares the sentinel errors surfaced across package
// boundaries, so callers match with errors.Is/errors.As instead of strings.
package wfderr

import "errors"

var (
	// ErrConnectionFailure is returned once the session's TCP connect
	// retry budget (5 attempts, 200ms spacing) is exhausted.
	ErrConnectionFailure = errors.New("wfd: connection failure")

	// ErrProtocolTimeout means an expected RTSP response or trigger
	// never arrived within its armed timer.
	ErrProtocolTimeout = errors.New("wfd: protocol interaction timeout")

	// ErrNetworkError covers read failures and keep-alive expiry once
	// a session is PLAYING.
	ErrNetworkError = errors.New("wfd: network error")

	// ErrIntakeTimeout names the dispatcher's sustained-overflow
	// condition. Nothing returns it: that condition reaches the agent
	// as an events.TypeWriteWarning event from channel.OnWriteTimeout.
	ErrIntakeTimeout = errors.New("wfd: intake timeout")

	// ErrSessionInterrupted is surfaced exactly once when a user/stop
	// interrupt preempts a connect retry or in-flight handshake.
	ErrSessionInterrupted = errors.New("wfd: session interrupted")

	// ErrServiceError covers a non-200 status on an in-flight handshake
	// response (M2/M6/M7/common) — the generic NotifyServiceError path,
	// distinct from ErrSessionInterrupted's dedicated interrupt flag.
	ErrServiceError = errors.New("wfd: service error")

	// ErrProsumerFailure covers producer/consumer create, start, stop,
	// and destroy failures raised by the media channel.
	ErrProsumerFailure = errors.New("wfd: prosumer failure")

	// ErrDecodeFormat covers decoder init/configure failures.
	ErrDecodeFormat = errors.New("wfd: decode format error")

	// ErrIncompleteMessage names the original codec's "buffer does not
	// yet hold a full message" state. rtsp.ReadMessage never returns
	// it: it blocks on its bufio.Reader until a whole message is in.
	ErrIncompleteMessage = errors.New("wfd: incomplete rtsp message")

	// ErrMalformedMessage names an unparseable RTSP message.
	// rtsp.ReadMessage does not wrap it; it reports a malformed start
	// line with its own error, which ends the session's read loop.
	ErrMalformedMessage = errors.New("wfd: malformed rtsp message")
)
