// Package session implements the WFD sink session (C13): the RTSP/WFD
// handshake state machine INIT→READY→PLAYING→STOPPING, connect-retry,
// CSeq-keyed response dispatch, and the M1–M8/M16 message exchange.
// Grounded method-for-method on
// original_source/services/impl/wfd/wfd_sink/wfd_sink_session.cpp.
//
// One simplification falls out of using a persistent bufio.Reader per
// connection instead of the original's monolithic read-buffer-parse
// loop: Content-Length-delimited framing means ReadMessage always
// blocks for exactly one complete message, so the original's
// "INCOMPLETE_MESSAGE stash and restitch on next read" and "trailing
// '$' marks a spliced second message" logic has no Go equivalent to
// carry over — the bufio.Reader already gives each call one message.
package session

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ethan/wfd-sink/pkg/events"
	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/rtsp"
	"github.com/ethan/wfd-sink/pkg/wfderr"
	"github.com/ethan/wfd-sink/pkg/wfdlog"
	"github.com/ethan/wfd-sink/pkg/wfdtimer"
)

// State is the WFD session's handshake/playback state machine.
type State int

const (
	StateInit State = iota
	StateReady
	StatePlaying
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StateStopping:
		return "stopping"
	default:
		return "init"
	}
}

const (
	timeout6s = 6 * time.Second
	timeout5s = 5 * time.Second

	connectRetries = 5
	connectBackoff = 200 * time.Millisecond

	keepAliveTimeoutDefault = 60 * time.Second
	keepAliveTimeoutMin     = 10 * time.Second
)

// ParamsInfo carries the sink's advertised WFD capability vendor
// fields, filled from configuration and echoed verbatim in the M3
// answer when requested.
type ParamsInfo struct {
	ContentProtection    string
	UIBCCapability       string
	ConnectorType        string
	DisplayEDID          string
	MicrosoftRTCP        string
	IDRRequestCapability string
}

// Config bundles the session's negotiation-time parameters.
type Config struct {
	LocalRTPPort     uint16
	VideoFormats     string // wfd_video_formats value this sink advertises
	AudioCodecs      string
	Params           ParamsInfo
	ConnectTimeout   time.Duration
	IDRRequestRate   rate.Limit // SET_PARAMETER wfd_idr_request throttle
	IDRRequestBurst  int
}

type pendingResponse func(*rtsp.Message)

// Session is one WFD sink RTSP session, one per connected source.
type Session struct {
	mu sync.Mutex

	cfg Config

	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex

	cseq             int
	state            State
	connected        bool
	isFirstCast      bool
	isFirstProsumer  bool
	isPCSource       bool
	remoteMac        string
	rtspURL          string
	rtspSession      string
	keepAliveTimeout time.Duration

	audioTrack media.AudioTrack
	videoTrack media.VideoTrack

	responseHandlers map[int]pendingResponse

	timeoutTimer   *wfdtimer.Timer
	keepAliveTimer *wfdtimer.Timer
	idrLimiter     *rate.Limiter

	interrupted bool
	interruptCh chan struct{}

	onEvent func(events.Event)
	logger  *wfdlog.Logger

	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a Session; call Connect to begin the handshake.
func New(cfg Config, onEvent func(events.Event), logger *wfdlog.Logger) *Session {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.IDRRequestRate == 0 {
		cfg.IDRRequestRate = 1
	}
	if cfg.IDRRequestBurst == 0 {
		cfg.IDRRequestBurst = 2
	}
	return &Session{
		cfg:              cfg,
		state:            StateInit,
		isFirstCast:      true,
		isFirstProsumer:  true,
		responseHandlers: make(map[int]pendingResponse),
		timeoutTimer:     wfdtimer.New("wfd-session-timeout"),
		keepAliveTimer:   wfdtimer.New("wfd-session-keepalive"),
		idrLimiter:       rate.NewLimiter(cfg.IDRRequestRate, cfg.IDRRequestBurst),
		interruptCh:      make(chan struct{}),
		onEvent:          onEvent,
		logger:           logger,
		done:             make(chan struct{}),
	}
}

// State returns the session's current handshake/playback state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tracks returns the audio/video descriptors negotiated by the M4
// SET_PARAMETER, and whether this session is acting as a PC source
// (§5's "source also carries a browser" case) — the fields the
// playback controller needs to build its decoder runners once
// StatePlaying is reached.
func (s *Session) Tracks() (media.AudioTrack, media.VideoTrack, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioTrack, s.videoTrack, s.isPCSource
}

// Interrupt preempts an in-flight connect retry or handshake wait and
// fires STATE_SESSION_INTERRUPTED exactly once, in place of whatever
// error that wait would otherwise have raised — the original's
// interrupting_ flag / SESSION_INTERRUPT status path
// (wfd_sink_session.cpp's Connect retry loop and M2/M6/M7 response
// waits), distinct from notifyServiceError's generic non-200-response
// handling. A no-op if already interrupted.
func (s *Session) Interrupt() {
	s.mu.Lock()
	if s.interrupted {
		s.mu.Unlock()
		return
	}
	s.interrupted = true
	close(s.interruptCh)
	inHandshake := s.state != StatePlaying
	s.mu.Unlock()

	if inHandshake {
		// Stop any armed handshake timer so its timeout callback can't
		// also fire a competing ERR_NETWORK_ERROR/ERR_PROTOCOL_TIMEOUT
		// event after the interrupt has already been raised.
		s.timeoutTimer.StopTimer()
		s.keepAliveTimer.StopTimer()
	}
	s.emit(events.TypeSessionInterrupted, nil)
}

func (s *Session) isInterrupted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interrupted
}

// Connect dials the WFD source's RTSP port, retrying up to
// connectRetries times on failure, then arms the handshake timeout
// waiting for the source's M1/OPTIONS and starts the read loop.
func (s *Session) Connect(ctx context.Context, remoteIP string, remotePort uint16) error {
	addr := net.JoinHostPort(remoteIP, fmt.Sprintf("%d", remotePort))

	dialer := &net.Dialer{Timeout: s.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		for i := 0; i < connectRetries; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.interruptCh:
				return wfderr.ErrSessionInterrupted
			case <-time.After(connectBackoff):
			}
			if s.isInterrupted() {
				return wfderr.ErrSessionInterrupted
			}
			conn, err = dialer.DialContext(ctx, "tcp", addr)
			if err == nil {
				break
			}
		}
		if err != nil {
			return fmt.Errorf("session: connect %s: %w", addr, wfderr.ErrConnectionFailure)
		}
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	s.mu.Lock()
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.connected = true
	s.mu.Unlock()

	s.timeoutTimer.SetTimeoutCallback(func() { s.notifyServiceError(wfderr.ErrProtocolTimeout) })
	s.timeoutTimer.StartTimer(timeout6s, "waiting for M1/OPTIONS", nil, false)

	go s.readLoop()
	return nil
}

// Stop sends M8/TEARDOWN (if not already stopping) and marks the
// session disconnected. The read loop exits on its own once the
// connection closes.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		s.sendM8Request()
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		close(s.done)
	})
	s.timeoutTimer.Close()
	s.keepAliveTimer.Close()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// RequestIDR asks the source to generate an IDR frame, throttled by
// cfg.IDRRequestRate so a noisy upward trigger can't flood the link.
func (s *Session) RequestIDR() bool {
	if s.State() != StatePlaying {
		return false
	}
	if !s.idrLimiter.Allow() {
		return false
	}
	return s.sendIDRRequest()
}

func (s *Session) readLoop() {
	for {
		msg, err := rtsp.ReadMessage(s.reader)
		if err != nil {
			s.onClientClose()
			return
		}
		s.handleMessage(msg)
	}
}

func (s *Session) onClientClose() {
	s.mu.Lock()
	wasStopping := s.state == StateStopping
	s.mu.Unlock()
	if !wasStopping {
		s.notifyServiceError(wfderr.ErrNetworkError)
	}
}

func (s *Session) handleMessage(m *rtsp.Message) {
	if !m.IsRequest {
		s.mu.Lock()
		handler, ok := s.responseHandlers[m.CSeq]
		if ok {
			delete(s.responseHandlers, m.CSeq)
		}
		s.mu.Unlock()
		if !ok {
			return
		}
		handler(m)
		return
	}
	s.handleRequest(m)
}

func (s *Session) handleRequest(m *rtsp.Message) {
	switch m.Method {
	case "OPTIONS":
		s.handleM1(m)
	case "GET_PARAMETER":
		if len(m.Body) > 0 {
			s.handleM3(m)
		} else {
			s.handleM16(m)
		}
	case "SET_PARAMETER":
		s.handleSetParamRequest(m)
	}
}

// handleM1 answers the source's initial OPTIONS (M1) and immediately
// issues the sink's own OPTIONS (M2).
func (s *Session) handleM1(m *rtsp.Message) {
	s.timeoutTimer.StopTimer()
	s.mu.Lock()
	s.isFirstCast = true
	s.isFirstProsumer = true
	s.mu.Unlock()

	s.sendM1Response(m.CSeq)
	s.sendM2Request()
}

func (s *Session) sendM1Response(cseq int) bool {
	resp := rtsp.NewResponse(200, "OK", cseq)
	resp.SetHeader("Public", "org.wfa.wfd1.0, SET_PARAMETER, GET_PARAMETER, SETUP, PLAY, TEARDOWN")
	return s.write(resp)
}

func (s *Session) sendM2Request() bool {
	s.mu.Lock()
	s.cseq++
	cseq := s.cseq
	s.responseHandlers[cseq] = s.handleM2Response
	s.mu.Unlock()

	req := rtsp.NewRequest("OPTIONS", "*", cseq)
	req.SetHeader("Require", "org.wfa.wfd1.0")

	s.timeoutTimer.StartTimer(timeout5s, "waiting for M2/OPTIONS response", nil, false)
	if !s.write(req) {
		s.mu.Lock()
		delete(s.responseHandlers, cseq)
		s.mu.Unlock()
		s.timeoutTimer.StopTimer()
		s.notifyServiceError(wfderr.ErrConnectionFailure)
		return false
	}
	return true
}

func (s *Session) handleM2Response(m *rtsp.Message) {
	s.timeoutTimer.StopTimer()
	s.timeoutTimer.StartTimer(timeout6s, "waiting for M3/GET_PARAMETER request", nil, false)

	if m.StatusCode != 200 {
		s.notifyServiceError(wfderr.ErrServiceError)
		return
	}

	if server := m.Header("Server"); containsToken(server, "MSMiracastSource") {
		s.mu.Lock()
		s.isPCSource = true
		s.mu.Unlock()
		s.emit(events.TypeNotifyIsPCSource, nil)
	}
}

func (s *Session) handleM3(m *rtsp.Message) {
	s.timeoutTimer.StopTimer()
	names := rtsp.ParseParameterBody(m.Body)

	pairs := make([][2]string, 0, len(names))
	for _, name := range names {
		if value, ok := s.m3Value(name); ok {
			pairs = append(pairs, [2]string{name, value})
		}
	}

	resp := rtsp.NewResponse(200, "OK", m.CSeq)
	resp.SetHeader("Content-Type", rtsp.ContentTypeParameters)
	resp.Body = rtsp.BuildParameterBody(pairs)

	s.timeoutTimer.StartTimer(timeout6s, "waiting for M4/SET_PARAMETER request", nil, false)
	s.write(resp)
}

// m3Value implements SetM3ResponseParam's switch: only parameters the
// source actually requested are answered.
func (s *Session) m3Value(name string) (string, bool) {
	switch name {
	case rtsp.ParamVideoFormats:
		return s.cfg.VideoFormats, true
	case rtsp.ParamAudioCodecs:
		return s.cfg.AudioCodecs, true
	case rtsp.ParamClientRTPPorts:
		return fmt.Sprintf("RTP/AVP/UDP;unicast %d 0 mode=play", s.cfg.LocalRTPPort), true
	case rtsp.ParamContentProtection:
		return nonEmpty(s.cfg.Params.ContentProtection, "none"), true
	case rtsp.ParamCoupledSink:
		return "00 none", true
	case rtsp.ParamUIBCCapability:
		return nonEmpty(s.cfg.Params.UIBCCapability, "none"), true
	case rtsp.ParamStandbyResumeCapability:
		return "none", true
	case rtsp.ParamConnectorType:
		return s.cfg.Params.ConnectorType, s.cfg.Params.ConnectorType != ""
	case rtsp.ParamDisplayEDID:
		return s.cfg.Params.DisplayEDID, s.cfg.Params.DisplayEDID != ""
	case rtsp.ParamRTCPCapability:
		return s.cfg.Params.MicrosoftRTCP, s.cfg.Params.MicrosoftRTCP != ""
	case rtsp.ParamIDRRequestCapability:
		return s.cfg.Params.IDRRequestCapability, s.cfg.Params.IDRRequestCapability != ""
	default:
		return "", false
	}
}

func (s *Session) handleM16(m *rtsp.Message) {
	s.keepAliveTimer.StopTimer()
	s.sendCommonResponse(m.CSeq)
	s.keepAliveTimer.StartTimer(s.keepAliveTimeout, "waiting for M16/GET_PARAMETER keep-alive", nil, false)
}

func (s *Session) handleSetParamRequest(m *rtsp.Message) {
	values := rtsp.ParseParameterValues(m.Body)
	if len(values) == 0 {
		return
	}

	if method, ok := values[rtsp.ParamTriggerMethod]; ok {
		s.handleTriggerMethod(m.CSeq, method)
		return
	}

	s.timeoutTimer.StopTimer()
	ok := s.handleM4Request(m.CSeq, values)

	s.mu.Lock()
	firstProsumer := s.isFirstProsumer
	if ok && firstProsumer {
		s.isFirstProsumer = false
	}
	s.mu.Unlock()

	if ok && firstProsumer {
		s.emit(events.TypeProsumerInit, nil)
	}
}

// handleM4Request parses the presentation URL and negotiated tracks
// out of the SET_PARAMETER body and answers with a common 200 OK.
func (s *Session) handleM4Request(cseq int, values map[string]string) bool {
	s.mu.Lock()
	if url, ok := values[rtsp.ParamPresentationURL]; ok {
		s.rtspURL = firstToken(url)
	}
	s.videoTrack = parseVideoTrack(values)
	s.audioTrack = parseAudioTrack(values)
	firstCast := s.isFirstCast
	s.mu.Unlock()

	if firstCast {
		s.timeoutTimer.StartTimer(timeout6s, "waiting for M5/SET_PARAMETER trigger request", nil, false)
	}

	if !s.sendCommonResponse(cseq) {
		s.timeoutTimer.StopTimer()
		s.notifyServiceError(wfderr.ErrConnectionFailure)
		return false
	}

	s.mu.Lock()
	s.isFirstCast = false
	s.mu.Unlock()
	return true
}

func (s *Session) sendCommonResponse(cseq int) bool {
	return s.write(rtsp.NewResponse(200, "OK", cseq))
}

func (s *Session) handleTriggerMethod(cseq int, method string) {
	switch method {
	case "SETUP":
		s.timeoutTimer.StopTimer()
		if !s.sendCommonResponse(cseq) {
			s.notifyServiceError(wfderr.ErrConnectionFailure)
			return
		}
		s.sendM6Request()
	case "TEARDOWN":
		if !s.sendCommonResponse(cseq) {
			s.notifyServiceError(wfderr.ErrConnectionFailure)
			return
		}
		s.sendM8Request()
	}
}

func (s *Session) sendM6Request() bool {
	s.mu.Lock()
	s.cseq++
	cseq := s.cseq
	url := s.rtspURL
	s.responseHandlers[cseq] = s.handleM6Response
	s.mu.Unlock()

	req := rtsp.NewRequest("SETUP", url, cseq)
	req.SetHeader("Transport", fmt.Sprintf("RTP/AVP/UDP;unicast;client_port=%d-%d", s.cfg.LocalRTPPort, s.cfg.LocalRTPPort+1))

	s.timeoutTimer.StartTimer(timeout5s, "waiting for M6/SETUP response", nil, false)
	if !s.write(req) {
		s.mu.Lock()
		delete(s.responseHandlers, cseq)
		s.mu.Unlock()
		s.timeoutTimer.StopTimer()
		s.notifyServiceError(wfderr.ErrConnectionFailure)
		return false
	}

	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()
	return true
}

func (s *Session) handleM6Response(m *rtsp.Message) {
	s.timeoutTimer.StopTimer()
	if m.StatusCode != 200 {
		s.notifyServiceError(wfderr.ErrServiceError)
		return
	}

	sessionHeader := m.Header("Session")
	sessionID, timeout := parseSessionHeader(sessionHeader)
	if timeout < keepAliveTimeoutMin {
		timeout = keepAliveTimeoutDefault
	}

	s.mu.Lock()
	s.rtspSession = sessionID
	s.keepAliveTimeout = timeout
	s.mu.Unlock()

	s.sendM7Request()
}

func (s *Session) sendM7Request() bool {
	s.mu.Lock()
	s.cseq++
	cseq := s.cseq
	url := s.rtspURL
	rtspSession := s.rtspSession
	s.responseHandlers[cseq] = s.handleM7Response
	s.mu.Unlock()

	req := rtsp.NewRequest("PLAY", url, cseq)
	if rtspSession != "" {
		req.SetHeader("Session", rtspSession)
	}

	s.timeoutTimer.StartTimer(timeout5s, "waiting for M7/PLAY response", nil, false)
	if !s.write(req) {
		s.mu.Lock()
		delete(s.responseHandlers, cseq)
		s.mu.Unlock()
		s.timeoutTimer.StopTimer()
		s.notifyServiceError(wfderr.ErrConnectionFailure)
		return false
	}
	return true
}

func (s *Session) handleM7Response(m *rtsp.Message) {
	s.timeoutTimer.StopTimer()
	if m.StatusCode != 200 {
		s.notifyServiceError(wfderr.ErrServiceError)
		return
	}

	s.emit(events.TypeRTSPPlayed, nil)

	s.mu.Lock()
	s.state = StatePlaying
	keepAlive := s.keepAliveTimeout
	s.mu.Unlock()

	// The interaction is complete; re-arm the timeout timer for plain
	// network-error detection rather than a specific handshake step.
	s.timeoutTimer.SetTimeoutCallback(func() { s.notifyServiceError(wfderr.ErrNetworkError) })
	s.keepAliveTimer.SetTimeoutCallback(func() { s.notifyServiceError(wfderr.ErrNetworkError) })
	s.keepAliveTimer.StartTimer(keepAlive, "waiting for M16/GET_PARAMETER keep-alive", nil, false)
}

func (s *Session) sendM8Request() bool {
	s.mu.Lock()
	if s.state == StateStopping {
		s.mu.Unlock()
		return true
	}
	if !s.connected {
		s.mu.Unlock()
		return false
	}
	s.cseq++
	cseq := s.cseq
	url := s.rtspURL
	rtspSession := s.rtspSession
	s.responseHandlers[cseq] = s.handleM8Response
	s.state = StateStopping
	s.mu.Unlock()

	req := rtsp.NewRequest("TEARDOWN", url, cseq)
	if rtspSession != "" {
		req.SetHeader("Session", rtspSession)
	}
	return s.write(req)
}

func (s *Session) handleM8Response(m *rtsp.Message) {
	if m.StatusCode != 200 {
		s.notifyServiceError(wfderr.ErrServiceError)
		return
	}
	s.emit(events.TypeRTSPTeardown, nil)
}

func (s *Session) sendIDRRequest() bool {
	s.mu.Lock()
	s.cseq++
	cseq := s.cseq
	url := s.rtspURL
	rtspSession := s.rtspSession
	s.responseHandlers[cseq] = s.handleCommonResponse
	s.mu.Unlock()

	req := rtsp.NewRequest("SET_PARAMETER", url, cseq)
	if rtspSession != "" {
		req.SetHeader("Session", rtspSession)
	}
	req.SetHeader("Content-Type", rtsp.ContentTypeParameters)
	req.Body = rtsp.BuildParameterBody([][2]string{{rtsp.ParamIDRRequest, ""}})

	s.timeoutTimer.StartTimer(timeout6s, "waiting for wfd_idr_request response", nil, false)
	return s.write(req)
}

func (s *Session) handleCommonResponse(m *rtsp.Message) {
	s.timeoutTimer.StopTimer()
	if m.StatusCode != 200 {
		s.notifyServiceError(wfderr.ErrServiceError)
	}
}

func (s *Session) notifyServiceError(err error) {
	s.emit(events.TypeProsumerError, err)
}

func (s *Session) emit(t events.Type, payload any) {
	if s.onEvent == nil {
		return
	}
	s.onEvent(events.Event{Type: t, Payload: payload})
}

func (s *Session) write(m *rtsp.Message) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return false
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := m.WriteTo(s.conn); err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to write RTSP message", "method", m.Method, "cseq", m.CSeq, "error", err)
		}
		return false
	}
	return true
}
