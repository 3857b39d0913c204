package session

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ethan/wfd-sink/pkg/events"
	"github.com/ethan/wfd-sink/pkg/rtsp"
	"github.com/ethan/wfd-sink/pkg/wfderr"
)

// newTestSession wires a Session's "network connection" to an in-test peer
// so the handshake can be driven without a real socket.
func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	clientConn, peerConn := net.Pipe()

	s := New(Config{
		LocalRTPPort: 19000,
		VideoFormats: "00 00 01 01 00000020 00000000 00000000 00 0000 0000 00 none none",
		AudioCodecs:  "AAC 00000001 00",
	}, func(e events.Event) {}, nil)

	s.conn = clientConn
	s.reader = bufio.NewReader(clientConn)
	s.connected = true
	s.timeoutTimer.StartTimer(6*time.Second, "test", nil, false)

	go s.readLoop()
	t.Cleanup(func() {
		s.timeoutTimer.Close()
		s.keepAliveTimer.Close()
		_ = clientConn.Close()
		_ = peerConn.Close()
	})
	return s, peerConn
}

func TestSession_M1TriggersM2Request(t *testing.T) {
	s, peer := newTestSession(t)

	m1 := rtsp.NewRequest("OPTIONS", "*", 1)
	require.NoError(t, m1.WriteTo(peer))

	peerReader := bufio.NewReader(peer)

	resp, err := rtsp.ReadMessage(peerReader)
	require.NoError(t, err)
	require.False(t, resp.IsRequest)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, 1, resp.CSeq)

	m2, err := rtsp.ReadMessage(peerReader)
	require.NoError(t, err)
	require.True(t, m2.IsRequest)
	require.Equal(t, "OPTIONS", m2.Method)

	require.Equal(t, StateInit, s.State())
}

func TestSession_M3AnswersOnlyRequestedParams(t *testing.T) {
	s, peer := newTestSession(t)
	peerReader := bufio.NewReader(peer)

	m3 := rtsp.NewRequest("GET_PARAMETER", "*", 2)
	m3.SetHeader("Content-Type", rtsp.ContentTypeParameters)
	m3.Body = []byte("wfd_video_formats\r\nwfd_audio_codecs\r\n")
	require.NoError(t, m3.WriteTo(peer))

	resp, err := rtsp.ReadMessage(peerReader)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	values := rtsp.ParseParameterValues(resp.Body)
	require.Equal(t, s.cfg.VideoFormats, values[rtsp.ParamVideoFormats])
	require.Equal(t, s.cfg.AudioCodecs, values[rtsp.ParamAudioCodecs])
	require.NotContains(t, values, rtsp.ParamContentProtection)
}

func TestSession_TriggerSetupAdvancesToReadyAndSendsM6(t *testing.T) {
	s, peer := newTestSession(t)
	peerReader := bufio.NewReader(peer)

	s.mu.Lock()
	s.rtspURL = "rtsp://192.0.2.1/wfd1.0"
	s.mu.Unlock()

	trigger := rtsp.NewRequest("SET_PARAMETER", "*", 5)
	trigger.SetHeader("Content-Type", rtsp.ContentTypeParameters)
	trigger.Body = []byte("wfd_trigger_method: SETUP\r\n")
	require.NoError(t, trigger.WriteTo(peer))

	resp, err := rtsp.ReadMessage(peerReader)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	m6, err := rtsp.ReadMessage(peerReader)
	require.NoError(t, err)
	require.True(t, m6.IsRequest)
	require.Equal(t, "SETUP", m6.Method)
	require.Equal(t, "rtsp://192.0.2.1/wfd1.0", m6.URL)

	require.Equal(t, StateReady, s.State())
}

func TestSession_M7ResponseEntersPlaying(t *testing.T) {
	s, peer := newTestSession(t)
	peerReader := bufio.NewReader(peer)
	_ = peerReader

	s.mu.Lock()
	s.rtspURL = "rtsp://192.0.2.1/wfd1.0"
	s.cseq = 10
	s.responseHandlers[11] = s.handleM7Response
	s.mu.Unlock()

	m7resp := rtsp.NewResponse(200, "OK", 11)
	s.handleMessage(m7resp)

	require.Equal(t, StatePlaying, s.State())
}

func TestSession_M8RequestIsIdempotentOnceStopping(t *testing.T) {
	s, peer := newTestSession(t)
	_ = peer

	s.mu.Lock()
	s.rtspURL = "rtsp://192.0.2.1/wfd1.0"
	s.state = StateStopping
	s.mu.Unlock()

	require.True(t, s.sendM8Request())
}

func TestSession_RequestIDRRejectedBeforePlaying(t *testing.T) {
	s, _ := newTestSession(t)
	require.False(t, s.RequestIDR())
}

// TestSession_InterruptDuringConnectRetryFiresOnce is scenario 6: a
// session whose TCP connect always fails is interrupted mid-retry.
// Expect STATE_SESSION_INTERRUPTED exactly once and no
// ERR_CONNECTION_FAILURE.
func TestSession_InterruptDuringConnectRetryFiresOnce(t *testing.T) {
	var mu sync.Mutex
	var seen []events.Type

	s := New(Config{LocalRTPPort: 19000}, func(e events.Event) {
		mu.Lock()
		seen = append(seen, e.Type)
		mu.Unlock()
	}, nil)

	// An address nothing listens on, so every dial attempt fails and
	// the retry loop keeps sleeping connectBackoff between attempts.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close()) // closed immediately: nothing answers

	ctx, cancel := context.Background(), func() {}
	_ = cancel

	connectErrCh := make(chan error, 1)
	go func() {
		host, portStr, splitErr := net.SplitHostPort(addr)
		require.NoError(t, splitErr)
		port, convErr := strconv.Atoi(portStr)
		require.NoError(t, convErr)
		connectErrCh <- s.Connect(ctx, host, uint16(port))
	}()

	time.Sleep(2 * connectBackoff)
	s.Interrupt()

	err = <-connectErrCh
	require.ErrorIs(t, err, wfderr.ErrSessionInterrupted)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []events.Type{events.TypeSessionInterrupted}, seen)
}
