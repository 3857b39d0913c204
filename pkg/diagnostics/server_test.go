package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ethan/wfd-sink/pkg/media"
	"github.com/ethan/wfd-sink/pkg/session"
)

type fakeSession struct{ state session.State }

func (f fakeSession) State() session.State { return f.state }

type fakeDispatcher struct{ stats media.DispatcherStats }

func (f fakeDispatcher) Stats() media.DispatcherStats { return f.stats }

func TestServer_HandleStatusReportsSessionAndDispatcher(t *testing.T) {
	s := NewServer(fakeSession{state: session.StatePlaying}, fakeDispatcher{stats: media.DispatcherStats{VideoLen: 3, Capacity: 500}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "playing", resp.SessionState)
	require.NotNil(t, resp.Dispatcher)
	require.Equal(t, 3, resp.Dispatcher.VideoLen)
}

func TestServer_HandleStatusWithNilDispatcher(t *testing.T) {
	s := NewServer(fakeSession{state: session.StateInit}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.handleStatus(rec, req)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "init", resp.SessionState)
	require.Nil(t, resp.Dispatcher)
}

func TestServer_StopWithoutStartIsNoop(t *testing.T) {
	s := NewServer(nil, nil, nil)
	require.NoError(t, s.Stop(context.Background()))
}
