package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/services/events"
	"github.com/hugorneri/RPA-DCTFWEB/internal/services/runs"
)

type staticStatus struct {
	snapshot runs.Snapshot
}

func (s staticStatus) Status() runs.Snapshot { return s.snapshot }

type rawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) rawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg rawMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketHandler_SendsSnapshotOnConnect(t *testing.T) {
	handler := NewWebSocketHandler(nil, staticStatus{runs.Snapshot{State: runs.StateIdle}}, 0, arbor.NewLogger())
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	msg := readMessage(t, dial(t, server))
	assert.Equal(t, "run_state", msg.Type)

	var snap runs.Snapshot
	require.NoError(t, json.Unmarshal(msg.Payload, &snap))
	assert.Equal(t, runs.StateIdle, snap.State)
}

func TestWebSocketHandler_BroadcastsProgress(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	defer bus.Close()

	handler := NewWebSocketHandler(bus, staticStatus{runs.Snapshot{State: runs.StateRunning}}, 0, arbor.NewLogger())
	defer handler.Close()
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conns := []*websocket.Conn{dial(t, server), dial(t, server)}
	for _, conn := range conns {
		readMessage(t, conn)
	}
	require.Eventually(t, func() bool { return handler.ClientCount() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventRunProgress,
		Payload: runs.ProgressEvent{RunID: "run_1", Message: "Processando A...", Current: 1, Total: 2},
	}))

	for _, conn := range conns {
		msg := readMessage(t, conn)
		assert.Equal(t, "run_progress", msg.Type)
		var progress runs.ProgressEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &progress))
		assert.Equal(t, "Processando A...", progress.Message)
		assert.Equal(t, 1, progress.Current)
	}
}

func TestWebSocketHandler_ThrottleKeepsFinalProgress(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	defer bus.Close()

	handler := NewWebSocketHandler(bus, nil, time.Hour, arbor.NewLogger())
	defer handler.Close()
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return handler.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	for i := 1; i <= 3; i++ {
		require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
			Type:    interfaces.EventRunProgress,
			Payload: runs.ProgressEvent{Message: "step", Current: i, Total: 3},
		}))
	}

	first := readMessage(t, conn)
	second := readMessage(t, conn)

	var p1, p2 runs.ProgressEvent
	require.NoError(t, json.Unmarshal(first.Payload, &p1))
	require.NoError(t, json.Unmarshal(second.Payload, &p2))
	assert.Equal(t, 1, p1.Current)
	assert.Equal(t, 3, p2.Current, "intermediate report throttled, final report delivered")
}

func TestWebSocketHandler_ThrottleKeepsMilestones(t *testing.T) {
	bus := events.NewService(arbor.NewLogger())
	defer bus.Close()

	handler := NewWebSocketHandler(bus, nil, time.Hour, arbor.NewLogger())
	defer handler.Close()
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	require.Eventually(t, func() bool { return handler.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	reports := []runs.ProgressEvent{
		{Message: "Processando A...", Current: 1, Total: 3},
		{Message: "Processando B...", Current: 2, Total: 3},
		{Message: "Aguardando confirmação de login...", Current: 0, Total: 3, Milestone: true},
	}
	for _, p := range reports {
		require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventRunProgress, Payload: p}))
	}

	var got []string
	for i := 0; i < 2; i++ {
		var p runs.ProgressEvent
		require.NoError(t, json.Unmarshal(readMessage(t, conn).Payload, &p))
		got = append(got, p.Message)
	}
	assert.Equal(t, []string{"Processando A...", "Aguardando confirmação de login..."}, got)
}
