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
	"github.com/ternarybob/extracta/internal/common"
	"github.com/ternarybob/extracta/internal/interfaces"
	"github.com/ternarybob/extracta/internal/services/events"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func waitForClients(t *testing.T, handler *WebSocketHandler, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return handler.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func extractionEvent(eventType interfaces.EventType, jobID, status string) interfaces.Event {
	return interfaces.Event{
		Type: eventType,
		Payload: interfaces.ExtractionEvent{
			JobID:      jobID,
			DocumentID: "doc-1",
			WorkflowID: "wf-1",
			Status:     status,
			Attempt:    1,
			Timestamp:  time.Now(),
		},
	}
}

func TestWebSocket_StatusOnConnect(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), &common.WebSocketConfig{})
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, "status", msg.Type)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, handler.serverInstanceID, payload["server_instance_id"])
}

// Events published on the bus fan out to every connected client
func TestWebSocket_BroadcastsExtractionEvents(t *testing.T) {
	logger := arbor.NewLogger()
	bus := events.NewService(logger)
	defer bus.Close()

	handler := NewWebSocketHandler(bus, logger, &common.WebSocketConfig{})
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	const numClients = 3
	conns := make([]*websocket.Conn, numClients)
	for i := range conns {
		conns[i] = dial(t, server)
		defer conns[i].Close()
		readMessage(t, conns[i])
	}
	waitForClients(t, handler, numClients)

	require.NoError(t, bus.PublishSync(context.Background(), extractionEvent(interfaces.EventExtractionStarted, "ext_1", "pending")))

	for _, conn := range conns {
		msg := readMessage(t, conn)
		assert.Equal(t, string(interfaces.EventExtractionStarted), msg.Type)

		data, err := json.Marshal(msg.Payload)
		require.NoError(t, err)
		var payload interfaces.ExtractionEvent
		require.NoError(t, json.Unmarshal(data, &payload))
		assert.Equal(t, "ext_1", payload.JobID)
		assert.Equal(t, "pending", payload.Status)
	}
}

func TestWebSocket_DisconnectRemovesClient(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), nil)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	readMessage(t, conn)
	waitForClients(t, handler, 1)

	conn.Close()
	waitForClients(t, handler, 0)

	// Broadcasting with no clients is a no-op
	handler.Broadcast(WSMessage{Type: "noop"})
}

func TestWebSocket_CloseAll(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), nil)
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()
	readMessage(t, conn)
	waitForClients(t, handler, 1)

	handler.CloseAll()
	assert.Equal(t, 0, handler.ClientCount())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestEventSubscriber_AllowedEvents(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), nil)
	subscriber := NewEventSubscriber(handler, nil, arbor.NewLogger(), &common.WebSocketConfig{
		AllowedEvents: []string{string(interfaces.EventExtractionCompleted)},
	})

	assert.True(t, subscriber.shouldBroadcastEvent(extractionEvent(interfaces.EventExtractionCompleted, "ext_1", "complete")))
	assert.False(t, subscriber.shouldBroadcastEvent(extractionEvent(interfaces.EventExtractionStarted, "ext_1", "pending")))
	assert.False(t, subscriber.shouldBroadcastEvent(interfaces.Event{Type: interfaces.EventWorkflowsReloaded}))
}

func TestEventSubscriber_ThrottlesProgressPerJob(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), nil)
	subscriber := NewEventSubscriber(handler, nil, arbor.NewLogger(), &common.WebSocketConfig{Throttle: "1h"})

	progress := func(jobID string) bool {
		return subscriber.shouldBroadcastEvent(extractionEvent(interfaces.EventExtractionProgress, jobID, "processing"))
	}

	assert.True(t, progress("ext_1"))
	assert.False(t, progress("ext_1"), "second progress event within the interval is dropped")
	assert.True(t, progress("ext_2"), "jobs are throttled independently")

	// Lifecycle events always pass and reset the job's limiter
	assert.True(t, subscriber.shouldBroadcastEvent(extractionEvent(interfaces.EventExtractionFailed, "ext_1", "failed")))
	assert.True(t, progress("ext_1"))
}

func TestEventSubscriber_InvalidThrottleDisablesThrottling(t *testing.T) {
	handler := NewWebSocketHandler(nil, arbor.NewLogger(), nil)
	subscriber := NewEventSubscriber(handler, nil, arbor.NewLogger(), &common.WebSocketConfig{Throttle: "often"})

	for i := 0; i < 3; i++ {
		assert.True(t, subscriber.shouldBroadcastEvent(extractionEvent(interfaces.EventExtractionProgress, "ext_1", "processing")))
	}
}
