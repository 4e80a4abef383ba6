package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvest-iot-backend/internal/flow"
)

// mockConn records written messages; ReadMessage blocks until Close or hangUp.
type mockConn struct {
	mu      sync.Mutex
	written []Message
	pings   int
	gate    chan struct{} // when non-nil, every WriteJSON waits for a token
	closed  chan struct{}
	once    sync.Once
	hangUp  chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{closed: make(chan struct{}), hangUp: make(chan struct{})}
}

func (m *mockConn) WriteJSON(v any) error {
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-m.closed:
			return errors.New("closed")
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, v.(Message))
	return nil
}

func (m *mockConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if messageType == websocket.PingMessage {
		m.pings++
	}
	return nil
}

func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case <-m.closed:
		return 0, nil, errors.New("closed")
	case <-m.hangUp:
		return 0, nil, errors.New("client went away")
	}
}

func (m *mockConn) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *mockConn) messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.written...)
}

func serve(t *testing.T, ctx context.Context, h *Hub, conn Conn, initial func() Message) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- h.Serve(ctx, conn, initial) }()
	require.Eventually(t, func() bool { return h.ClientCount() > 0 }, time.Second, 5*time.Millisecond)
	return done
}

func TestMessage_MarshalJSON(t *testing.T) {
	rec := flow.DeviceRecord{HistoryCode: "IOT-2024-001", SourceID: "GS-01"}

	testCases := []struct {
		name     string
		msg      Message
		expected string
	}{
		{"empty init", Message{Type: TypeInit}, `{"type":"init","devices":[]}`},
		{"deleted", Message{Type: TypeDeviceDeleted, HistoryCode: "IOT-2024-001"}, `{"type":"device_deleted","historyCode":"IOT-2024-001"}`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := json.Marshal(tc.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(raw))
		})
	}

	raw, err := json.Marshal(Message{Type: TypeDeviceUpdate, Device: &rec})
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "device_update", decoded["type"])
	assert.Equal(t, "IOT-2024-001", decoded["device"].(map[string]any)["historyCode"])
	assert.NotContains(t, decoded, "devices")
}

func TestHub_InitThenBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(8, time.Hour)
	h.Start(ctx)

	conn := newMockConn()
	done := serve(t, ctx, h, conn, func() Message {
		return Message{Type: TypeInit, Devices: []flow.DeviceRecord{{HistoryCode: "IOT-2024-001"}}}
	})

	rec := flow.DeviceRecord{HistoryCode: "IOT-2024-002"}
	h.Broadcast(Message{Type: TypeDeviceRegistered, Device: &rec})
	h.Broadcast(Message{Type: TypeDeviceDeleted, HistoryCode: "IOT-2024-001"})

	require.Eventually(t, func() bool { return len(conn.messages()) == 3 }, time.Second, 5*time.Millisecond)
	msgs := conn.messages()
	assert.Equal(t, TypeInit, msgs[0].Type)
	assert.Equal(t, TypeDeviceRegistered, msgs[1].Type)
	assert.Equal(t, TypeDeviceDeleted, msgs[2].Type)

	cancel()
	assert.NoError(t, <-done)
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_ClientHangUpUnregisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(8, time.Hour)
	h.Start(ctx)

	conn := newMockConn()
	done := serve(t, ctx, h, conn, nil)
	close(conn.hangUp)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after the client went away")
	}
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_SlowClientIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(1, time.Hour)
	h.Start(ctx)

	slow := newMockConn()
	slow.gate = make(chan struct{}) // never opens
	fast := newMockConn()

	slowDone := serve(t, ctx, h, slow, nil)
	fastDone := serve(t, ctx, h, fast, nil)
	require.Eventually(t, func() bool { return h.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	for i := 1; i <= 5; i++ {
		h.Broadcast(Message{Type: TypeDeviceDeleted, HistoryCode: "IOT-2024-001"})
		require.Eventually(t, func() bool { return len(fast.messages()) == i }, time.Second, time.Millisecond)
	}
	assert.Equal(t, 1, h.ClientCount())

	// The slow listener is stuck in WriteJSON until its connection is closed.
	require.NoError(t, slow.Close())
	select {
	case err := <-slowDone:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("slow listener was not released")
	}

	h.Stop()
	assert.NoError(t, <-fastDone)
}

func TestHub_Keepalive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(4, 10*time.Millisecond)
	h.Start(ctx)

	conn := newMockConn()
	done := serve(t, ctx, h, conn, nil)

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.pings >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
