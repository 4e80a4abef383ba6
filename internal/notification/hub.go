package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"harvest-iot-backend/internal/flow"
	"harvest-iot-backend/internal/metrics"
)

// Push message types.
const (
	TypeInit             = "init"
	TypeDeviceUpdate     = "device_update"
	TypeDeviceRegistered = "device_registered"
	TypeDeviceDeleted    = "device_deleted"
)

// ErrSlowClient is returned by Serve when a listener fell too far behind and was dropped.
var ErrSlowClient = errors.New("listener queue overflow")

// Message is one push notification. Only the field matching Type is sent.
type Message struct {
	Type        string
	Device      *flow.DeviceRecord
	Devices     []flow.DeviceRecord
	HistoryCode string
}

// MarshalJSON renders {type, device} / {type, devices} / {type, historyCode}.
func (m Message) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": m.Type}
	switch m.Type {
	case TypeInit:
		devices := m.Devices
		if devices == nil {
			devices = []flow.DeviceRecord{}
		}
		out["devices"] = devices
	case TypeDeviceDeleted:
		out["historyCode"] = m.HistoryCode
	default:
		if m.Device != nil {
			out["device"] = m.Device
		}
	}
	return json.Marshal(out)
}

// Conn is the part of a WebSocket connection the hub writes to. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	ReadMessage() (int, []byte, error)
	Close() error
}

type client struct {
	id   string
	conn Conn
	send chan Message
}

// Hub fans push messages out to every connected listener.
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]*client
	broadcast    chan Message
	stopChan     chan struct{}
	stopOnce     sync.Once
	bufferSize   int
	keepalive    time.Duration
	writeTimeout time.Duration
}

// NewHub creates a hub with a per-listener queue of bufferSize messages.
func NewHub(bufferSize int, keepalive time.Duration) *Hub {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &Hub{
		clients:      make(map[string]*client),
		broadcast:    make(chan Message, 256),
		stopChan:     make(chan struct{}),
		bufferSize:   bufferSize,
		keepalive:    keepalive,
		writeTimeout: 10 * time.Second,
	}
}

// Start launches the fan-out loop. It stops when ctx is cancelled or Stop is called.
func (h *Hub) Start(ctx context.Context) {
	go h.run(ctx)
}

// Stop disconnects every listener and ends the fan-out loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// Broadcast queues msg for every listener. Messages are dropped when the hub is saturated.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
		metrics.IncPushMessage(msg.Type)
	default:
		metrics.IncPushDropped()
		logrus.WithField("type", msg.Type).Warn("push hub saturated, dropping message")
	}
}

// ClientCount returns the number of connected listeners.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.Stop()
			return
		case <-h.stopChan:
			return
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) fanOut(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// Slow listeners are disconnected.
			delete(h.clients, id)
			close(c.send)
			metrics.IncPushDropped()
			logrus.WithField("client", id).Warn("dropping slow push listener")
		}
	}
	metrics.SetPushClients(len(h.clients))
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetPushClients(n)
	logrus.WithFields(logrus.Fields{"client": c.id, "clients": n}).Info("push listener connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetPushClients(n)
	logrus.WithFields(logrus.Fields{"client": c.id, "clients": n}).Info("push listener disconnected")
}

// Serve registers conn as a listener and pumps messages to it until the connection
// closes, ctx is cancelled or the hub stops. The listener is registered before initial
// is evaluated, so no update between the snapshot and the first queued message is lost.
func (h *Hub) Serve(ctx context.Context, conn Conn, initial func() Message) error {
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan Message, h.bufferSize)}
	h.register(c)
	defer func() {
		h.unregister(c)
		_ = conn.Close()
	}()

	if initial != nil {
		if err := h.write(c, initial()); err != nil {
			return err
		}
	}

	closed := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closed <- err
				return
			}
		}
	}()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.stopChan:
			return nil
		case <-closed:
			return nil
		case msg, ok := <-c.send:
			if !ok {
				return ErrSlowClient
			}
			if err := h.write(c, msg); err != nil {
				return err
			}
		case <-keepalive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) write(c *client, msg Message) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(msg)
}
