package connections

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// TimeoutConfig holds the timeout settings for stream client connections
type TimeoutConfig struct {
	PongWait   time.Duration
	PingPeriod time.Duration
	WriteWait  time.Duration
}

// DefaultTimeouts provides sensible default timeout values
var DefaultTimeouts = TimeoutConfig{
	PongWait:   30 * time.Second,
	PingPeriod: 27 * time.Second, // (PongWait * 9) / 10
	WriteWait:  10 * time.Second,
}

// Client wraps one stream client connection. Stream events and pings are
// written from different goroutines, so writes are serialized here.
type Client struct {
	conn     *websocket.Conn
	timeouts TimeoutConfig
	writeMu  sync.Mutex
}

// WriteJSON sends one JSON frame under the write deadline.
func (c *Client) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.timeouts.WriteWait))
	return c.conn.WriteJSON(v)
}

// Ping sends a control ping under the write deadline.
func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.timeouts.WriteWait))
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// PrepareRead arms the pong handler. Called once after the upgrade, before
// the read loop starts.
func (c *Client) PrepareRead() {
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
		return nil
	})
}

// ReadJSON reads one JSON frame from the client. The read deadline is
// re-armed on every call: the read loop can sit idle well past PongWait while
// a stream is being relayed, and the deadline must not expire in the gap.
func (c *Client) ReadJSON(v any) error {
	c.conn.SetReadDeadline(time.Now().Add(c.timeouts.PongWait))
	return c.conn.ReadJSON(v)
}

// Manager handles stream client connection lifecycle
type Manager struct {
	clients  sync.Map
	timeouts TimeoutConfig
}

// NewManager creates a new connection manager with the specified timeouts
func NewManager(timeouts TimeoutConfig) *Manager {
	return &Manager{
		timeouts: timeouts,
	}
}

// AddClient registers a connection and returns its client wrapper
func (m *Manager) AddClient(conn *websocket.Conn) *Client {
	client := &Client{conn: conn, timeouts: m.timeouts}
	m.clients.Store(client, struct{}{})
	return client
}

// RemoveClient removes a stream client
func (m *Manager) RemoveClient(client *Client) {
	m.clients.Delete(client)
}

// GetClientCount returns the current number of active clients
func (m *Manager) GetClientCount() int {
	count := 0
	m.clients.Range(func(key, value interface{}) bool {
		count++
		return true
	})
	return count
}

// HasClient checks if a specific client is registered
func (m *Manager) HasClient(client *Client) bool {
	_, exists := m.clients.Load(client)
	return exists
}

// GetTimeouts returns the current timeout configuration
func (m *Manager) GetTimeouts() TimeoutConfig {
	return m.timeouts
}
