// Package websockets streams benchmark progress to connected dashboards.
package websockets

import (
	"encoding/json"
	"sync"
	"time"

	"userbench/internal/batch"
	"userbench/internal/logger"

	"github.com/gofiber/websocket/v2"
)

const (
	MESSAGE_TYPE_CHUNK     = "chunk"
	MESSAGE_TYPE_OPERATION = "operation"
	MESSAGE_TYPE_WELCOME   = "welcome"

	clientBufferSize = 64
)

// Conn is the part of *websocket.Conn the manager uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type chunkPayload struct {
	batch.ChunkEvent
	ElapsedMs float64 `json:"elapsedMs"`
	Error     string  `json:"error,omitempty"`
}

// OperationSummary is broadcast once an operation finishes.
type OperationSummary struct {
	RunID            string  `json:"runId,omitempty"`
	Backend          string  `json:"backend"`
	Operation        string  `json:"operation"`
	Status           string  `json:"status"`
	Records          int64   `json:"records"`
	TotalQueryTimeMs float64 `json:"totalQueryTimeMs"`
	Error            string  `json:"error,omitempty"`
}

type client struct {
	conn Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

type Manager struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	now     func() time.Time
	log     logger.Logger
}

func New() *Manager {
	return &Manager{
		clients: make(map[*client]struct{}),
		now:     time.Now,
		log:     logger.New("websockets").File("manager"),
	}
}

// HandleWebSocket serves one upgraded connection until it is closed.
func (m *Manager) HandleWebSocket(c *websocket.Conn) {
	m.Serve(c)
}

// Serve registers conn, writes broadcasts to it and blocks reading until the
// peer goes away. Incoming messages are ignored.
func (m *Manager) Serve(conn Conn) {
	log := m.log.Function("Serve")

	cl := m.add(conn)
	defer m.remove(cl)

	go m.writeLoop(cl)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			log.Debug("websocket client disconnected", "error", err)
			return
		}
	}
}

func (m *Manager) add(conn Conn) *client {
	cl := &client{conn: conn, send: make(chan []byte, clientBufferSize)}

	m.mu.Lock()
	m.clients[cl] = struct{}{}
	count := len(m.clients)
	// Queued under the lock so it always precedes broadcasts.
	if data, err := m.encode(MESSAGE_TYPE_WELCOME, map[string]any{"clients": count}); err == nil {
		cl.send <- data
	}
	m.mu.Unlock()

	m.log.Function("add").Debug("websocket client connected", "clients", count)
	return cl
}

func (m *Manager) remove(cl *client) {
	m.mu.Lock()
	delete(m.clients, cl)
	m.mu.Unlock()

	cl.close()
	_ = cl.conn.Close()
}

func (m *Manager) writeLoop(cl *client) {
	for data := range cl.send {
		if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			m.log.Function("writeLoop").Debug("failed to write to websocket client", "error", err)
			m.remove(cl)
			return
		}
	}
}

func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// ChunkCompleted implements batch.Observer.
func (m *Manager) ChunkCompleted(event batch.ChunkEvent) {
	payload := chunkPayload{ChunkEvent: event, ElapsedMs: event.ElapsedMs()}
	if event.Err != nil {
		payload.Error = event.Err.Error()
	}
	m.Broadcast(MESSAGE_TYPE_CHUNK, payload)
}

func (m *Manager) OperationCompleted(summary OperationSummary) {
	m.Broadcast(MESSAGE_TYPE_OPERATION, summary)
}

// Broadcast queues a message for every client. A client whose buffer is full
// is disconnected rather than allowed to stall the benchmark.
func (m *Manager) Broadcast(messageType string, data any) {
	if m.ClientCount() == 0 {
		return
	}

	encoded, err := m.encode(messageType, data)
	if err != nil {
		m.log.Function("Broadcast").Er("failed to encode websocket message", err, "type", messageType)
		return
	}

	m.mu.RLock()
	clients := make([]*client, 0, len(m.clients))
	for cl := range m.clients {
		clients = append(clients, cl)
	}
	m.mu.RUnlock()

	for _, cl := range clients {
		m.deliver(cl, encoded)
	}
}

func (m *Manager) deliver(cl *client, data []byte) {
	defer func() {
		// send was closed by a concurrent remove
		_ = recover()
	}()

	select {
	case cl.send <- data:
	default:
		m.log.Function("deliver").Warn("dropping slow websocket client")
		m.remove(cl)
	}
}

func (m *Manager) encode(messageType string, data any) ([]byte, error) {
	return json.Marshal(Message{Type: messageType, Timestamp: m.now().UTC(), Data: data})
}

// Close disconnects every client.
func (m *Manager) Close() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[*client]struct{})
	m.mu.Unlock()

	for cl := range clients {
		cl.close()
		_ = cl.conn.Close()
	}
}
