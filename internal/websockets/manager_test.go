package websockets

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"userbench/internal/batch"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	reads   chan error
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan error)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	err := <-c.reads
	return 0, nil, err
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages(t *testing.T) []Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.written))
	for _, raw := range c.written {
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		out = append(out, msg)
	}
	return out
}

func TestManager_BroadcastChunk(t *testing.T) {
	m := New()
	conn := newFakeConn()

	done := make(chan struct{})
	go func() {
		m.Serve(conn)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	m.ChunkCompleted(batch.ChunkEvent{
		Backend:     "sqlite",
		Operation:   "insert",
		ChunkIndex:  1,
		TotalChunks: 3,
		Records:     200000,
		Processed:   200000,
		Elapsed:     1500 * time.Millisecond,
	})

	require.Eventually(t, func() bool { return len(conn.messages(t)) == 2 }, time.Second, 5*time.Millisecond)

	messages := conn.messages(t)
	assert.Equal(t, MESSAGE_TYPE_WELCOME, messages[0].Type)
	assert.Equal(t, MESSAGE_TYPE_CHUNK, messages[1].Type)

	data := messages[1].Data.(map[string]any)
	assert.Equal(t, "insert", data["operation"])
	assert.InDelta(t, 3, data["totalChunks"], 0.001)
	assert.InDelta(t, 1500, data["elapsedMs"], 0.001)
	assert.NotContains(t, data, "error")

	conn.reads <- errors.New("closed")
	<-done
	assert.Equal(t, 0, m.ClientCount())
	assert.True(t, conn.closed)
}

func TestManager_OperationCompleted(t *testing.T) {
	m := New()
	conn := newFakeConn()
	cl := m.add(conn)

	m.OperationCompleted(OperationSummary{Backend: "mongo", Operation: "delete", Status: "failed", Error: "boom"})

	var welcome, msg Message
	require.NoError(t, json.Unmarshal(<-cl.send, &welcome))
	assert.Equal(t, MESSAGE_TYPE_WELCOME, welcome.Type)
	assert.InDelta(t, 1, welcome.Data.(map[string]any)["clients"], 0.001)

	require.NoError(t, json.Unmarshal(<-cl.send, &msg))
	assert.Equal(t, MESSAGE_TYPE_OPERATION, msg.Type)
	assert.Equal(t, "boom", msg.Data.(map[string]any)["error"])
}

func TestManager_DropsSlowClient(t *testing.T) {
	m := New()
	conn := newFakeConn()
	m.add(conn)

	for i := 0; i <= clientBufferSize; i++ {
		m.Broadcast(MESSAGE_TYPE_CHUNK, i)
	}

	assert.Equal(t, 0, m.ClientCount())
	assert.True(t, conn.closed)

	// Broadcasting with nobody connected is a no-op.
	m.Broadcast(MESSAGE_TYPE_CHUNK, "ignored")
}

func TestManager_Close(t *testing.T) {
	m := New()
	a, b := newFakeConn(), newFakeConn()
	m.add(a)
	m.add(b)

	m.Close()

	assert.Equal(t, 0, m.ClientCount())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
