package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
)

// Frame is the wire envelope for socket emissions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WebsocketIO implements the router's IO seam over nhooyr websockets. Each
// socket gets a buffered send queue and a writer goroutine; when the queue is
// full frames are dropped rather than blocking the router.
type WebsocketIO struct {
	mu     sync.RWMutex
	conns  map[string]*wsConn
	logger *slog.Logger
}

type wsConn struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	closed sync.Once
}

func NewWebsocketIO() *WebsocketIO {
	return &WebsocketIO{
		conns:  make(map[string]*wsConn),
		logger: slog.Default().With("component", "websocket"),
	}
}

// Add registers a connection and starts its writer. The caller remains
// responsible for the read side and for calling Remove on close.
func (w *WebsocketIO) Add(socketID string, conn *websocket.Conn) {
	c := &wsConn{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	w.mu.Lock()
	if prev, ok := w.conns[socketID]; ok {
		prev.close()
	}
	w.conns[socketID] = c
	w.mu.Unlock()

	go w.writeLoop(socketID, c)
}

func (w *WebsocketIO) Remove(socketID string) {
	w.mu.Lock()
	c, ok := w.conns[socketID]
	if ok {
		delete(w.conns, socketID)
	}
	w.mu.Unlock()
	if ok {
		c.close()
	}
}

// Emit queues a frame for the socket. Unknown sockets and full queues drop the
// frame; the client recovers through reconnect and cursor catch-up.
func (w *WebsocketIO) Emit(socketID string, event string, payload []byte) {
	frame, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		w.logger.Error("failed to marshal frame", "error", err)
		return
	}

	w.mu.RLock()
	c, ok := w.conns[socketID]
	w.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case c.send <- frame:
	default:
		w.logger.Warn("dropping frame for slow socket", "socket", socketID, "event", event)
	}
}

func (w *WebsocketIO) writeLoop(socketID string, c *wsConn) {
	for {
		select {
		case frame := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				w.logger.Debug("socket write failed", "socket", socketID, "error", err)
				w.Remove(socketID)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) close() {
	c.closed.Do(func() {
		close(c.done)
		c.conn.Close(websocket.StatusNormalClosure, "")
	})
}
