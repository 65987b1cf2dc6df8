package gateway

import (
	"context"
	"encoding/json"
	"support-chat/contract"
	"support-chat/domain"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var _ contract.Handle = (*wsHandle)(nil)

// wsHandle is the single writer of a WebSocket connection.
// gorilla/websocket allows one concurrent writer, so every write goes through mu.
type wsHandle struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
	closeOnce    sync.Once
}

func newWSHandle(conn *websocket.Conn, writeTimeout time.Duration) *wsHandle {
	return &wsHandle{conn: conn, writeTimeout: writeTimeout}
}

func (h *wsHandle) Push(ctx context.Context, msg domain.Message) error {
	payload, err := json.Marshal(toMessageView(msg))
	if err != nil {
		return err
	}
	return h.write(ctx, Frame{Type: TypeMessage, Payload: payload})
}

func (h *wsHandle) write(ctx context.Context, frame Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.conn.SetWriteDeadline(h.deadline(ctx)); err != nil {
		return err
	}
	return h.conn.WriteJSON(frame)
}

func (h *wsHandle) ping() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.WriteControl(websocket.PingMessage, nil, h.deadline(context.Background()))
}

// deadline is the earlier of the write timeout and the context deadline.
func (h *wsHandle) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(h.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// Close is safe to call from the registry and from the read loop.
func (h *wsHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.conn.Close()
	})
	return err
}
