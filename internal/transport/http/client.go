package http

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hub"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var errClientClosed = errors.New("client closed")

// client is one websocket connection attached to a room. It satisfies hub.Conn.
type client struct {
	id     string
	room   string
	role   hub.Role
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

func newClient(conn *websocket.Conn, room string, role hub.Role, buffer int, logger *zap.Logger) *client {
	id := uuid.NewString()
	return &client{
		id:     id,
		room:   room,
		role:   role,
		conn:   conn,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		logger: logger.With(zap.String("conn", id), zap.String("room", room), zap.String("role", string(role))),
	}
}

func (c *client) ID() string { return c.id }

// Send enqueues without blocking; a full buffer is reported as hub.ErrSlowConsumer.
func (c *client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return hub.ErrSlowConsumer
	}
}

func (c *client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) readPump(ctx context.Context, h *WSHandler) {
	defer func() {
		h.service.Disconnect(c.room, c, c.role)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		h.metrics.IncrementMessagesReceived()

		var intent domain.Intent
		if err := json.Unmarshal(raw, &intent); err != nil || intent.Action == "" {
			c.logger.Debug("ignoring malformed intent", zap.ByteString("payload", raw))
			continue
		}

		err = h.service.Handle(ctx, c.room, c, intent)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrUnauthorized):
			h.metrics.IncrementRejectedIntents()
		case errors.Is(err, domain.ErrParticipantNotFound), errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrRoomNotFound):
			c.logger.Debug("intent ignored", zap.String("action", intent.Action), zap.Error(err))
		default:
			c.logger.Error("intent failed", zap.String("action", intent.Action), zap.Error(err))
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
