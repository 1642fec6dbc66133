package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"mentorchat/backend/internal/service"
	"mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/logger"
	pkgws "mentorchat/backend/pkg/ws"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

// Client is one authenticated socket. It implements presence.Conn.
type Client struct {
	id      string
	userID  uint
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	limiter *rate.Limiter
	log     *logger.Logger

	mu     sync.Mutex
	closed bool
}

// ConnID implements presence.Conn
func (c *Client) ConnID() string {
	return c.id
}

// Push queues an event for the write pump. It reports false when the
// connection is closed or its buffer is full.
func (c *Client) Push(eventType string, payload any) bool {
	data, err := json.Marshal(pkgws.Message{Type: eventType, Content: payload})
	if err != nil {
		c.log.LogError(err, "failed to encode event", "type", eventType)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump handles inbound frames one at a time until the socket closes.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("unexpected close", "error", err.Error())
			}
			return
		}

		var in pkgws.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.pushError("decode", errors.NewValidationError("malformed frame"), "")
			continue
		}

		if !c.limiter.Allow() {
			c.pushError(in.Type, errors.NewTooManyRequestsError(errors.CodeRateLimited, "too many events, slow down"), "")
			continue
		}

		c.handle(in)
	}
}

func (c *Client) handle(in pkgws.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), c.hub.cfg.EventTimeout)
	defer cancel()
	ctx = logger.IntoContext(ctx, c.log)

	switch in.Type {
	case pkgws.EventSendMessage:
		var p pkgws.SendMessagePayload
		if err := json.Unmarshal(in.Content, &p); err != nil {
			c.pushError(in.Type, errors.NewValidationError("invalid send_message payload"), "")
			return
		}
		_, err := c.hub.chat.Submit(ctx, c, service.SubmitRequest{
			SenderID: c.userID,
			To:       p.To,
			Content:  p.Content,
			ClientID: p.ClientID,
		})
		if err != nil {
			c.pushError(in.Type, err, p.ClientID)
		}

	case pkgws.EventTyping:
		var p pkgws.TypingPayload
		if err := json.Unmarshal(in.Content, &p); err != nil {
			c.pushError(in.Type, errors.NewValidationError("invalid typing payload"), "")
			return
		}
		if err := c.hub.chat.Typing(ctx, c.userID, p.ConversationID, p.IsTyping); err != nil {
			c.pushError(in.Type, err, "")
		}

	case pkgws.EventMarkRead:
		var p pkgws.MarkReadPayload
		if err := json.Unmarshal(in.Content, &p); err != nil {
			c.pushError(in.Type, errors.NewValidationError("invalid mark_read payload"), "")
			return
		}
		if _, err := c.hub.chat.MarkRead(ctx, c.userID, p.ConversationID); err != nil {
			c.pushError(in.Type, err, "")
		}

	case pkgws.EventPing:
		c.Push(pkgws.EventPong, nil)

	default:
		c.pushError(in.Type, errors.NewValidationError("unknown event type"), "")
	}
}

func (c *Client) pushError(operation string, err error, clientID string) {
	payload := pkgws.ErrorPayload{
		Operation: operation,
		ClientID:  clientID,
		Code:      errors.CodeInternal,
		Message:   "internal error",
	}
	if appErr, ok := errors.As(err); ok {
		payload.Code = appErr.Code
		payload.Message = appErr.Message
	} else {
		c.log.LogError(err, "event failed", "operation", operation)
	}
	c.Push(pkgws.EventError, payload)
}

// WritePump drains the send queue and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Each queued event goes out as its own frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				extra, ok := <-c.send
				if !ok {
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, extra); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
