// Package ws is the websocket surface of the chat service: it authenticates
// the handshake, registers the connection for presence and feeds inbound
// events to the chat pipeline one at a time.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"mentorchat/backend/internal/presence"
	"mentorchat/backend/internal/service"
	"mentorchat/backend/internal/store"
	"mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/middleware"
	pkgws "mentorchat/backend/pkg/ws"
	"mentorchat/backend/shared/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// ChatService is the part of the pipeline the socket layer drives
type ChatService interface {
	Submit(ctx context.Context, origin presence.Conn, req service.SubmitRequest) (*service.SubmitResult, error)
	MarkRead(ctx context.Context, userID, conversationID uint) (*store.ReadResult, error)
	Typing(ctx context.Context, userID, conversationID uint, isTyping bool) error
}

// Config tunes connection handling
type Config struct {
	MessageRate    float64
	MessageBurst   int
	SendBuffer     int
	EventTimeout   time.Duration
	AllowedOrigins []string
}

// DefaultConfig returns the settings used when none are given
func DefaultConfig() Config {
	return Config{
		MessageRate:  5,
		MessageBurst: 10,
		SendBuffer:   256,
		EventTimeout: 15 * time.Second,
	}
}

// Hub owns the set of open sockets.
type Hub struct {
	registry *presence.Registry
	chat     ChatService
	metrics  *observability.ChatMetrics
	cfg      Config
	upgrader websocket.Upgrader
	log      *logger.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub creates a hub over registry
func NewHub(registry *presence.Registry, chat ChatService, cfg Config, metrics *observability.ChatMetrics, log *logger.Logger) *Hub {
	def := DefaultConfig()
	if cfg.MessageRate <= 0 {
		cfg.MessageRate = def.MessageRate
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = def.MessageBurst
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = def.EventTimeout
	}

	h := &Hub{
		registry: registry,
		chat:     chat,
		metrics:  metrics,
		cfg:      cfg,
		log:      log.WithComponent("ws"),
		clients:  make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeWs upgrades an authenticated request. It must run behind
// middleware.JWTAuthMiddleware.
func (h *Hub) ServeWs(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.Error(errors.NewUnauthorizedError(errors.CodeUnauthorized, "authentication required"))
		c.Abort()
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "user_id", userID, "error", err.Error())
		return
	}

	client := &Client{
		id:      uuid.NewString(),
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
		hub:     h,
		limiter: rate.NewLimiter(rate.Limit(h.cfg.MessageRate), h.cfg.MessageBurst),
	}
	client.log = h.log.WithConnID(client.id).WithIdentity(userID)

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	// The superseded connection, if any, stays open but no longer receives
	// pushes addressed to this identity.
	if _, replaced := h.registry.Register(userID, client); replaced {
		client.log.Info("connection superseded an earlier one")
	}
	h.metrics.ConnectionOpened(context.Background())
	client.log.Info("connection established")
	client.Push(pkgws.EventConnected, pkgws.ConnectedPayload{UserID: userID, ConnID: client.id})

	go client.WritePump()
	go client.ReadPump()
}

func (h *Hub) disconnect(c *Client) {
	h.mu.Lock()
	_, known := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if !known {
		return
	}

	if !h.registry.Unregister(c) {
		c.log.Debug("stale connection closed, mapping left in place")
	}
	c.close()
	h.metrics.ConnectionClosed(context.Background())
	c.log.Info("connection closed")
}

// Connections returns the number of open sockets
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close closes every open socket.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}
