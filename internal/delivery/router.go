// Package delivery selects and pushes to the live connections that should
// receive a persisted message.
package delivery

import (
	"mentorchat/backend/internal/models"
	"mentorchat/backend/internal/presence"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/ws"
)

// Role says why a connection was targeted
type Role string

const (
	RoleRecipient Role = "recipient"
	RoleSender    Role = "sender"
	RoleBroadcast Role = "broadcast"
)

// Target is one connection selected for a live push
type Target struct {
	Conn presence.Conn
	Role Role
}

// Outcome is the routing decision for one message.
type Outcome struct {
	// DeliveredLive is true when the recipient's connection accepted the push.
	DeliveredLive bool
	Targets       []Target
}

// Acked reports whether conn was pushed the sender copy, which doubles as
// the acceptance ack. A self-addressed message reaches the sender only in
// the recipient role, so it is not acked here.
func (o Outcome) Acked(conn presence.Conn) bool {
	for _, t := range o.Targets {
		if t.Role == RoleSender && t.Conn == conn {
			return true
		}
	}
	return false
}

// Router routes persisted messages over the presence registry. It never
// queues or retries: a recipient offline at routing time gets the message
// on its next fetch.
type Router struct {
	registry            *presence.Registry
	broadcastUnresolved bool
	log                 *logger.Logger
}

// Option customises a Router
type Option func(*Router)

// WithBroadcastUnresolved enables the degraded mode that pushes messages
// for unresolved addresses to every connection except the sender's.
func WithBroadcastUnresolved(enabled bool) Option {
	return func(r *Router) { r.broadcastUnresolved = enabled }
}

// NewRouter creates a router over registry
func NewRouter(registry *presence.Registry, log *logger.Logger, opts ...Option) *Router {
	r := &Router{registry: registry, log: log.WithComponent("delivery")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route picks the targets for msg without pushing anything.
func (r *Router) Route(msg *models.Message) Outcome {
	var out Outcome

	if msg.RecipientID != nil {
		if conn, ok := r.registry.Lookup(*msg.RecipientID); ok {
			out.Targets = append(out.Targets, Target{Conn: conn, Role: RoleRecipient})
		}
	} else if r.broadcastUnresolved {
		for userID, conn := range r.registry.Snapshot() {
			if userID != msg.SenderID {
				out.Targets = append(out.Targets, Target{Conn: conn, Role: RoleBroadcast})
			}
		}
	}

	selfAddressed := msg.RecipientID != nil && *msg.RecipientID == msg.SenderID
	if !selfAddressed {
		if conn, ok := r.registry.Lookup(msg.SenderID); ok {
			out.Targets = append(out.Targets, Target{Conn: conn, Role: RoleSender})
		}
	}
	return out
}

// Deliver routes msg and pushes it to every target. The sender copy is the
// canonical persisted form and carries the client's optimistic id.
func (r *Router) Deliver(msg *models.Message) Outcome {
	out := r.Route(msg)

	for _, t := range out.Targets {
		var queued bool
		switch t.Role {
		case RoleRecipient:
			queued = t.Conn.Push(ws.EventMessageDelivered, ws.MessageDeliveredPayload{Message: msg})
			out.DeliveredLive = queued
		case RoleSender:
			queued = t.Conn.Push(ws.EventMessageAccepted, ws.MessageAcceptedPayload{ClientID: msg.ClientID, Message: msg})
		case RoleBroadcast:
			queued = t.Conn.Push(ws.EventMessageBroadcast, ws.MessageBroadcastPayload{
				RecipientAddress: msg.RecipientAddress,
				Message:          msg,
			})
		}
		if !queued {
			r.log.Warn("live push dropped",
				"message_id", msg.ID,
				"role", string(t.Role),
				"conn_id", t.Conn.ConnID(),
			)
		}
	}
	return out
}

// Notify pushes an event to each online user in userIDs, once per identity.
func (r *Router) Notify(userIDs []uint, eventType string, payloadFor func(userID uint) any) {
	seen := make(map[uint]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if conn, ok := r.registry.Lookup(id); ok {
			conn.Push(eventType, payloadFor(id))
		}
	}
}

// PushTo sends one event to userID if online
func (r *Router) PushTo(userID uint, eventType string, payload any) bool {
	conn, ok := r.registry.Lookup(userID)
	if !ok {
		return false
	}
	return conn.Push(eventType, payload)
}
