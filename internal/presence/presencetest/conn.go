// Package presencetest provides a recording connection for tests.
package presencetest

import (
	"sync"
)

// Event is one recorded push
type Event struct {
	Type    string
	Payload any
}

// Conn records every push it accepts.
type Conn struct {
	ID string

	mu     sync.Mutex
	events []Event
	closed bool
}

// NewConn creates a recording connection
func NewConn(id string) *Conn {
	return &Conn{ID: id}
}

// ConnID implements presence.Conn
func (c *Conn) ConnID() string { return c.ID }

// Push implements presence.Conn
func (c *Conn) Push(eventType string, payload any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.events = append(c.events, Event{Type: eventType, Payload: payload})
	return true
}

// Close makes later pushes fail
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Events returns a copy of the recorded pushes
func (c *Conn) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// OfType returns recorded pushes of one event type
func (c *Conn) OfType(eventType string) []Event {
	var out []Event
	for _, e := range c.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Types lists recorded event types in order
func (c *Conn) Types() []string {
	var out []string
	for _, e := range c.Events() {
		out = append(out, e.Type)
	}
	return out
}

// Reset drops recorded events
func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}
