package unifiedmcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Push event names emitted by the server.
const (
	EventTaskUpdated  = "task_updated"
	EventTaskDeleted  = "task_deleted"
	EventAgentUpdated = "agent_updated"
)

// Handler wraps a push-event callback. Handlers are compared by pointer, so
// keep the value returned by NewHandler to unregister it later.
type Handler struct {
	fn func(data any) error
}

// NewHandler wraps fn. data is the decoded JSON payload of the push event.
func NewHandler(fn func(data any) error) *Handler {
	return &Handler{fn: fn}
}

// HandlerFunc wraps a callback that cannot fail.
func HandlerFunc(fn func(data any)) *Handler {
	return &Handler{fn: func(data any) error {
		fn(data)
		return nil
	}}
}

// On registers h for event. Registering the same handler twice makes it run
// twice per event.
func (c *Client) On(event string, h *Handler) {
	if h == nil {
		return
	}
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// Off removes the first registration of h for event.
func (c *Client) Off(event string, h *Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	list := c.handlers[event]
	for i, registered := range list {
		if registered != h {
			continue
		}
		c.handlers[event] = append(list[:i:i], list[i+1:]...)
		if len(c.handlers[event]) == 0 {
			delete(c.handlers, event)
		}
		return
	}
}

// dispatch runs on the connection's event goroutine, never the read loop, so
// handlers may call back into the client.
func (c *Client) dispatch(event string, raw json.RawMessage) {
	c.metrics.ObservePush(event)

	var data any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			c.log.Warn("undecodable push event payload", slog.String("event", event), slog.Any("error", err))
			return
		}
	}
	c.trigger(event, data)
}

func (c *Client) trigger(event string, data any) {
	c.handlersMu.RLock()
	handlers := append([]*Handler(nil), c.handlers[event]...)
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		if err := h.invoke(data); err != nil {
			c.log.Error("error in event handler", slog.String("event", event), slog.Any("error", err))
		}
	}
}

func (h *Handler) invoke(data any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	if h.fn == nil {
		return nil
	}
	return h.fn(data)
}
