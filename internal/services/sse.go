package services

import (
	"context"
	"sync"

	"github.com/grantflow/backend/internal/lifecycle"
)

// NoticeHub fans committed notices out to connected SSE clients.
type NoticeHub struct {
	clients map[string]chan lifecycle.Notice
	mu      sync.RWMutex
}

func NewNoticeHub() *NoticeHub {
	return &NoticeHub{
		clients: make(map[string]chan lifecycle.Notice),
	}
}

// Subscribe registers a new client and returns a channel for receiving notices
func (h *NoticeHub) Subscribe(clientID string) <-chan lifecycle.Notice {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan lifecycle.Notice, 100)
	h.clients[clientID] = ch
	return ch
}

// Unsubscribe removes a client from the hub
func (h *NoticeHub) Unsubscribe(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.clients[clientID]; ok {
		close(ch)
		delete(h.clients, clientID)
	}
}

// Publish broadcasts a notice to all connected clients. A client whose
// buffer is full misses it.
func (h *NoticeHub) Publish(n lifecycle.Notice) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.clients {
		select {
		case ch <- n:
		default:
		}
	}
}

// Notify makes the hub a Notifier. Message and recipients stay server side.
func (h *NoticeHub) Notify(_ context.Context, notices []lifecycle.Notice) {
	for _, n := range notices {
		n.Message = ""
		n.Recipients = nil
		h.Publish(n)
	}
}

func (h *NoticeHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notifiers delivers to every notifier in order.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, notices []lifecycle.Notice) {
	for _, n := range ns {
		n.Notify(ctx, notices)
	}
}
