package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
)

// Hub is an in-process Channel. Pushes arrive through Publish (decoded
// events) or PublishRaw (wire payloads, e.g. from a webhook).
type Hub struct {
	log *zap.Logger

	pubMu sync.Mutex // serialises publishes so every subscriber sees FIFO order
	mu    sync.RWMutex
	subs  map[string]*Subscription
	stops map[string]func() bool
}

// NewHub returns an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:   logger.OrNop(log),
		subs:  map[string]*Subscription{},
		stops: map[string]func() bool{},
	}
}

// Subscribe registers h. The subscription is closed when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, handlers Handlers) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscription(handlers, nil)
	sub.onClose = func() { h.remove(sub.id) }

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.stops[sub.id] = context.AfterFunc(ctx, sub.Close)
	h.mu.Unlock()

	h.log.Debug("hub subscription opened", zap.String("subscription", sub.id))
	return sub, nil
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if stop, ok := h.stops[id]; ok {
		stop()
		delete(h.stops, id)
	}
	delete(h.subs, id)
}

// Publish delivers ev to every open subscription and returns how many received it.
func (h *Hub) Publish(ev Event) int {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	delivered := 0
	for _, sub := range h.snapshot() {
		if sub.deliver(ev) {
			delivered++
		}
	}
	return delivered
}

// PublishRaw decodes a wire payload and publishes it. Malformed payloads are
// logged, reported to subscribers' OnMalformed and returned.
func (h *Hub) PublishRaw(body []byte) (Event, error) {
	ev, err := Decode(body)
	if err != nil {
		h.log.Warn("rejected malformed push payload", zap.Error(err))
		h.pubMu.Lock()
		for _, sub := range h.snapshot() {
			sub.reject(err)
		}
		h.pubMu.Unlock()
		return Event{}, err
	}
	h.Publish(ev)
	return ev, nil
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) snapshot() []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}
