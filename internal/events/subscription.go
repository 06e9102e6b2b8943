package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
)

// Handlers receive decoded events. OnMalformed is optional and is told about
// payloads rejected at the channel boundary.
type Handlers struct {
	OnCreated   func(refunds.Record)
	OnUpdated   func(refunds.Record)
	OnMalformed func(error)
}

// Channel delivers push events to subscribers in FIFO order.
type Channel interface {
	Subscribe(ctx context.Context, h Handlers) (*Subscription, error)
}

// Subscription is a live registration on a Channel.
//
// Close is idempotent and may be called after the channel has ended or from
// inside a handler. Once Close returns no new delivery starts; a handler
// already running finishes normally.
type Subscription struct {
	id       string
	handlers Handlers
	onClose  func()

	deliverMu sync.Mutex // serializes deliveries
	closed    atomic.Bool

	done      chan struct{}
	endOnce   sync.Once
	closeOnce sync.Once
}

func newSubscription(h Handlers, onClose func()) *Subscription {
	return &Subscription{
		id:       uuid.NewString(),
		handlers: h,
		onClose:  onClose,
		done:     make(chan struct{}),
	}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Done is closed once the subscription is closed or its channel has ended.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops deliveries. Safe to call any number of times.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.onClose != nil {
			s.onClose()
		}
		s.end()
	})
}

func (s *Subscription) end() {
	s.endOnce.Do(func() { close(s.done) })
}

// deliver hands ev to the matching handler. It reports false when the
// subscription is closed and nothing was delivered.
func (s *Subscription) deliver(ev Event) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.closed.Load() {
		return false
	}
	switch ev.Kind {
	case KindCreated:
		if s.handlers.OnCreated != nil {
			s.handlers.OnCreated(ev.Record)
		}
	case KindUpdated:
		if s.handlers.OnUpdated != nil {
			s.handlers.OnUpdated(ev.Record)
		}
	}
	return true
}

func (s *Subscription) reject(err error) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if s.closed.Load() || s.handlers.OnMalformed == nil {
		return
	}
	s.handlers.OnMalformed(err)
}
