package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-refund-reconciler/internal/backend"
	"github.com/imrishuroy/go-refund-reconciler/internal/events"
	"github.com/imrishuroy/go-refund-reconciler/internal/logger"
	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
	"github.com/imrishuroy/go-refund-reconciler/internal/validation"
)

// ErrActivationInProgress is returned by Activate while another activation
// is still loading the snapshot.
var ErrActivationInProgress = errors.New("activation already in progress")

// Stats is a point-in-time view of the engine.
type Stats struct {
	Hydrated  bool  `json:"hydrated"`
	All       int   `json:"all"`
	Active    int   `json:"active"`
	Pending   int   `json:"pending"`
	Applied   int64 `json:"applied"`
	Ignored   int64 `json:"ignored"`
	Stale     int64 `json:"stale"`
	Unknown   int64 `json:"unknown"`
	Malformed int64 `json:"malformed"`
}

// Engine owns a Store and feeds it from a snapshot loader and a queue of
// push events. Channel callbacks only enqueue; events are applied by Drain,
// either called directly or by the Run loop. Events queued before the first
// successful activation are held and replayed once the snapshot is in.
type Engine struct {
	store    *Store
	loader   backend.Loader
	log      *zap.Logger
	validate *validatorv10.Validate

	qmu    sync.Mutex
	queue  []events.Event
	notify chan struct{}

	drainMu    sync.Mutex
	hydrated   atomic.Bool
	activating atomic.Bool

	applied   atomic.Int64
	ignored   atomic.Int64
	stale     atomic.Int64
	unknown   atomic.Int64
	malformed atomic.Int64
}

// NewEngine returns an engine over store that hydrates from loader.
func NewEngine(store *Store, loader backend.Loader, log *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		loader:   loader,
		log:      logger.OrNop(log),
		validate: validation.New(),
		notify:   make(chan struct{}, 1),
	}
}

// Store returns the engine's store for read-only views.
func (e *Engine) Store() *Store { return e.store }

// Hydrated reports whether a snapshot has been loaded.
func (e *Engine) Hydrated() bool { return e.hydrated.Load() }

// Handlers returns channel handlers that enqueue into this engine.
func (e *Engine) Handlers() events.Handlers {
	return events.Handlers{
		OnCreated: func(rec refunds.Record) {
			e.Enqueue(events.Event{Kind: events.KindCreated, Record: rec})
		},
		OnUpdated: func(rec refunds.Record) {
			e.Enqueue(events.Event{Kind: events.KindUpdated, Record: rec})
		},
		OnMalformed: func(error) {
			e.malformed.Add(1)
		},
	}
}

// Enqueue queues ev for the next Drain.
func (e *Engine) Enqueue(ev events.Event) {
	e.qmu.Lock()
	e.queue = append(e.queue, ev)
	e.qmu.Unlock()

	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued events.
func (e *Engine) Pending() int {
	e.qmu.Lock()
	defer e.qmu.Unlock()
	return len(e.queue)
}

// Drain applies every queued event in arrival order and returns how many
// were applied. Before hydration it leaves the queue untouched.
func (e *Engine) Drain() int {
	e.drainMu.Lock()
	defer e.drainMu.Unlock()
	if !e.hydrated.Load() {
		return 0
	}

	e.qmu.Lock()
	batch := e.queue
	e.queue = nil
	e.qmu.Unlock()

	for _, ev := range batch {
		e.apply(ev)
	}
	return len(batch)
}

// Activate loads the snapshot, merges it and replays queued events. On
// failure the store is untouched and the loader's error is returned so the
// caller can retry. Calling it again after success re-syncs from a fresh
// snapshot.
func (e *Engine) Activate(ctx context.Context) error {
	if !e.activating.CompareAndSwap(false, true) {
		return ErrActivationInProgress
	}
	defer e.activating.Store(false)

	records, err := e.loader.Load(ctx)
	if err != nil {
		e.log.Warn("snapshot load failed", zap.Error(err))
		return err
	}

	valid := make([]refunds.Record, 0, len(records))
	for _, rec := range records {
		if err := e.validate.Struct(rec); err != nil {
			e.log.Warn("skipping invalid snapshot row", zap.String("id", rec.ID), zap.Error(err))
			continue
		}
		valid = append(valid, rec)
	}

	e.drainMu.Lock()
	taken, stale := e.store.Hydrate(valid)
	first := !e.hydrated.Swap(true)
	e.drainMu.Unlock()

	replayed := e.Drain()
	all, active := e.store.Counts()
	e.log.Info("snapshot hydrated",
		zap.Bool("first", first),
		zap.Int("rows", len(records)),
		zap.Int("taken", taken),
		zap.Int("stale", stale),
		zap.Int("replayed", replayed),
		zap.Int("all", all),
		zap.Int("active", active),
	)
	return nil
}

// Run is the reconciliation task: it drains the queue whenever events
// arrive until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.notify:
			e.Drain()
		}
	}
}

// Stats returns counters and view sizes.
func (e *Engine) Stats() Stats {
	all, active := e.store.Counts()
	return Stats{
		Hydrated:  e.Hydrated(),
		All:       all,
		Active:    active,
		Pending:   e.Pending(),
		Applied:   e.applied.Load(),
		Ignored:   e.ignored.Load(),
		Stale:     e.stale.Load(),
		Unknown:   e.unknown.Load(),
		Malformed: e.malformed.Load(),
	}
}

func (e *Engine) apply(ev events.Event) {
	rec := ev.Record
	log := e.log.With(zap.String("id", rec.ID), zap.String("event", string(ev.Kind)))

	var outcome Outcome
	switch ev.Kind {
	case events.KindCreated:
		outcome = e.store.ApplyCreated(rec)
	case events.KindUpdated:
		outcome = e.store.ApplyUpdated(rec)
		if outcome == OutcomeInserted {
			e.unknown.Add(1)
			log.Warn("applied as implicit create", zap.Error(ErrUnknownRecord))
		}
	default:
		log.Error("dropping event of unknown kind")
		return
	}

	switch outcome {
	case OutcomeApplied, OutcomeInserted:
		e.applied.Add(1)
		if !rec.Balanced() {
			log.Warn("refund amounts do not add up",
				zap.String("total", rec.Total.String()),
				zap.String("subtotal", rec.Subtotal.String()),
				zap.String("tax", rec.Tax.String()),
				zap.String("delivery_fee", rec.DeliveryFee.String()),
			)
		}
	case OutcomeIgnored:
		e.ignored.Add(1)
	case OutcomeStale:
		e.stale.Add(1)
		log.Info("ignored stale event", zap.Time("updated_at", rec.UpdatedAt))
	}
	log.Debug("event merged", zap.Stringer("outcome", outcome))
}
