package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-refund-reconciler/internal/backend"
	"github.com/imrishuroy/go-refund-reconciler/internal/events"
	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
)

type fakeLoader struct {
	mu      sync.Mutex
	records []refunds.Record
	err     error
	calls   int
	block   chan struct{}
}

func (f *fakeLoader) Load(ctx context.Context) ([]refunds.Record, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]refunds.Record(nil), f.records...), nil
}

func newEngine(loader backend.Loader) *Engine {
	return NewEngine(NewStore(PolicyTimestamp), loader, nil)
}

func TestEngine_Scenarios(t *testing.T) {
	r1 := refunds.Record{ID: "R1", OrderID: "O1", Status: refunds.StatusBegin, Decision: refunds.DecisionAccepted}
	e := newEngine(&fakeLoader{records: []refunds.Record{r1}})
	h := e.Handlers()

	// A
	require.NoError(t, e.Activate(context.Background()))
	require.Equal(t, []string{"R1"}, ids(e.Store().Active()))

	// B
	paid := r1
	paid.Status = refunds.StatusPaid
	h.OnUpdated(paid)
	require.Equal(t, 1, e.Drain())
	got, _ := e.Store().Get("R1")
	require.Equal(t, refunds.StatusPaid, got.Status)
	require.Equal(t, []string{"R1"}, ids(e.Store().Active()))

	// C
	validated := paid
	validated.ClientValidated = true
	h.OnUpdated(validated)
	e.Drain()
	require.Empty(t, e.Store().Active())
	got, ok := e.Store().Get("R1")
	require.True(t, ok)
	require.Equal(t, validated, got)
}

func TestEngine_RejectedCreatedBeforeSnapshot(t *testing.T) {
	e := newEngine(&fakeLoader{})
	e.Handlers().OnCreated(refunds.Record{ID: "R1", OrderID: "O1", Status: refunds.StatusBegin, Decision: refunds.DecisionRejected})

	require.Zero(t, e.Drain())
	require.Empty(t, e.Store().All())

	require.NoError(t, e.Activate(context.Background()))
	require.Empty(t, e.Store().All())
	require.EqualValues(t, 1, e.Stats().Ignored)
}

func TestEngine_BuffersUntilHydrated(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	snap := refunds.Record{ID: "R1", OrderID: "O1", Status: refunds.StatusBegin, UpdatedAt: now}
	e := newEngine(&fakeLoader{records: []refunds.Record{snap}})

	moved := snap
	moved.Status = refunds.StatusInProgress
	moved.UpdatedAt = now.Add(time.Second)
	e.Handlers().OnUpdated(moved)
	e.Handlers().OnCreated(refunds.Record{ID: "R2", OrderID: "O2", Status: refunds.StatusBegin})

	require.Zero(t, e.Drain())
	require.Equal(t, 2, e.Pending())
	require.False(t, e.Hydrated())

	require.NoError(t, e.Activate(context.Background()))
	require.True(t, e.Hydrated())
	require.Zero(t, e.Pending())

	got, _ := e.Store().Get("R1")
	require.Equal(t, refunds.StatusInProgress, got.Status)
	require.Equal(t, []string{"R1", "R2"}, ids(e.Store().All()))
}

func TestEngine_StaleEventIgnored(t *testing.T) {
	now := time.Now().UTC()
	snap := refunds.Record{ID: "R1", OrderID: "O1", Status: refunds.StatusPaid, Decision: refunds.DecisionAccepted, UpdatedAt: now}
	e := newEngine(&fakeLoader{records: []refunds.Record{snap}})
	require.NoError(t, e.Activate(context.Background()))

	old := snap
	old.Status = refunds.StatusInProgress
	old.Decision = refunds.DecisionNone
	old.UpdatedAt = now.Add(-time.Minute)
	e.Enqueue(events.Event{Kind: events.KindUpdated, Record: old})
	e.Drain()

	got, _ := e.Store().Get("R1")
	require.Equal(t, refunds.StatusPaid, got.Status)
	require.EqualValues(t, 1, e.Stats().Stale)
}

func TestEngine_UpdatedUnknownCounts(t *testing.T) {
	e := newEngine(&fakeLoader{})
	require.NoError(t, e.Activate(context.Background()))

	e.Handlers().OnUpdated(refunds.Record{ID: "R7", OrderID: "O7", Status: refunds.StatusInProgress})
	e.Drain()

	_, ok := e.Store().Get("R7")
	require.True(t, ok)
	stats := e.Stats()
	require.EqualValues(t, 1, stats.Unknown)
	require.EqualValues(t, 1, stats.Applied)
}

func TestEngine_ActivationFailureLeavesState(t *testing.T) {
	loader := &fakeLoader{err: &backend.NetworkError{Op: "load", StatusCode: 503, Err: backend.ErrUnexpectedStatus}}
	e := newEngine(loader)
	e.Handlers().OnCreated(refunds.Record{ID: "R1", OrderID: "O1", Status: refunds.StatusBegin})

	err := e.Activate(context.Background())
	var netErr *backend.NetworkError
	require.True(t, errors.As(err, &netErr))
	require.False(t, e.Hydrated())
	require.Empty(t, e.Store().All())
	require.Equal(t, 1, e.Pending())

	loader.mu.Lock()
	loader.err = nil
	loader.mu.Unlock()
	require.NoError(t, e.Activate(context.Background()))
	require.Equal(t, []string{"R1"}, ids(e.Store().All()))
	require.Equal(t, 2, loader.calls)
}

func TestEngine_SkipsInvalidSnapshotRows(t *testing.T) {
	e := newEngine(&fakeLoader{records: []refunds.Record{
		{ID: "R1", OrderID: "O1", Status: refunds.StatusBegin},
		{ID: "", OrderID: "O2", Status: refunds.StatusBegin},
		{ID: "R3", OrderID: "O3", Status: refunds.StatusPaid},
	}})
	require.NoError(t, e.Activate(context.Background()))
	require.Equal(t, []string{"R1"}, ids(e.Store().All()))
}

func TestEngine_ConcurrentActivation(t *testing.T) {
	loader := &fakeLoader{block: make(chan struct{})}
	e := newEngine(loader)

	done := make(chan error, 1)
	go func() { done <- e.Activate(context.Background()) }()

	require.Eventually(t, func() bool {
		loader.mu.Lock()
		defer loader.mu.Unlock()
		return loader.calls == 1
	}, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, e.Activate(context.Background()), ErrActivationInProgress)

	close(loader.block)
	require.NoError(t, <-done)
	require.True(t, e.Hydrated())
}

func TestEngine_ReactivationMerges(t *testing.T) {
	loader := &fakeLoader{records: []refunds.Record{{ID: "R1", OrderID: "O1", Status: refunds.StatusBegin}}}
	e := newEngine(loader)
	require.NoError(t, e.Activate(context.Background()))

	loader.mu.Lock()
	loader.records = []refunds.Record{{ID: "R2", OrderID: "O2", Status: refunds.StatusBegin}}
	loader.mu.Unlock()
	require.NoError(t, e.Activate(context.Background()))

	require.Equal(t, []string{"R1", "R2"}, ids(e.Store().All()))
}

func TestEngine_RunDrainsFromHub(t *testing.T) {
	e := newEngine(&fakeLoader{})
	require.NoError(t, e.Activate(context.Background()))

	hub := events.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := hub.Subscribe(ctx, e.Handlers())
	require.NoError(t, err)
	defer sub.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- e.Run(ctx) }()

	hub.Publish(events.Event{Kind: events.KindCreated, Record: refunds.Record{ID: "R1", OrderID: "O1", Status: refunds.StatusBegin}})
	_, err = hub.PublishRaw([]byte(`{"event":"refund-payment-created"}`))
	require.Error(t, err)

	require.Eventually(t, func() bool {
		_, ok := e.Store().Get("R1")
		return ok
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return e.Stats().Malformed == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-runErr, context.Canceled)
}
