package reconcile

import (
	"errors"
	"fmt"
	"sync"

	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
)

// ErrUnknownRecord marks an updated event for an id the store has never seen.
// The event is still applied as an implicit create.
var ErrUnknownRecord = errors.New("updated event for unknown record")

// Policy decides whether an incoming payload may replace the stored record.
type Policy string

const (
	// PolicyTimestamp ignores payloads whose updatedAt is older than the
	// stored record's.
	PolicyTimestamp Policy = "timestamp"
	// PolicyLastApplied lets whichever payload is applied last win.
	PolicyLastApplied Policy = "last-applied"
)

// ParsePolicy maps a configuration value to a Policy. Empty means PolicyTimestamp.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyTimestamp:
		return PolicyTimestamp, nil
	case PolicyLastApplied:
		return PolicyLastApplied, nil
	default:
		return "", fmt.Errorf("unknown ordering policy %q", s)
	}
}

// Outcome reports what a merge did.
type Outcome int

const (
	OutcomeApplied  Outcome = iota // replaced an existing record
	OutcomeInserted                // first time the id was seen
	OutcomeIgnored                 // created event outside this flow
	OutcomeStale                   // older than the stored record
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeInserted:
		return "inserted"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Store is the in-memory record set. "All" is the map in insertion order;
// "Active" is derived from it on read, so the two views cannot drift apart.
// Records are never removed.
type Store struct {
	policy Policy

	mu      sync.RWMutex
	records map[string]refunds.Record
	order   []string
}

// NewStore returns an empty store using policy.
func NewStore(policy Policy) *Store {
	if policy == "" {
		policy = PolicyTimestamp
	}
	return &Store{
		policy:  policy,
		records: map[string]refunds.Record{},
	}
}

// Policy returns the ordering policy in force.
func (s *Store) Policy() Policy { return s.policy }

// ApplyCreated merges a created event. Only records without a decision or
// with an accepted decision are admitted; duplicates overwrite.
func (s *Store) ApplyCreated(rec refunds.Record) Outcome {
	if !rec.Admissible() {
		return OutcomeIgnored
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsert(rec)
}

// ApplyUpdated merges an updated event. OutcomeInserted means the id was
// unknown (see ErrUnknownRecord).
func (s *Store) ApplyUpdated(rec refunds.Record) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsert(rec)
}

// Hydrate merges a snapshot into the store under the same policy as events
// and returns how many rows were taken and how many were stale.
func (s *Store) Hydrate(records []refunds.Record) (taken, stale int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		if s.upsert(rec) == OutcomeStale {
			stale++
			continue
		}
		taken++
	}
	return taken, stale
}

// upsert must be called with s.mu held.
func (s *Store) upsert(rec refunds.Record) Outcome {
	existing, ok := s.records[rec.ID]
	if !ok {
		s.records[rec.ID] = rec
		s.order = append(s.order, rec.ID)
		return OutcomeInserted
	}
	if s.policy == PolicyTimestamp && !rec.NotOlderThan(existing) {
		return OutcomeStale
	}
	s.records[rec.ID] = rec
	return OutcomeApplied
}

// Get returns the record with id.
func (s *Store) Get(id string) (refunds.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

// All returns every record in insertion order.
func (s *Store) All() []refunds.Record {
	return s.filter(func(refunds.Record) bool { return true })
}

// Active returns the records still awaiting client confirmation, in insertion order.
func (s *Store) Active() []refunds.Record {
	return s.filter(refunds.Record.Active)
}

// Counts returns the sizes of All and Active.
func (s *Store) Counts() (all, active int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.Active() {
			active++
		}
	}
	return len(s.records), active
}

func (s *Store) filter(keep func(refunds.Record) bool) []refunds.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]refunds.Record, 0, len(s.order))
	for _, id := range s.order {
		if rec := s.records[id]; keep(rec) {
			out = append(out, rec)
		}
	}
	return out
}
