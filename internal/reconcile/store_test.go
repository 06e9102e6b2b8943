package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
)

func rec(id string, status refunds.Status, validated bool) refunds.Record {
	return refunds.Record{
		ID:              id,
		OrderID:         "ORD-" + id,
		Status:          status,
		ClientValidated: validated,
	}
}

func ids(records []refunds.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyTimestamp, p)

	p, err = ParsePolicy("last-applied")
	require.NoError(t, err)
	require.Equal(t, PolicyLastApplied, p)

	_, err = ParsePolicy("newest")
	require.Error(t, err)
}

func TestStore_CreatedAdmission(t *testing.T) {
	s := NewStore(PolicyTimestamp)

	accepted := rec("R1", refunds.StatusBegin, false)
	accepted.Decision = refunds.DecisionAccepted
	rejected := rec("R2", refunds.StatusBegin, false)
	rejected.Decision = refunds.DecisionRejected

	require.Equal(t, OutcomeInserted, s.ApplyCreated(rec("R0", refunds.StatusBegin, false)))
	require.Equal(t, OutcomeInserted, s.ApplyCreated(accepted))
	require.Equal(t, OutcomeIgnored, s.ApplyCreated(rejected))

	require.Equal(t, []string{"R0", "R1"}, ids(s.All()))
	_, ok := s.Get("R2")
	require.False(t, ok)
}

func TestStore_CreatedIsIdempotent(t *testing.T) {
	s := NewStore(PolicyTimestamp)
	r := rec("R1", refunds.StatusBegin, false)

	s.ApplyCreated(r)
	once := s.All()
	require.Equal(t, OutcomeApplied, s.ApplyCreated(r))
	require.Equal(t, once, s.All())
}

func TestStore_ActiveIsDerivedFromAll(t *testing.T) {
	s := NewStore(PolicyLastApplied)
	s.ApplyCreated(rec("R1", refunds.StatusBegin, false))
	s.ApplyCreated(rec("R2", refunds.StatusInProgress, true))
	s.ApplyCreated(rec("R3", refunds.StatusPaid, false))

	require.Equal(t, []string{"R1", "R3"}, ids(s.Active()))

	s.ApplyUpdated(rec("R1", refunds.StatusInProgress, true))
	s.ApplyUpdated(rec("R2", refunds.StatusInProgress, false))

	require.Equal(t, []string{"R2", "R3"}, ids(s.Active()))
	require.Equal(t, []string{"R1", "R2", "R3"}, ids(s.All()))

	all, active := s.Counts()
	require.Equal(t, 3, all)
	require.Equal(t, 2, active)
}

func TestStore_UpdatedUnknownInserts(t *testing.T) {
	s := NewStore(PolicyTimestamp)
	require.Equal(t, OutcomeInserted, s.ApplyUpdated(rec("R9", refunds.StatusInProgress, false)))
	got, ok := s.Get("R9")
	require.True(t, ok)
	require.Equal(t, refunds.StatusInProgress, got.Status)
}

func TestStore_TimestampPolicyIgnoresStale(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(PolicyTimestamp)

	newer := rec("R1", refunds.StatusPaid, false)
	newer.Decision = refunds.DecisionAccepted
	newer.UpdatedAt = now
	older := rec("R1", refunds.StatusInProgress, false)
	older.UpdatedAt = now.Add(-time.Minute)

	s.ApplyUpdated(newer)
	require.Equal(t, OutcomeStale, s.ApplyUpdated(older))

	got, _ := s.Get("R1")
	require.Equal(t, refunds.StatusPaid, got.Status)

	same := newer
	same.ClientValidated = true
	require.Equal(t, OutcomeApplied, s.ApplyUpdated(same))
	got, _ = s.Get("R1")
	require.True(t, got.ClientValidated)
}

func TestStore_LastAppliedPolicyRegresses(t *testing.T) {
	now := time.Now()
	s := NewStore(PolicyLastApplied)

	newer := rec("R1", refunds.StatusPaid, false)
	newer.UpdatedAt = now
	older := rec("R1", refunds.StatusInProgress, false)
	older.UpdatedAt = now.Add(-time.Hour)

	s.ApplyUpdated(newer)
	require.Equal(t, OutcomeApplied, s.ApplyUpdated(older))
	got, _ := s.Get("R1")
	require.Equal(t, refunds.StatusInProgress, got.Status)
}

func TestStore_HydrateMergesWithoutDeleting(t *testing.T) {
	s := NewStore(PolicyTimestamp)
	s.ApplyCreated(rec("R1", refunds.StatusBegin, false))

	rejected := rec("R2", refunds.StatusPaid, false)
	rejected.Decision = refunds.DecisionRejected
	taken, stale := s.Hydrate([]refunds.Record{rejected, rec("R3", refunds.StatusBegin, false)})

	require.Equal(t, 2, taken)
	require.Zero(t, stale)
	require.Equal(t, []string{"R1", "R2", "R3"}, ids(s.All()))
}

func TestStore_UpdatedIsIdempotent(t *testing.T) {
	for _, policy := range []Policy{PolicyTimestamp, PolicyLastApplied} {
		t.Run(string(policy), func(t *testing.T) {
			s := NewStore(policy)
			s.ApplyCreated(rec("R0", refunds.StatusBegin, false))

			r := rec("R1", refunds.StatusPaid, true)
			r.Decision = refunds.DecisionAccepted
			r.UpdatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

			s.ApplyUpdated(r)
			all, active := s.All(), s.Active()

			require.Equal(t, OutcomeApplied, s.ApplyUpdated(r))
			require.Equal(t, all, s.All())
			require.Equal(t, active, s.Active())
		})
	}
}
