package refunds

// Rank orders workflow stages. Unknown values rank below StatusBegin.
func (s Status) Rank() int {
	switch s {
	case StatusBegin:
		return 1
	case StatusInProgress:
		return 2
	case StatusPaid:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the known workflow stages.
func (s Status) Valid() bool { return s.Rank() > 0 }

// Valid reports whether d is a recorded outcome (accepted or rejected).
func (d Decision) Valid() bool {
	return d == DecisionAccepted || d == DecisionRejected
}

// Active reports whether the record is still awaiting client confirmation.
func (r Record) Active() bool { return !r.ClientValidated }

// Admissible reports whether a created event for r may enter the store.
// Records created with any decision other than accepted belong to the
// rejected-refund flow and are not tracked.
func (r Record) Admissible() bool {
	return r.Decision == DecisionNone || r.Decision == DecisionAccepted
}

// Balanced reports whether Total equals Subtotal + Tax + DeliveryFee.
func (r Record) Balanced() bool {
	return r.Subtotal.Add(r.Tax).Add(r.DeliveryFee).Equal(r.Total)
}

// NotOlderThan reports whether r is at least as recent as other.
// A zero UpdatedAt on either side cannot be compared and counts as recent.
func (r Record) NotOlderThan(other Record) bool {
	if r.UpdatedAt.IsZero() || other.UpdatedAt.IsZero() {
		return true
	}
	return !r.UpdatedAt.Before(other.UpdatedAt)
}
