package reconcile

import (
	"strings"
	"unicode/utf8"

	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
)

// MinQueryLength is the shortest query that activates a search.
const MinQueryLength = 3

// SearchActive reports whether query is long enough to search.
func SearchActive(query string) bool {
	return utf8.RuneCountInString(query) >= MinQueryLength
}

// Search returns the records whose id, order id, refund id, user name or
// user email contains query, ignoring case, in insertion order. Queries
// shorter than MinQueryLength return an empty result.
func (s *Store) Search(query string) []refunds.Record {
	if !SearchActive(query) {
		return []refunds.Record{}
	}
	q := strings.ToLower(query)
	return s.filter(func(rec refunds.Record) bool {
		return matches(rec, q)
	})
}

func matches(rec refunds.Record, q string) bool {
	for _, field := range []string{rec.ID, rec.OrderID, rec.RefundID, rec.UserName, rec.UserEmail} {
		if field != "" && strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
