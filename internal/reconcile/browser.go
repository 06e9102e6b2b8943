package reconcile

import (
	"sync"

	"github.com/imrishuroy/go-refund-reconciler/internal/refunds"
)

// Browser is one consumer's view state over a Store: the current search
// query and the record selected for detail. Selecting a record clears the
// search.
type Browser struct {
	store *Store

	mu       sync.Mutex
	query    string
	selected string
}

// NewBrowser returns a Browser over store.
func NewBrowser(store *Store) *Browser {
	return &Browser{store: store}
}

// SetQuery updates the search query and returns its results.
func (b *Browser) SetQuery(query string) []refunds.Record {
	b.mu.Lock()
	b.query = query
	b.mu.Unlock()
	return b.store.Search(query)
}

// Query returns the current search query.
func (b *Browser) Query() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

// Searching reports whether results should be shown.
func (b *Browser) Searching() bool {
	return SearchActive(b.Query())
}

// Results re-evaluates the current query against the store.
func (b *Browser) Results() []refunds.Record {
	return b.store.Search(b.Query())
}

// Select picks a record for detail and clears the search.
func (b *Browser) Select(id string) (refunds.Record, bool) {
	rec, ok := b.store.Get(id)
	if !ok {
		return refunds.Record{}, false
	}
	b.mu.Lock()
	b.selected = id
	b.query = ""
	b.mu.Unlock()
	return rec, true
}

// Selected returns the latest state of the selected record.
func (b *Browser) Selected() (refunds.Record, bool) {
	b.mu.Lock()
	id := b.selected
	b.mu.Unlock()
	if id == "" {
		return refunds.Record{}, false
	}
	return b.store.Get(id)
}
