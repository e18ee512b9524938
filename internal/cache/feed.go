package cache

import "sync"

// Feed is the append-only page sequence for one feed key. Items accumulate in
// fetch order and are never re-sorted client-side; Reset discards everything
// and bumps the epoch so a late page fetched for the old generation is not
// applied.
type Feed[T any] struct {
	mu      sync.Mutex
	items   []T
	page    int
	hasNext bool
	epoch   uint64
}

// NewFeed returns an empty feed: no items, next page 1.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{hasNext: true}
}

// Snapshot returns the accumulated items (copy), whether a next page exists,
// and the number of pages loaded.
func (f *Feed[T]) Snapshot() (items []T, hasNext bool, pages int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]T(nil), f.items...), f.hasNext, f.page
}

// NextPage returns the page number to fetch next (1-based) and the current
// epoch to pass back to Append.
func (f *Feed[T]) NextPage() (page int, epoch uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page + 1, f.epoch
}

// Append adds a fetched page in order. The page is dropped (returning false)
// when epoch is stale — the feed was reset while the request was in flight —
// or when the page is not the next one in sequence (a duplicate concurrent
// fetch lost the race).
func (f *Feed[T]) Append(epoch uint64, page int, items []T, hasNext bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if epoch != f.epoch || page != f.page+1 {
		return false
	}
	f.items = append(f.items, items...)
	f.page = page
	f.hasNext = hasNext
	return true
}

// Loaded reports whether at least one page has been applied.
func (f *Feed[T]) Loaded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page > 0
}

// HasNext reports whether the server indicated another page.
func (f *Feed[T]) HasNext() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasNext
}

// Reset empties the feed before the first page of a new query arrives.
func (f *Feed[T]) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
	f.page = 0
	f.hasNext = true
	f.epoch++
}
