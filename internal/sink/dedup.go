package sink

import "time"

// Dedup window sizing.
const (
	// dedupWindowSize bounds the in-memory key set.
	dedupWindowSize = 1000

	// dedupEvictBatch is how many of the oldest keys go on overflow.
	dedupEvictBatch = 100
)

// dedupKey identifies one reading for duplicate suppression.
type dedupKey struct {
	haystackName string
	second       int64
}

// newDedupKey truncates the reading time to the second.
func newDedupKey(haystackName string, ts time.Time) dedupKey {
	return dedupKey{haystackName: haystackName, second: ts.Unix()}
}

// dedupWindow is a bounded seen-set with FIFO eviction.
//
// Owned exclusively by the bridge's message handler path; the caller
// serialises access.
type dedupWindow struct {
	seen  map[dedupKey]struct{}
	order []dedupKey
}

// newDedupWindow creates an empty window.
func newDedupWindow() *dedupWindow {
	return &dedupWindow{seen: make(map[dedupKey]struct{}, dedupWindowSize)}
}

// Observe records the key and reports whether it was already present.
// On overflow the oldest keys are evicted in a batch.
func (w *dedupWindow) Observe(key dedupKey) (duplicate bool) {
	if _, ok := w.seen[key]; ok {
		return true
	}

	w.seen[key] = struct{}{}
	w.order = append(w.order, key)

	if len(w.seen) > dedupWindowSize {
		evict := dedupEvictBatch
		if evict > len(w.order) {
			evict = len(w.order)
		}
		for _, old := range w.order[:evict] {
			delete(w.seen, old)
		}
		w.order = w.order[evict:]
	}
	return false
}

// Len returns the number of tracked keys.
func (w *dedupWindow) Len() int {
	return len(w.seen)
}
