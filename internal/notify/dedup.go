// Package notify – dedup filter.
//
// This file implements the idempotency filter that sits between the
// normalizer and the router. It keeps a bounded in-memory set of recently
// seen event fingerprints with a time-to-live, pruned opportunistically on
// insert. The check-and-insert is atomic under a mutex so two identical
// events in flight concurrently can never both pass.
//
// After the TTL expires a replayed fingerprint is accepted again; backends
// may legitimately resend events for operational reasons, and redelivery
// outside the window is the documented trade-off rather than a bug.
package notify

import (
	"sync"
	"time"
)

// Verdict is the dedup filter's decision for one fingerprint.
type Verdict int

const (
	// Accept means the fingerprint was not seen within the TTL window and
	// has now been recorded.
	Accept Verdict = iota
	// Duplicate means the fingerprint was already recorded within the TTL
	// window; the event must not be delivered again.
	Duplicate
)

// String returns the lowercase wire name of the verdict.
func (v Verdict) String() string {
	if v == Duplicate {
		return "duplicate"
	}
	return "accept"
}

// pruneEvery is the number of Check calls between opportunistic sweeps of
// expired fingerprints. Pruning on a counter rather than a timer keeps the
// filter allocation-free on the hot path.
const pruneEvery = 1024

// DedupFilter is a TTL-bounded set of event fingerprints with atomic
// check-and-insert. Safe for concurrent use.
type DedupFilter struct {
	ttl time.Duration

	mu     sync.Mutex
	seen   map[string]time.Time // fingerprint -> first seen
	checks uint64

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewDedupFilter constructs a filter with the given TTL window.
// TTL values <= 0 are coerced to 24h.
func NewDedupFilter(ttl time.Duration) *DedupFilter {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupFilter{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Check records fp and returns Accept if it was not seen within the TTL
// window, or Duplicate otherwise. The check and the insert happen under one
// lock acquisition, so concurrent submissions of the same fingerprint
// resolve to exactly one Accept.
func (f *DedupFilter) Check(fp string) Verdict {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	// Opportunistic prune before touching the requested entry so an expired
	// fingerprint can be re-accepted on the same call that evicts it.
	f.checks++
	if f.checks >= pruneEvery {
		for k, firstSeen := range f.seen {
			if now.Sub(firstSeen) >= f.ttl {
				delete(f.seen, k)
			}
		}
		f.checks = 0
	}

	if firstSeen, ok := f.seen[fp]; ok {
		if now.Sub(firstSeen) < f.ttl {
			return Duplicate
		}
		// Expired but not yet pruned: re-arm the window.
	}
	f.seen[fp] = now
	return Accept
}

// Seed records a fingerprint observed at a given time without producing a
// verdict. Used to warm the filter from persisted receipts at startup;
// entries already past the TTL are ignored.
func (f *DedupFilter) Seed(fp string, firstSeen time.Time) {
	now := f.now()
	if now.Sub(firstSeen) >= f.ttl {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.seen[fp]; !ok {
		f.seen[fp] = firstSeen
	}
}

// Forget evicts a fingerprint so the next Check accepts it again. Called
// when processing failed after the fingerprint was recorded, so the backend's
// retry of the same payload is not swallowed as a duplicate.
func (f *DedupFilter) Forget(fp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.seen, fp)
}

// Len reports the number of fingerprints currently held (including entries
// awaiting lazy eviction).
func (f *DedupFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}
