// Package notify – subscription index.
//
// This file implements the in-memory projection that maps a media item's
// backend reference to the set of users who should be notified about it.
// The index is owned here, guarded by a reader-writer lock, and has a
// defined write discipline: Rebuild replaces the whole projection from the
// store; Add/Remove/SetAuto apply incremental updates as the request
// workflow and preference commands mutate the underlying rows.
package notify

import (
	"context"
	"sort"
	"sync"

	"gorm.io/gorm"

	"github.com/tbourn/go-media-notify/internal/repo"
)

// SubscriptionIndex maps backend references to subscriber sets, plus the
// set of auto-subscribe users who receive every notification. Safe for
// concurrent use.
type SubscriptionIndex struct {
	mu    sync.RWMutex
	byRef map[string]map[string]struct{} // backend ref -> user ids
	auto  map[string]struct{}            // auto-subscribe user ids
}

// NewSubscriptionIndex returns an empty index. Call Rebuild to load the
// projection from the store before routing events.
func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{
		byRef: make(map[string]map[string]struct{}),
		auto:  make(map[string]struct{}),
	}
}

// Rebuild replaces the projection with the current store contents:
// all subscription rows (joined to their item's backend ref) and all
// auto-subscribe users. The swap is atomic with respect to readers.
func (ix *SubscriptionIndex) Rebuild(ctx context.Context, db *gorm.DB) error {
	subs, err := repo.ListSubscriptions(ctx, db)
	if err != nil {
		return err
	}
	autos, err := repo.ListAutoSubscribers(ctx, db)
	if err != nil {
		return err
	}

	byRef := make(map[string]map[string]struct{}, len(subs))
	for _, s := range subs {
		ref := s.MediaItem.BackendRef
		if ref == "" {
			continue
		}
		set, ok := byRef[ref]
		if !ok {
			set = make(map[string]struct{})
			byRef[ref] = set
		}
		set[s.UserID] = struct{}{}
	}
	auto := make(map[string]struct{}, len(autos))
	for _, id := range autos {
		auto[id] = struct{}{}
	}

	ix.mu.Lock()
	ix.byRef = byRef
	ix.auto = auto
	ix.mu.Unlock()
	return nil
}

// Add records that userID subscribed to the item identified by ref.
func (ix *SubscriptionIndex) Add(userID, ref string) {
	if userID == "" || ref == "" {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	set, ok := ix.byRef[ref]
	if !ok {
		set = make(map[string]struct{})
		ix.byRef[ref] = set
	}
	set[userID] = struct{}{}
}

// Remove drops userID's subscription for ref, if present.
func (ix *SubscriptionIndex) Remove(userID, ref string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if set, ok := ix.byRef[ref]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(ix.byRef, ref)
		}
	}
}

// RemoveRef drops the whole subscriber set for ref. Called when the media
// item itself is deleted.
func (ix *SubscriptionIndex) RemoveRef(ref string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.byRef, ref)
}

// SetAuto adds or removes userID from the auto-subscribe set.
func (ix *SubscriptionIndex) SetAuto(userID string, on bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if on {
		ix.auto[userID] = struct{}{}
	} else {
		delete(ix.auto, userID)
	}
}

// DropUser removes userID everywhere (explicit opt-out).
func (ix *SubscriptionIndex) DropUser(userID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.auto, userID)
	for ref, set := range ix.byRef {
		delete(set, userID)
		if len(set) == 0 {
			delete(ix.byRef, ref)
		}
	}
}

// Subscribers returns the union of explicit subscribers for ref and the
// auto-subscribe set, sorted for deterministic fan-out order.
func (ix *SubscriptionIndex) Subscribers(ref string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	seen := make(map[string]struct{}, len(ix.auto))
	for id := range ix.byRef[ref] {
		seen[id] = struct{}{}
	}
	for id := range ix.auto {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
