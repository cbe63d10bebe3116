package alert

import (
	"sync"

	"github.com/leowzhang/fundwatch/internal/model"
)

// DefaultFeedCapacity bounds the notification feed.
const DefaultFeedCapacity = 50

// Feed is the bounded, ordered notification store: newest first, oldest
// dropped silently once the capacity is reached. All operations are total
// and synchronous.
type Feed struct {
	mu       sync.Mutex
	items    []model.Notification
	capacity int
}

// NewFeed creates a feed. Capacity values below 1 use DefaultFeedCapacity.
func NewFeed(capacity int) *Feed {
	if capacity < 1 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{
		items:    make([]model.Notification, 0, capacity),
		capacity: capacity,
	}
}

// Add prepends a notification, evicting the oldest past capacity.
func (f *Feed) Add(n model.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items = append([]model.Notification{n}, f.items...)
	if len(f.items) > f.capacity {
		f.items = f.items[:f.capacity]
	}
}

// MarkRead sets one item's read flag. No-op when the ID is absent; reports
// whether an item changed.
func (f *Feed) MarkRead(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.items {
		if f.items[i].ID == id {
			if f.items[i].Read {
				return false
			}
			f.items[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead marks every item read and returns how many changed.
func (f *Feed) MarkAllRead() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	changed := 0
	for i := range f.items {
		if !f.items[i].Read {
			f.items[i].Read = true
			changed++
		}
	}
	return changed
}

// Clear empties the feed.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = f.items[:0]
}

// UnreadCount returns the number of unread items.
func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for i := range f.items {
		if !f.items[i].Read {
			count++
		}
	}
	return count
}

// Len returns the number of stored items.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Snapshot returns a copy of the feed, newest first.
func (f *Feed) Snapshot() []model.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]model.Notification, len(f.items))
	copy(out, f.items)
	return out
}
