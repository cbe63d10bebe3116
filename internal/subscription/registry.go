package subscription

import (
	"sort"
	"sync"
)

// Kind discriminates the subscription key union.
type Kind uint8

const (
	KindFund Kind = iota + 1
	KindMarketIndex
	KindNotifications
)

// Key identifies one desired subscription. Equality is by Kind plus ID;
// the ID is empty for the notifications channel.
type Key struct {
	Kind Kind
	ID   string
}

// FundKey returns the key for fund NAV updates.
func FundKey(id string) Key {
	return Key{Kind: KindFund, ID: id}
}

// MarketIndexKey returns the key for market index updates.
func MarketIndexKey(code string) Key {
	return Key{Kind: KindMarketIndex, ID: code}
}

// NotificationsKey returns the key for the server notification channel.
func NotificationsKey() Key {
	return Key{Kind: KindNotifications}
}

// String renders the key for status snapshots.
func (k Key) String() string {
	switch k.Kind {
	case KindFund:
		return "fund:" + k.ID
	case KindMarketIndex:
		return "index:" + k.ID
	case KindNotifications:
		return "notifications"
	}
	return "unknown"
}

// Registry is the authoritative desired-subscription set. It holds what the
// caller wants live, independent of what the transport currently believes is
// subscribed; the transport is assumed to forget everything on disconnect,
// so callers re-issue the full contents after each reconnect.
//
// Pure set semantics: Add and Remove are idempotent and have no side effects
// beyond the set itself.
type Registry struct {
	mu   sync.RWMutex
	keys map[Key]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: make(map[Key]struct{})}
}

// Add inserts keys and returns how many were not already present.
func (r *Registry) Add(keys ...Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, k := range keys {
		if _, ok := r.keys[k]; !ok {
			r.keys[k] = struct{}{}
			added++
		}
	}
	return added
}

// Remove deletes keys and returns how many were present.
func (r *Registry) Remove(keys ...Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, k := range keys {
		if _, ok := r.keys[k]; ok {
			delete(r.keys, k)
			removed++
		}
	}
	return removed
}

// Contains reports whether k is in the set.
func (r *Registry) Contains(k Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.keys[k]
	return ok
}

// Len returns the number of keys in the set.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// Snapshot returns a copy of the current contents.
func (r *Registry) Snapshot() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Key, 0, len(r.keys))
	for k := range r.keys {
		out = append(out, k)
	}
	return out
}

// Strings returns the rendered keys, sorted, for status snapshots.
func (r *Registry) Strings() []string {
	keys := r.Snapshot()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}

// FundIDs returns the IDs of all fund keys.
func (r *Registry) FundIDs() []string {
	return r.idsOf(KindFund)
}

// MarketIndices returns the codes of all market index keys.
func (r *Registry) MarketIndices() []string {
	return r.idsOf(KindMarketIndex)
}

// HasNotifications reports whether the notification channel is desired.
func (r *Registry) HasNotifications() bool {
	return r.Contains(NotificationsKey())
}

func (r *Registry) idsOf(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for k := range r.keys {
		if k.Kind == kind {
			out = append(out, k.ID)
		}
	}
	sort.Strings(out)
	return out
}
