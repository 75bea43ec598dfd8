package live

import (
	"sort"
	"sync"
)

// Tracker remembers which users were live as of the last reconcile.
// Scheduled polling and on-demand checks must use separate trackers.
type Tracker struct {
	mu    sync.Mutex
	state map[string]Stream
}

// NewTracker returns a tracker with an empty live set.
func NewTracker() *Tracker {
	return &Tracker{state: make(map[string]Stream)}
}

// Reconcile returns the streams to announce and replaces the live set with fresh.
// With force every fresh stream is returned; otherwise only users absent from the
// previous live set. Users missing from fresh are forgotten, so their next live
// session is announced again.
func (t *Tracker) Reconcile(fresh []Stream, force bool) []Stream {
	t.mu.Lock()
	defer t.mu.Unlock()

	var notify []Stream
	next := make(map[string]Stream, len(fresh))
	for _, s := range fresh {
		_, wasLive := t.state[s.UserID]
		_, seen := next[s.UserID]
		if (force || !wasLive) && !seen {
			notify = append(notify, s)
		}
		next[s.UserID] = s
	}
	t.state = next
	return notify
}

// IsLive reports whether userID was live as of the last reconcile.
func (t *Tracker) IsLive(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.state[userID]
	return ok
}

// Len returns the size of the live set.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.state)
}

// Snapshot returns the live set ordered by login.
func (t *Tracker) Snapshot() []Stream {
	t.mu.Lock()
	out := make([]Stream, 0, len(t.state))
	for _, s := range t.state {
		out = append(out, s)
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserLogin < out[j].UserLogin })
	return out
}
