package tvu

import (
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

// dedupeWindow bounds how long a (sender, index) pair is remembered for
// duplicate rejection. Blobs are retransmitted once per broadcast epoch,
// not forever, so the set doesn't need entries older than a few window
// lifetimes' worth of wall-clock time.
const dedupeWindow = 2 * time.Minute

type dedupeEntry struct {
	key dedupeKey
	at  time.Time
}

// Dedupe is a set of recently-seen blob keys with time-based eviction: an
// unbounded seen-set would grow forever over a long-running validator,
// since old keys are never deliberately deleted. Eviction here rides the insertion-order
// queue (oldest first), so a sweep is a prefix trim rather than a scan.
type Dedupe struct {
	mu    sync.Mutex
	set   mapset.Set[dedupeKey]
	order []dedupeEntry
}

// NewDedupe creates an empty Dedupe.
func NewDedupe() *Dedupe {
	return &Dedupe{set: mapset.NewSet[dedupeKey]()}
}

// SeenOrAdd reports whether key was already present, adding it if not.
func (d *Dedupe) SeenOrAdd(key dedupeKey) (alreadySeen bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.set.Contains(key) {
		return true
	}
	d.set.Add(key)
	d.order = append(d.order, dedupeEntry{key: key, at: time.Now()})
	return false
}

// Sweep evicts every entry older than dedupeWindow.
func (d *Dedupe) Sweep() {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := time.Now().Add(-dedupeWindow)
	i := 0
	for ; i < len(d.order); i++ {
		if d.order[i].at.After(cutoff) {
			break
		}
		d.set.Remove(d.order[i].key)
	}
	d.order = d.order[i:]
}
