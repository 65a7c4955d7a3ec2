// Package peertable tracks known peers and evicts them after inactivity.
package peertable

import (
	"net"
	"sync"
	"time"

	"github.com/google/btree"

	"localchat.dev/node/logging"
)

const (
	SweepInterval = 5 * time.Second
	PeerTimeout   = 30 * time.Second
	evictionGrace = 2 * time.Second
)

// Record is one peer's observed state.
type Record struct {
	PeerID      string
	Addr        *net.UDPAddr
	DisplayName string
	LastSeen    time.Time

	timedOutAt time.Time
	timedOut   bool
}

// lastSeenKey orders records by (LastSeen, PeerID) so the sweep can scan
// the stalest entries first without a full map walk, the same "keep an
// ordered index alongside the map" shape the teacher uses for its
// allowed-IPs trie, generalized here to google/btree's generic BTreeG.
type lastSeenKey struct {
	lastSeen time.Time
	peerID   string
}

func lastSeenLess(a, b lastSeenKey) bool {
	if a.lastSeen.Equal(b.lastSeen) {
		return a.peerID < b.peerID
	}
	return a.lastSeen.Before(b.lastSeen)
}

// EvictedEvent describes a peer removed by the sweep.
type EvictedEvent struct {
	PeerID      string
	DisplayName string
}

// Table owns the peer map exclusively; it is the session controller's
// table, touched by the receiver task, the sweeper, and API handlers, so
// every method here takes the lock itself.
type Table struct {
	mu       sync.Mutex
	byID     map[string]*Record
	byLRU    *btree.BTreeG[lastSeenKey]
	localID  string
	log      *logging.Logger
	onEvict  func(EvictedEvent)
	stop     chan struct{}
	stopOnce sync.Once
}

// New constructs a table scoped to one session. localID is the local
// peer-id, never inserted into the table. onEvict, if non-nil, is
// called once per genuine eviction (not on a late-arrival un-mark).
func New(localID string, log *logging.Logger, onEvict func(EvictedEvent)) *Table {
	t := &Table{
		byID:    make(map[string]*Record),
		byLRU:   btree.NewG[lastSeenKey](32, lastSeenLess),
		localID: localID,
		log:     log,
		onEvict: onEvict,
		stop:    make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Touch refreshes (or inserts) a peer record from an inbound datagram.
// Touching a peer currently marked timed-out un-marks it instead of
// re-emitting an eviction notification later.
func (t *Table) Touch(peerID string, addr *net.UDPAddr, displayName string, now time.Time) {
	if peerID == t.localID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.byID[peerID]; ok {
		t.byLRU.Delete(lastSeenKey{rec.LastSeen, peerID})
		rec.Addr = addr
		rec.DisplayName = displayName
		rec.LastSeen = now
		rec.timedOut = false
		t.byLRU.ReplaceOrInsert(lastSeenKey{now, peerID})
		return
	}

	rec := &Record{PeerID: peerID, Addr: addr, DisplayName: displayName, LastSeen: now}
	t.byID[peerID] = rec
	t.byLRU.ReplaceOrInsert(lastSeenKey{now, peerID})
}

// Remove deletes a peer outright (used on an explicit `leave`).
func (t *Table) Remove(peerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(peerID)
}

func (t *Table) removeLocked(peerID string) {
	rec, ok := t.byID[peerID]
	if !ok {
		return
	}
	t.byLRU.Delete(lastSeenKey{rec.LastSeen, peerID})
	delete(t.byID, peerID)
}

// Get returns a snapshot copy of a peer record.
func (t *Table) Get(peerID string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.byID[peerID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns a copy of every currently-known peer, for the
// boundary API's get-peers call.
func (t *Table) Snapshot() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, 0, len(t.byID))
	for _, rec := range t.byID {
		out = append(out, *rec)
	}
	return out
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (t *Table) Close() {
	t.stopOnce.Do(func() { close(t.stop) })
}

func (t *Table) sweepLoop() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case now := <-ticker.C:
			t.sweep(now)
		}
	}
}

// sweep is the two-phase eviction pass: stale-but-unmarked records are
// marked timed-out this pass; records already marked timed-out past the
// grace delay are removed and reported. This prevents a late datagram
// arriving mid-sweep from causing a duplicate eviction notification --
// Touch would have already cleared the mark before phase two runs.
func (t *Table) sweep(now time.Time) {
	var toEvict []EvictedEvent

	t.mu.Lock()
	cutoff := now.Add(-PeerTimeout)
	var stale []string
	t.byLRU.AscendLessThan(lastSeenKey{cutoff, ""}, func(k lastSeenKey) bool {
		stale = append(stale, k.peerID)
		return true
	})

	for _, peerID := range stale {
		rec, ok := t.byID[peerID]
		if !ok {
			continue
		}
		if !rec.timedOut {
			rec.timedOut = true
			rec.timedOutAt = now
			continue
		}
		if now.Sub(rec.timedOutAt) >= evictionGrace {
			toEvict = append(toEvict, EvictedEvent{PeerID: rec.PeerID, DisplayName: rec.DisplayName})
			t.removeLocked(peerID)
		}
	}
	t.mu.Unlock()

	for _, ev := range toEvict {
		if t.log != nil {
			t.log.Debug.Println("peertable: evicted", ev.PeerID)
		}
		if t.onEvict != nil {
			t.onEvict(ev)
		}
	}
}
