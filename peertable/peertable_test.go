package peertable

import (
	"net"
	"testing"
	"time"
)

func addr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
}

func TestTouchInsertsAndRefreshes(t *testing.T) {
	tbl := New("local", nil, nil)
	defer tbl.Close()

	now := time.Now()
	tbl.Touch("peer-a", addr(1111), "Alice", now)
	rec, ok := tbl.Get("peer-a")
	if !ok {
		t.Fatalf("peer-a not found after Touch")
	}
	if rec.DisplayName != "Alice" {
		t.Fatalf("got display name %q, want Alice", rec.DisplayName)
	}

	later := now.Add(time.Second)
	tbl.Touch("peer-a", addr(2222), "Alice", later)
	rec, _ = tbl.Get("peer-a")
	if rec.Addr.Port != 2222 || !rec.LastSeen.Equal(later) {
		t.Fatalf("refresh did not update record: %+v", rec)
	}
}

func TestTouchIgnoresLocalPeerID(t *testing.T) {
	tbl := New("local", nil, nil)
	defer tbl.Close()

	tbl.Touch("local", addr(1111), "Me", time.Now())
	if _, ok := tbl.Get("local"); ok {
		t.Fatalf("local peer-id should never be inserted into the table")
	}
}

func TestRemoveDeletesPeer(t *testing.T) {
	tbl := New("local", nil, nil)
	defer tbl.Close()

	tbl.Touch("peer-a", addr(1111), "Alice", time.Now())
	tbl.Remove("peer-a")
	if _, ok := tbl.Get("peer-a"); ok {
		t.Fatalf("peer-a should be gone after Remove")
	}
}

func TestSweepEvictsAfterTimeoutWithGrace(t *testing.T) {
	var evicted []EvictedEvent
	tbl := New("local", nil, func(ev EvictedEvent) {
		evicted = append(evicted, ev)
	})
	defer tbl.Close()

	base := time.Now()
	tbl.Touch("peer-a", addr(1111), "Alice", base)

	// First sweep past the timeout marks the peer timed-out, but does
	// not yet remove it (grace delay).
	tbl.sweep(base.Add(PeerTimeout + time.Second))
	if _, ok := tbl.Get("peer-a"); !ok {
		t.Fatalf("peer should still be present during grace period")
	}
	if len(evicted) != 0 {
		t.Fatalf("no eviction event expected yet, got %v", evicted)
	}

	// Second sweep, past the grace delay, removes it and fires exactly
	// one eviction event.
	tbl.sweep(base.Add(PeerTimeout + evictionGrace + 2*time.Second))
	if _, ok := tbl.Get("peer-a"); ok {
		t.Fatalf("peer should have been evicted")
	}
	if len(evicted) != 1 {
		t.Fatalf("expected exactly one eviction event, got %d", len(evicted))
	}
}

func TestLateDatagramDuringGraceSuppressesEviction(t *testing.T) {
	var evicted []EvictedEvent
	tbl := New("local", nil, func(ev EvictedEvent) { evicted = append(evicted, ev) })
	defer tbl.Close()

	base := time.Now()
	tbl.Touch("peer-a", addr(1111), "Alice", base)
	tbl.sweep(base.Add(PeerTimeout + time.Second)) // marks timed-out

	// A late datagram arrives during the grace window.
	tbl.Touch("peer-a", addr(1111), "Alice", base.Add(PeerTimeout+2*time.Second))

	tbl.sweep(base.Add(PeerTimeout + evictionGrace + 3*time.Second))
	if len(evicted) != 0 {
		t.Fatalf("expected no eviction after late re-touch, got %v", evicted)
	}
	if _, ok := tbl.Get("peer-a"); !ok {
		t.Fatalf("peer-a should still be present")
	}
}

