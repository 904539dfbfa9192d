package gvd

import (
	"net"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/inobulles/aqua/pkg/vdev"
)

func addr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: port}
}

// TestTouchNewNodeStartsQuerying covers the spec's discovery state machine:
// an ELP from a host-id never seen before inserts it in the querying state
// and reports that a QUERY is warranted.
func TestTouchNewNodeStartsQuerying(t *testing.T) {
	clock := newSimClock()
	tbl := newNodeTable(clock)

	changed := tbl.touch(1, addr(1234), 0xAAAA)
	if !changed {
		t.Fatalf("touch on a brand new node should report a change")
	}

	n, ok := tbl.find(1)
	if !ok {
		t.Fatalf("node 1 should be present after touch")
	}
	if n.State != StateQuerying {
		t.Fatalf("new node state = %v, want %v", n.State, StateQuerying)
	}
}

// TestTouchSameUniqueDoesNotRequery ensures a repeated ELP with the same
// unique value just refreshes LastSeen rather than re-triggering a QUERY.
func TestTouchSameUniqueDoesNotRequery(t *testing.T) {
	clock := newSimClock()
	tbl := newNodeTable(clock)

	tbl.touch(1, addr(1234), 0xAAAA)
	tbl.markLive(1, nil)

	clock.AdvanceTime(500 * time.Millisecond)
	changed := tbl.touch(1, addr(1234), 0xAAAA)
	if changed {
		t.Fatalf("touch with an unchanged unique value should not report a change")
	}

	n, _ := tbl.find(1)
	if n.State != StateLive {
		t.Fatalf("node state changed unexpectedly to %v", n.State)
	}
}

// TestTouchChangedUniqueRequeries covers a peer restarting (a fresh process
// picks a new random unique): gvd must treat it as worth re-querying even
// though the host-id is already known.
func TestTouchChangedUniqueRequeries(t *testing.T) {
	clock := newSimClock()
	tbl := newNodeTable(clock)

	tbl.touch(1, addr(1234), 0xAAAA)
	tbl.markLive(1, nil)

	changed := tbl.touch(1, addr(1234), 0xBBBB)
	if !changed {
		t.Fatalf("touch with a changed unique value should report a change")
	}

	n, _ := tbl.find(1)
	if n.State != StateQuerying {
		t.Fatalf("node state after unique change = %v, want %v", n.State, StateQuerying)
	}
}

// TestMarkLiveRecordsVDEVs covers a QUERY_RES reply moving a node to live
// with its reported VDEV inventory attached.
func TestMarkLiveRecordsVDEVs(t *testing.T) {
	clock := newSimClock()
	tbl := newNodeTable(clock)

	tbl.touch(1, addr(1234), 0xAAAA)
	tbl.markLive(1, []vdev.Descriptor{{HostID: 1, VDEVID: 99, Spec: "aqua.test"}})

	n, _ := tbl.find(1)
	if n.State != StateLive {
		t.Fatalf("state = %v, want %v", n.State, StateLive)
	}
	if len(n.VDEVs) != 1 || n.VDEVs[0].VDEVID != 99 {
		t.Fatalf("unexpected VDEVs: %+v", n.VDEVs)
	}
}

// TestSweepEvictsAfterNodeTTL is the spec's node-removal invariant: a node
// not refreshed within NODE_TTL is evicted by a sweep, and one refreshed
// just under the TTL survives.
func TestSweepEvictsAfterNodeTTL(t *testing.T) {
	clock := newSimClock()
	tbl := newNodeTable(clock)

	tbl.touch(1, addr(1234), 0xAAAA)
	tbl.touch(2, addr(5678), 0xBBBB)

	clock.AdvanceTime(NodeTTL - time.Second)
	tbl.touch(1, addr(1234), 0xAAAA) // refresh node 1 only

	clock.AdvanceTime(2 * time.Second) // node 2 is now > NodeTTL stale, node 1 is not
	dead := tbl.sweep()

	if len(dead) != 1 || dead[0] != 2 {
		t.Fatalf("sweep evicted %v, want only host 2", dead)
	}
	if _, ok := tbl.find(2); ok {
		t.Fatalf("node 2 should have been evicted")
	}
	if _, ok := tbl.find(1); !ok {
		t.Fatalf("node 1 should still be present")
	}
}

// TestSnapshotIsIndependentOfTable ensures snapshot hands back copies, not
// live pointers into the table, so a caller iterating it cannot race with
// concurrent touch/markLive/sweep calls.
func TestSnapshotIsIndependentOfTable(t *testing.T) {
	clock := newSimClock()
	tbl := newNodeTable(clock)

	tbl.touch(1, addr(1234), 0xAAAA)
	snap := tbl.snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(snap))
	}

	tbl.markLive(1, []vdev.Descriptor{{VDEVID: 1}})
	if snap[0].State == StateLive {
		t.Fatalf("snapshot entry should not reflect a later markLive call")
	}
}
