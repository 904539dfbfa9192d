package gvd

import (
	"net"
	"time"

	"github.com/jacobsa/gcloud/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/inobulles/aqua/pkg/vdev"
	"github.com/inobulles/aqua/pkg/wire"
)

// NodeState tracks where a peer is in the discovery state machine: an ELP
// with an unfamiliar unique value moves a node to querying; a QUERY_RES
// reply moves it to live; NODE_TTL expiry without a refreshing ELP moves it
// to dead and evicts it.
type NodeState uint8

const (
	StateUnknown NodeState = iota
	StateQuerying
	StateLive
	StateDead
)

func (s NodeState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateQuerying:
		return "querying"
	case StateLive:
		return "live"
	case StateDead:
		return "dead"
	}
	return "invalid"
}

// ELPDelay is how often a node re-sends its own ELP broadcast.
const ELPDelay = 1 * time.Second

// NodeTTL is how long a node is kept after its last-seen ELP before being
// considered dead and evicted.
const NodeTTL = 5 * time.Second

// node is one entry in the node table: a peer this gvd has heard an ELP
// from, along with whatever VDEVs a QUERY_RES has told us it has.
type node struct {
	HostID    wire.HostID
	Addr      *net.UDPAddr
	Unique    uint64
	State     NodeState
	LastSeen  time.Time
	VDEVs     []vdev.Descriptor
}

func (n *node) expired(now time.Time) bool {
	return now.Sub(n.LastSeen) > NodeTTL
}

// nodeTable is the node map gvd's three threads share: the ELP listener
// inserts/refreshes entries, a QUERY_RES marks them live, publishNodes reads
// them for gv.nodes, and a periodic sweep evicts expired ones.
type nodeTable struct {
	mu    syncutil.InvariantMutex
	nodes map[wire.HostID]*node // GUARDED_BY(mu)
	clock timeutil.Clock
}

func newNodeTable(clock timeutil.Clock) *nodeTable {
	t := &nodeTable{nodes: make(map[wire.HostID]*node), clock: clock}
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

// checkInvariants panics if the table holds a node whose last-seen time is
// in the future, which would mean a clock was misused somewhere.
func (t *nodeTable) checkInvariants() {
	now := t.clock.Now()
	for id, n := range t.nodes {
		if n.LastSeen.After(now) {
			panic("gvd: node " + n.Addr.String() + " has a last-seen time in the future")
		}
		if n.HostID != id {
			panic("gvd: node table key does not match node's own host-id")
		}
	}
}

// touch records a received ELP, returning true if the node is newly seen
// or its unique value changed (both cases warrant sending a QUERY).
func (t *nodeTable) touch(hostID wire.HostID, addr *net.UDPAddr, unique uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[hostID]
	if !ok {
		t.nodes[hostID] = &node{
			HostID:   hostID,
			Addr:     addr,
			Unique:   unique,
			State:    StateQuerying,
			LastSeen: t.clock.Now(),
		}
		return true
	}

	n.Addr = addr
	n.LastSeen = t.clock.Now()
	if n.Unique != unique {
		n.Unique = unique
		n.State = StateQuerying
		return true
	}
	return false
}

// markLive records a QUERY_RES reply's VDEV inventory for hostID.
func (t *nodeTable) markLive(hostID wire.HostID, vdevs []vdev.Descriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, ok := t.nodes[hostID]
	if !ok {
		return
	}
	n.State = StateLive
	n.VDEVs = vdevs
}

// sweep evicts every node whose TTL has lapsed, returning their host-ids.
func (t *nodeTable) sweep() []wire.HostID {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	var dead []wire.HostID
	for id, n := range t.nodes {
		if n.expired(now) {
			dead = append(dead, id)
			delete(t.nodes, id)
		}
	}
	return dead
}

// snapshot returns a point-in-time copy of every node in the table, in any
// state, for callers such as publishNodes to iterate without holding the
// lock.
func (t *nodeTable) snapshot() []node {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, *n)
	}
	return out
}

// find looks up a single node by host-id.
func (t *nodeTable) find(hostID wire.HostID) (node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[hostID]
	if !ok {
		return node{}, false
	}
	return *n, true
}
