package vdev

import (
	"net"
	"sync"

	"github.com/inobulles/aqua/pkg/wire"
)

// VDriverCaller is the subset of the VDRIVER plugin contract (internal/
// vdriver) a Connection needs to forward conn/call requests to. Declared
// here, rather than imported from internal/vdriver, to keep pkg/vdev free of
// a dependency on the loader.
type VDriverCaller interface {
	Conn(cookie Cookie, vdevID uint64, connID uint64)
	Call(cookie Cookie, connID uint64, fnID uint32, args []wire.Value)
}

// Connection is created by connect and torn down by disconnect; once torn
// down, its id is never reused (the id space is a monotonic counter owned
// by the KOS).
//
// INVARIANT: once Fns/Consts are set (at the moment the conn notification
// fires), they never change for the lifetime of the connection.
type Connection struct {
	ID    uint64
	Kind  Kind
	VDriver VDriverCaller // not set by the KOS, which finds the VDRIVER via TargetVDEVID

	// TargetVDEVID is the VDEV-ID this connection was opened against, kept
	// so a later call can re-locate the owning VDRIVER without the caller
	// repeating it on every call.
	TargetVDEVID uint64

	// For Kind == KindGV the KOS sets RemoteID; Socket is not set by the
	// KOS, whose GrapeVine transport owns the sockets.
	Socket   net.Conn
	RemoteID uint64

	mu    sync.RWMutex // guards below
	alive bool

	fns    []wire.Function
	consts []wire.Constant
}

func NewConnection(id uint64, kind Kind) *Connection {
	return &Connection{ID: id, Kind: kind, alive: true}
}

// SetTables installs the const/function tables discovered at connect time.
// Per the spec's invariant, this must be called at most once.
func (c *Connection) SetTables(fns []wire.Function, consts []wire.Constant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = fns
	c.consts = consts
}

func (c *Connection) FnCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fns)
}

func (c *Connection) Fn(id uint32) (wire.Function, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if int(id) >= len(c.fns) {
		return wire.Function{}, false
	}
	return c.fns[id], true
}

func (c *Connection) Fns() []wire.Function {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]wire.Function, len(c.fns))
	copy(out, c.fns)
	return out
}

func (c *Connection) Consts() []wire.Constant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]wire.Constant, len(c.consts))
	copy(out, c.consts)
	return out
}

func (c *Connection) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

// Disconnect marks the connection dead and, for a gv connection, closes its
// socket. Further calls on the id fail with call_fail.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.alive {
		return
	}
	c.alive = false

	if c.Kind == KindGV && c.Socket != nil {
		c.Socket.Close()
	}
}
