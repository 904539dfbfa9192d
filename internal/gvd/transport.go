package gvd

import (
	"fmt"
	"net"
	"sync"

	"github.com/inobulles/aqua/internal/gv/ipc"
	"github.com/inobulles/aqua/internal/gv/packet"
	"github.com/inobulles/aqua/pkg/vdev"
	"github.com/inobulles/aqua/pkg/wire"
)

// Transport implements internal/kos's GVTransport for a KOS sharing a host
// with a running gvd: req_vdev's remote lookup reads gvd's published
// gv.nodes file rather than querying the network directly (gvd already
// keeps that file current), while connect/call dial the target host's
// GrapeVine TCP port directly, per spec.md §4.4's gv_connect/gv_call.
type Transport struct {
	mu    sync.Mutex
	conns map[uint64]net.Conn // GUARDED_BY(mu)
}

func NewTransport() *Transport {
	return &Transport{conns: make(map[uint64]net.Conn)}
}

// QueryVDEVs matches spec against every VDEV in the last gv.nodes snapshot
// gvd wrote for this host.
func (t *Transport) QueryVDEVs(spec string) ([]vdev.Descriptor, error) {
	entries, err := ipc.ReadNodes()
	if err != nil {
		return nil, fmt.Errorf("gvd: reading nodes file: %w", err)
	}

	var out []vdev.Descriptor
	for _, e := range entries {
		for _, d := range e.VDEVs {
			if d.Spec != spec {
				continue
			}
			d.HostID = e.HostID
			out = append(out, d)
		}
	}
	return out, nil
}

func (t *Transport) hostAddr(hostID wire.HostID) (net.IP, error) {
	entries, err := ipc.ReadNodes()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.HostID == hostID {
			return e.IP, nil
		}
	}
	return nil, fmt.Errorf("gvd: host %#x is not in the nodes file", hostID)
}

// Connect dials hostID's GrapeVine TCP port, sends CONN_VDEV, and
// synchronously awaits CONN_VDEV_RES or CONN_VDEV_FAIL, keeping the socket
// open (keyed by the remote-assigned connection id) for subsequent Call.
func (t *Transport) Connect(hostID wire.HostID, vdevID uint64) (uint64, []wire.Function, []wire.Constant, error) {
	ip, err := t.hostAddr(hostID)
	if err != nil {
		return 0, nil, nil, err
	}

	conn, err := net.DialTCP("tcp4", nil, &net.TCPAddr{IP: ip, Port: packet.Port})
	if err != nil {
		return 0, nil, nil, fmt.Errorf("gvd: dialing host %#x: %w", hostID, err)
	}

	req := packet.ConnVDEVPacket{VDEVID: vdevID}
	if err := packet.WriteFrame(conn, req.Marshal()); err != nil {
		conn.Close()
		return 0, nil, nil, fmt.Errorf("gvd: sending CONN_VDEV to %#x: %w", hostID, err)
	}

	reply, err := packet.ReadFrame(conn)
	if err != nil {
		conn.Close()
		return 0, nil, nil, fmt.Errorf("gvd: reading CONN_VDEV reply from %#x: %w", hostID, err)
	}
	if len(reply) < 1 {
		conn.Close()
		return 0, nil, nil, fmt.Errorf("gvd: empty CONN_VDEV reply from %#x", hostID)
	}

	if packet.Type(reply[0]) == packet.ConnVDEVFail {
		conn.Close()
		return 0, nil, nil, fmt.Errorf("gvd: host %#x refused connection to vdev %#x", hostID, vdevID)
	}

	res, err := packet.UnmarshalConnVDEVRes(reply)
	if err != nil {
		conn.Close()
		return 0, nil, nil, fmt.Errorf("gvd: malformed CONN_VDEV_RES from %#x: %w", hostID, err)
	}

	t.mu.Lock()
	t.conns[res.ConnID] = conn
	t.mu.Unlock()

	return res.ConnID, res.Fns, res.Consts, nil
}

func (t *Transport) Disconnect(connID uint64) {
	t.mu.Lock()
	conn, ok := t.conns[connID]
	delete(t.conns, connID)
	t.mu.Unlock()

	if ok {
		conn.Close()
	}
}

// Call sends a KOS_CALL over connID's socket and synchronously awaits
// KOS_CALL_RET or KOS_CALL_FAIL, per gv_call's "currently always
// synchronous" contract (spec.md §4.4's Flush note).
func (t *Transport) Call(connID uint64, fnID uint32, args []wire.Value, retType wire.Type) (wire.Value, error) {
	t.mu.Lock()
	conn, ok := t.conns[connID]
	t.mu.Unlock()
	if !ok {
		return wire.Value{}, fmt.Errorf("gvd: call on unknown connection %d", connID)
	}

	req := packet.KOSCallPacket{ConnID: connID, FnID: fnID, Args: args}
	if err := packet.WriteFrame(conn, req.Marshal()); err != nil {
		return wire.Value{}, fmt.Errorf("gvd: sending KOS_CALL on connection %d: %w", connID, err)
	}

	reply, err := packet.ReadFrame(conn)
	if err != nil {
		return wire.Value{}, fmt.Errorf("gvd: reading KOS_CALL reply on connection %d: %w", connID, err)
	}
	if len(reply) < 1 {
		return wire.Value{}, fmt.Errorf("gvd: empty KOS_CALL reply on connection %d", connID)
	}

	if packet.Type(reply[0]) == packet.KOSCallFail {
		return wire.Value{}, fmt.Errorf("gvd: remote call failed (fn %d, connection %d)", fnID, connID)
	}

	res, err := packet.UnmarshalKOSCallRet(reply, retType)
	if err != nil {
		return wire.Value{}, fmt.Errorf("gvd: malformed KOS_CALL_RET on connection %d: %w", connID, err)
	}
	return res.Return, nil
}
