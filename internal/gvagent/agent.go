// Package gvagent implements the GrapeVine agent: a tiny process gvd spawns
// per inbound CONN_VDEV, handed the accepted socket on fd 3. It performs a
// local KOS handshake, requests the target spec, connects to the matching
// local VDEV, then bridges the socket to that connection — translating
// inbound KOS_CALL packets into local calls and local notifications back
// into CONN_VDEV_RES/KOS_CALL_RET/KOS_CALL_FAIL packets — so the remote
// caller cannot tell the VDEV apart from a local one. Grounded on
// original_source/gv/agent/agent.c.
package gvagent

import (
	"fmt"
	"io"
	"net"

	"github.com/inobulles/aqua/internal/gv/packet"
	"github.com/inobulles/aqua/internal/kos"
	"github.com/inobulles/aqua/internal/vdriver"
	"github.com/inobulles/aqua/pkg/alog"
	"github.com/inobulles/aqua/pkg/vdev"
	"github.com/inobulles/aqua/pkg/wire"
)

// Options configures one agent run: the spec and VDEV-ID gvd parsed out of
// the inbound CONN_VDEV, and (test-only) an alternate loader.
type Options struct {
	Spec   string
	VDEVID uint64
	Loader *vdriver.Loader
}

// Agent is the bridge state for one inherited socket.
type Agent struct {
	opts Options
	k    *kos.KOS
	sock net.Conn

	attached bool
	connID   uint64
	connOK   bool
	fns      []wire.Function

	// onCallResult, when non-nil, receives the outcome of the in-flight
	// call; onNotify routes call_ret/call_fail there instead of logging
	// them, since a bridged call's result is consumed synchronously by
	// handleCall rather than delivered to an external subscriber.
	onCallResult func(ok bool, ret wire.Value)
}

// Run drives one agent session to completion: it returns once the bridged
// connection ends, either because the peer closed sock or the local VDEV
// detached.
func Run(sock net.Conn, opts Options) error {
	a := &Agent{opts: opts, sock: sock}

	k, _, err := kos.Hello(kos.APIV4, kos.APIV4, kos.Options{
		Name:   "gvagent",
		Loader: opts.Loader,
	})
	if err != nil {
		return fmt.Errorf("gvagent: hello: %w", err)
	}
	a.k = k
	k.Subscribe(a.onNotify)

	if err := k.ReqVDEV(opts.Spec); err != nil {
		alog.Warn("gvagent: req_vdev(%q): %v", opts.Spec, err)
	}
	k.Flush(true)

	if !a.attached {
		alog.Error("gvagent: no local VDEV with id %#x matching spec %q", opts.VDEVID, opts.Spec)
		packet.WriteFrame(sock, packet.MarshalConnVDEVFail())
		return fmt.Errorf("gvagent: vdev %#x not found", opts.VDEVID)
	}

	k.Connect(wire.LocalHostID, opts.VDEVID)
	k.Flush(true)

	if !a.connOK {
		alog.Error("gvagent: connect to vdev %#x failed", opts.VDEVID)
		packet.WriteFrame(sock, packet.MarshalConnVDEVFail())
		return fmt.Errorf("gvagent: connect to vdev %#x failed", opts.VDEVID)
	}

	res := packet.ConnVDEVResPacket{ConnID: a.connID, Fns: a.fns}
	if err := packet.WriteFrame(sock, res.Marshal()); err != nil {
		return fmt.Errorf("gvagent: sending CONN_VDEV_RES: %w", err)
	}

	return a.loop()
}

// loop reads framed KOS_CALL packets off sock and bridges each to a local
// call, until the peer closes the connection or the VDEV detaches.
func (a *Agent) loop() error {
	for {
		payload, err := packet.ReadFrame(a.sock)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("gvagent: reading packet: %w", err)
		}
		if len(payload) < 1 {
			continue
		}

		if packet.Type(payload[0]) != packet.KOSCall {
			alog.Warn("gvagent: unexpected packet type %d on bridged connection", payload[0])
			continue
		}

		if err := a.handleCall(payload); err != nil {
			return err
		}
		if !a.attached {
			return nil // VDEV detached mid-session
		}
	}
}

func (a *Agent) handleCall(payload []byte) error {
	_, hdrFnID, err := packet.PeekKOSCallHeader(payload)
	if err != nil {
		alog.Warn("gvagent: malformed KOS_CALL: %v", err)
		return packet.WriteFrame(a.sock, packet.MarshalKOSCallFail())
	}

	var argTypes []wire.Type
	if int(hdrFnID) < len(a.fns) {
		for _, p := range a.fns[hdrFnID].Params {
			argTypes = append(argTypes, p.Type)
		}
	}

	req, err := packet.UnmarshalKOSCall(payload, argTypes)
	if err != nil {
		alog.Warn("gvagent: decoding KOS_CALL args: %v", err)
		return packet.WriteFrame(a.sock, packet.MarshalKOSCallFail())
	}

	var callErr bool
	var ret wire.Value
	a.onCallResult = func(ok bool, v wire.Value) {
		callErr = !ok
		ret = v
	}

	a.k.Call(a.connID, req.FnID, req.Args)
	a.k.Flush(true)

	a.onCallResult = nil

	// If the action queue silently dropped this call (§7 resource
	// exhaustion), callErr stays false and ret stays void; the peer sees a
	// bogus void return rather than a hang. A known gap, not fixed here.

	if callErr {
		return packet.WriteFrame(a.sock, packet.MarshalKOSCallFail())
	}
	retPacket := packet.KOSCallRetPacket{Return: ret}
	return packet.WriteFrame(a.sock, retPacket.Marshal())
}

func (a *Agent) onNotify(n vdev.Notification) {
	switch n.Kind {
	case vdev.NotifAttach:
		if n.VDEV.VDEVID == a.opts.VDEVID && n.VDEV.Kind == vdev.KindLocal {
			a.attached = true
		}

	case vdev.NotifDetach:
		if n.DetachVDEV == a.opts.VDEVID {
			a.attached = false
			alog.Info("gvagent: vdev %#x detached, closing bridge", a.opts.VDEVID)
		}

	case vdev.NotifConn:
		a.connID = n.ConnectionID
		a.fns = n.Fns
		a.connOK = true

	case vdev.NotifConnFail:
		a.connOK = false

	case vdev.NotifCallRet:
		if a.onCallResult != nil {
			a.onCallResult(true, n.Return)
		}

	case vdev.NotifCallFail:
		if a.onCallResult != nil {
			a.onCallResult(false, wire.Value{})
		}
	}
}
