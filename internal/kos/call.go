package kos

import (
	"github.com/inobulles/aqua/pkg/alog"
	"github.com/inobulles/aqua/pkg/vdev"
	"github.com/inobulles/aqua/pkg/wire"
)

// Call mints a cookie and queues a call action against connID/fnID. If the
// connection is unknown, dead, or fnID is out of range, the queued action
// is a direct call_fail emitter rather than a dispatch — the invariant
// violation is caught here, not deferred to the VDRIVER or transport.
func (k *KOS) Call(connID uint64, fnID uint32, args []wire.Value) vdev.Cookie {
	k.mu.Lock()
	cookie := k.nextCookieLocked()
	conn, ok := k.connections[connID]
	k.pending[cookie] = struct{}{}

	var run func(sync bool)
	switch {
	case !ok || !conn.Alive():
		run = func(sync bool) { k.callFail(cookie, connID, "connection not alive") }
	case fnID >= uint32(conn.FnCount()):
		run = func(sync bool) { k.callFail(cookie, connID, "fn_id out of range") }
	case conn.Kind == vdev.KindLocal:
		run = func(sync bool) { k.localCall(cookie, connID, fnID, args) }
	default:
		run = func(sync bool) { k.gvCall(cookie, conn, fnID, args) }
	}

	qOK := k.queue.push(action{cookie: uint64(cookie), run: run})
	k.mu.Unlock()

	if !qOK {
		k.mu.Lock()
		delete(k.pending, cookie)
		k.mu.Unlock()
	}

	return cookie
}

func (k *KOS) callFail(cookie vdev.Cookie, connID uint64, reason string) {
	alog.Warn("kos: call %d on connection %d failed: %s", cookie, connID, reason)
	k.mu.Lock()
	delete(k.pending, cookie)
	k.mu.Unlock()

	k.deliver(vdev.Notification{Kind: vdev.NotifCallFail, Cookie: cookie, ConnectionID: connID})
}

func (k *KOS) localCall(cookie vdev.Cookie, connID uint64, fnID uint32, args []wire.Value) {
	k.mu.Lock()
	conn, ok := k.connections[connID]
	k.mu.Unlock()
	if !ok {
		k.callFail(cookie, connID, "connection vanished")
		return
	}

	descr := k.loader.FindByVDEVID(connIDToVDEVHint(conn))
	if descr == nil || descr.Call == nil {
		k.callFail(cookie, connID, "owning VDRIVER not found")
		return
	}
	descr.Call(uint64(cookie), connID, fnID, args)
}

// connIDToVDEVHint resolves the VDEV-ID a connection targets. The KOS
// tracks this on the connection so local_call can re-locate the owning
// VDRIVER without the caller having to pass vdev-id on every call.
func connIDToVDEVHint(conn *vdev.Connection) uint64 {
	return conn.TargetVDEVID
}

func (k *KOS) gvCall(cookie vdev.Cookie, conn *vdev.Connection, fnID uint32, args []wire.Value) {
	if k.gv == nil {
		k.callFail(cookie, conn.ID, "no GrapeVine transport configured")
		return
	}

	fn, ok := conn.Fn(fnID)
	if !ok {
		k.callFail(cookie, conn.ID, "fn_id out of range")
		return
	}

	ret, err := k.gv.Call(conn.RemoteID, fnID, args, fn.RetType)
	if err != nil {
		alog.Warn("kos: gv_call fn %d on connection %d failed: %v", fnID, conn.ID, err)
		k.callFail(cookie, conn.ID, err.Error())
		return
	}

	k.mu.Lock()
	delete(k.pending, cookie)
	k.mu.Unlock()

	k.deliver(vdev.Notification{
		Kind:         vdev.NotifCallRet,
		Cookie:       cookie,
		ConnectionID: conn.ID,
		Return:       ret,
	})
}
