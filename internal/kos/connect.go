package kos

import (
	"github.com/inobulles/aqua/pkg/alog"
	"github.com/inobulles/aqua/pkg/vdev"
	"github.com/inobulles/aqua/pkg/wire"
)

// Connect mints a cookie, reserves a connection id, and queues the action
// that performs the connect (local_connect or gv_connect depending on
// hostID). It returns the cookie immediately; the outcome arrives later as
// exactly one of conn/conn_fail on the subscribed callback.
func (k *KOS) Connect(hostID wire.HostID, vdevID uint64) vdev.Cookie {
	k.mu.Lock()
	cookie := k.nextCookieLocked()
	k.nextConnID++
	connID := k.nextConnID
	k.pending[cookie] = struct{}{}

	var kind vdev.Kind
	if hostID == k.hostID {
		kind = vdev.KindLocal
	} else {
		kind = vdev.KindGV
	}
	conn := vdev.NewConnection(connID, kind)
	conn.TargetVDEVID = vdevID
	k.connections[connID] = conn

	var run func(sync bool)
	if hostID == k.hostID {
		run = func(sync bool) { k.localConnect(cookie, vdevID, connID) }
	} else {
		run = func(sync bool) { k.gvConnect(cookie, hostID, vdevID, connID) }
	}
	ok := k.queue.push(action{cookie: uint64(cookie), run: run})
	k.mu.Unlock()

	if !ok {
		// Dropped: per spec, the caller sees no notification for this
		// cookie at all. Roll back the reservation so it doesn't leak.
		k.mu.Lock()
		delete(k.pending, cookie)
		delete(k.connections, connID)
		k.mu.Unlock()
	}

	return cookie
}

// Disconnect tears down a live connection immediately; it does not go
// through the action queue since it has no notification outcome to
// correlate.
func (k *KOS) Disconnect(connID uint64) {
	k.mu.Lock()
	conn, ok := k.connections[connID]
	if ok {
		delete(k.connections, connID)
	}
	gvRemote := uint64(0)
	if ok && conn.Kind == vdev.KindGV {
		gvRemote = conn.RemoteID
	}
	k.mu.Unlock()

	if !ok {
		return
	}
	conn.Disconnect()

	if conn.Kind == vdev.KindGV && k.gv != nil {
		k.gv.Disconnect(gvRemote)
	}
}

func (k *KOS) localConnect(cookie vdev.Cookie, vdevID uint64, connID uint64) {
	descr := k.loader.FindByVDEVID(vdevID)
	if descr == nil || descr.Conn == nil {
		alog.Warn("kos: local_connect: no VDRIVER owns vdev-id %#x", vdevID)
		k.failPendingConnect(cookie)
		return
	}
	descr.Conn(uint64(cookie), vdevID, connID)
}

func (k *KOS) gvConnect(cookie vdev.Cookie, hostID wire.HostID, vdevID uint64, connID uint64) {
	if k.gv == nil {
		alog.Warn("kos: gv_connect: no GrapeVine transport configured")
		k.failPendingConnect(cookie)
		return
	}

	remoteID, fns, consts, err := k.gv.Connect(hostID, vdevID)
	if err != nil {
		alog.Warn("kos: gv_connect to %d:%#x failed: %v", hostID, vdevID, err)
		k.failPendingConnect(cookie)
		return
	}

	k.mu.Lock()
	conn, ok := k.connections[connID]
	if ok {
		conn.RemoteID = remoteID
	}
	k.mu.Unlock()

	if !ok {
		return
	}
	k.completeLocalConn(cookie, connID, fns, consts)
}

// completeLocalConn records the connection's function/constant tables (the
// "immutable after conn" invariant) and forwards a conn notification.
func (k *KOS) completeLocalConn(cookie vdev.Cookie, connID uint64, fns []wire.Function, consts []wire.Constant) {
	k.mu.Lock()
	conn, ok := k.connections[connID]
	delete(k.pending, cookie)
	k.mu.Unlock()

	if !ok {
		return
	}
	conn.SetTables(fns, consts)

	k.deliver(vdev.Notification{
		Kind:         vdev.NotifConn,
		Cookie:       cookie,
		ConnectionID: connID,
		Fns:          fns,
		Consts:       consts,
	})
}

func (k *KOS) failPendingConnect(cookie vdev.Cookie) {
	k.mu.Lock()
	delete(k.pending, cookie)
	k.mu.Unlock()

	k.deliver(vdev.Notification{Kind: vdev.NotifConnFail, Cookie: cookie})
}
