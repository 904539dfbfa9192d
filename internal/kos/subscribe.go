package kos

import (
	"github.com/inobulles/aqua/internal/vdriver"
	"github.com/inobulles/aqua/pkg/vdev"
)

// Subscribe registers the single client notification callback. Per the
// spec, the KOS wraps it so it can intercept conn notifications and record
// connection state before forwarding to the client; that interception
// happens in onVDriverNotify (local) and gvConnect (GrapeVine), both via
// completeLocalConn, not here.
func (k *KOS) Subscribe(cb vdev.Callback) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.callback = cb
}

func (k *KOS) deliver(n vdev.Notification) {
	k.mu.Lock()
	cb := k.callback
	k.mu.Unlock()

	if cb != nil {
		cb(n)
	}
}

// onVDriverNotify adapts a VDRIVER's spontaneous notification (attach,
// detach, interrupt) or a reply to conn/call (conn, conn_fail, call_ret,
// call_fail) into the client-facing vdev.Notification shape, recording
// connection state for conn before forwarding.
func (k *KOS) onVDriverNotify(n vdriver.Notification) {
	switch n.Kind {
	case vdriver.NotifyAttach:
		k.deliver(vdev.Notification{
			Kind: vdev.NotifAttach,
			VDEV: vdev.Descriptor{
				HostID:       k.hostID,
				VDEVID:       n.VDEVID,
				Spec:         n.Spec,
				Version:      n.Version,
				Human:        n.Human,
				VDriverHuman: n.VDriverHuman,
				Kind:         vdev.KindLocal,
				Preference:   n.Preference,
			},
		})

	case vdriver.NotifyDetach:
		k.deliver(vdev.Notification{
			Kind:       vdev.NotifDetach,
			DetachHost: k.hostID,
			DetachVDEV: n.DetachVDEVID,
		})

	case vdriver.NotifyInterrupt:
		k.deliver(vdev.Notification{
			Kind:    vdev.NotifInterrupt,
			INO:     vdev.INO(n.INO),
			Payload: n.Payload,
		})

	case vdriver.NotifyConn:
		k.completeLocalConn(vdev.Cookie(n.Cookie), n.ConnID, n.Fns, n.Consts)

	case vdriver.NotifyConnFail:
		k.failPendingConnect(vdev.Cookie(n.Cookie))

	case vdriver.NotifyCall:
		k.mu.Lock()
		delete(k.pending, vdev.Cookie(n.Cookie))
		k.mu.Unlock()

		k.deliver(vdev.Notification{
			Kind:         vdev.NotifCallRet,
			Cookie:       vdev.Cookie(n.Cookie),
			ConnectionID: n.ConnID,
			Return:       n.Return,
		})

	case vdriver.NotifyCallFail:
		k.mu.Lock()
		delete(k.pending, vdev.Cookie(n.Cookie))
		k.mu.Unlock()

		k.deliver(vdev.Notification{
			Kind:         vdev.NotifCallFail,
			Cookie:       vdev.Cookie(n.Cookie),
			ConnectionID: n.ConnID,
		})
	}
}
