package vdev

import "github.com/inobulles/aqua/pkg/wire"

// NotifKind discriminates the Notification union. Every notification
// delivered to a client carries either the cookie of the originating request
// (Conn, ConnFail, CallRet, CallFail) or, for Interrupt, an INO matching a
// live registration; Attach/Detach carry neither.
type NotifKind uint8

const (
	NotifAttach NotifKind = iota
	NotifDetach
	NotifConnFail
	NotifConn
	NotifCallFail
	NotifCallRet
	NotifInterrupt
)

func (k NotifKind) String() string {
	switch k {
	case NotifAttach:
		return "attach"
	case NotifDetach:
		return "detach"
	case NotifConnFail:
		return "conn_fail"
	case NotifConn:
		return "conn"
	case NotifCallFail:
		return "call_fail"
	case NotifCallRet:
		return "call_ret"
	case NotifInterrupt:
		return "interrupt"
	}
	return "unknown"
}

// Notification is the tagged union {kind, cookie, connection_id, payload}
// the KOS delivers to the client's one subscribed callback. Only the fields
// relevant to Kind are populated; the rest are zero.
type Notification struct {
	Kind         NotifKind
	Cookie       Cookie
	ConnectionID uint64

	// NotifAttach
	VDEV Descriptor

	// NotifDetach
	DetachHost wire.HostID
	DetachVDEV uint64

	// NotifConn
	Fns    []wire.Function
	Consts []wire.Constant

	// NotifCallRet
	Return wire.Value

	// NotifInterrupt
	INO     INO
	Payload []byte
}

// Callback is the single per-process (per-KOS-handle) notification sink a
// client registers with Subscribe.
type Callback func(Notification)
