// Package vdriver implements the VDRIVER plugin contract and the loader
// that discovers, loads, and dispatches to VDRIVER shared objects.
//
// Grounded on original_source/kos/lib/vdriver.h and vdriver_loader.h: a
// VDRIVER is a loadable module exposing one symbol, a descriptor the loader
// fills in with host-id, VID slice bounds, and callback plumbing before
// calling Init/Probe.
package vdriver

import "github.com/inobulles/aqua/pkg/wire"

// VID is a VDEV-ID slice index: a VDRIVER's VDEV-IDs occupy
// [slice << 32, ((slice+1) << 32) - 1].
type VID uint32

// Slice is the VDEV-ID range assigned to one loaded VDRIVER. The loader
// guarantees no two VDRIVERs in one process are assigned overlapping
// ranges.
type Slice struct {
	Index VID
	Lo    uint64
	Hi    uint64
}

// Contains reports whether vdevID falls within the slice's bounds.
func (s Slice) Contains(vdevID uint64) bool {
	return vdevID >= s.Lo && vdevID <= s.Hi
}

func SliceFor(index VID) Slice {
	return Slice{
		Index: index,
		Lo:    uint64(index) << 32,
		Hi:    (uint64(index)+1)<<32 - 1,
	}
}

// NotifyFunc is the callback a VDRIVER invokes for attach (during probe),
// for interrupt/detach notifications it raises on its own, and for its
// replies to Conn/Call. It is supplied by the loader, bound to the owning
// KOS instance.
type NotifyFunc func(Notification)

// WritePtrFunc is the host-routed pointer-write primitive: a VDRIVER must
// route any write to a wire.Ptr through this rather than dereferencing it
// directly, unless the pointer's host equals the VDRIVER's own.
type WritePtrFunc func(p wire.Ptr, data []byte) error

// Notification is the subset of vdev.Notification a VDRIVER can emit: attach
// (from probe), interrupt or detach at any later time, and the conn,
// conn_fail, call_ret and call_fail replies to Conn/Call.
// Declared locally (rather than depending on pkg/vdev) so the plugin
// contract has no dependency on KOS connection-table internals.
type Notification struct {
	Kind ContractNotifKind

	// Attach
	Spec         string
	VDEVID       uint64
	Version      uint32
	Human        string
	VDriverHuman string
	Preference   uint32

	// Detach
	DetachVDEVID uint64

	// Interrupt
	INO     uint32
	Payload []byte

	// Conn / ConnFail / CallRet / CallFail — responses to conn()/call()
	Cookie       uint64
	ConnID       uint64
	Fns          []wire.Function
	Consts       []wire.Constant
	Return       wire.Value
}

type ContractNotifKind uint8

const (
	NotifyAttach ContractNotifKind = iota
	NotifyDetach
	NotifyInterrupt
	NotifyConn
	NotifyConnFail
	NotifyCall
	NotifyCallFail
)

// Descriptor is the one exported symbol a VDRIVER shared object must
// provide. Fields above the separator are filled in by the VDRIVER author;
// below it, the loader sets VIDSlice, HostID, Notify and WritePtr before
// Init/Probe run. The loader does not set NotifyData; it stays whatever the
// VDRIVER author put there.
type Descriptor struct {
	// Author-supplied.
	Spec    string
	Human   string
	Version uint32

	Init     func() error
	Probe    func(cookie uint64) error
	Conn     func(cookie uint64, vdevID uint64, connID uint64)
	Call     func(cookie uint64, connID uint64, fnID uint32, args []wire.Value)
	Teardown func() // optional

	// Loader-supplied.
	VIDSlice Slice
	HostID   wire.HostID
	Notify   NotifyFunc
	NotifyData interface{}
	WritePtr WritePtrFunc
}

// VDEVID builds a full VDEV-ID out of the VDRIVER's assigned slice and a
// driver-local index; local always fits the slice because it is a uint32.
func (d *Descriptor) VDEVID(local uint32) uint64 {
	return d.VIDSlice.Lo + uint64(local)
}
