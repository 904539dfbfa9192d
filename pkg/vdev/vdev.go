// Package vdev holds the data model AQUA's KOS runtime and GrapeVine
// transport both operate on: VDEV descriptors, cookies, interrupt numbers,
// notifications, and connections. It builds directly on pkg/wire's codec
// types (wire.Function, wire.Constant, wire.Value) rather than duplicating
// them.
package vdev

import "github.com/inobulles/aqua/pkg/wire"

// Cookie tags every asynchronous request; the runtime echoes it back in the
// notification that resolves it. Monotonically increasing per process.
type Cookie uint64

// INO (interrupt number) identifies a persistent asynchronous event stream,
// bound to a (component, user-data) pair by the component runtime that sits
// above the KOS. Monotonically increasing per process.
type INO uint32

// Kind reflects the transport distance between a client and the VDEV it's
// talking to.
type Kind uint8

const (
	KindLocal Kind = iota // memory-local to the process
	KindUDS               // system-local, UNIX domain socket + shared memory
	KindGV                // only reachable through GrapeVine
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindUDS:
		return "uds"
	case KindGV:
		return "gv"
	}
	return "unknown"
}

// SpecSize and the *Size constants below are the fixed widths the wire
// layout in original_source/kos/lib/kos.h uses for VDEV descriptor fields.
const (
	SpecSize         = 64
	HumanSize        = 256
	VDriverHumanSize = 256
)

// Descriptor describes one VDEV: {host_id, vdev_id, spec[64], version,
// human[256], vdriver_human[256], kind, preference}. (host_id, vdev_id) is
// globally unique.
type Descriptor struct {
	HostID       wire.HostID
	VDEVID       uint64
	Spec         string
	Version      uint32
	Human        string
	VDriverHuman string
	Kind         Kind
	Preference   uint32
}

// ID returns the (host_id, vdev_id) pair that globally identifies a VDEV.
type ID struct {
	Host wire.HostID
	VDEV uint64
}

func (d Descriptor) ID() ID { return ID{Host: d.HostID, VDEV: d.VDEVID} }
