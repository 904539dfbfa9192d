// Package kos implements the KOS runtime: the API handshake, notification
// pub/sub, deferred action queue, and the local/remote connect and call
// paths described in original_source/kos/kos.c and kos.h.
package kos

import (
	"fmt"
	"sync"

	"github.com/inobulles/aqua/internal/vdriver"
	"github.com/inobulles/aqua/pkg/alog"
	"github.com/inobulles/aqua/pkg/vdev"
	"github.com/inobulles/aqua/pkg/wire"
)

// APIVersion mirrors kos_api_vers_t; the CORE speaks exactly one, v4.
type APIVersion uint64

const (
	APINone APIVersion = 0
	APIV4   APIVersion = 4
)

// Descr is returned from Hello: the negotiated version, the best version
// this KOS could theoretically speak, and a human name.
type Descr struct {
	APIVersion     APIVersion
	BestAPIVersion APIVersion
	Name           string
}

// GVTransport abstracts the GrapeVine RPC tunnel a KOS uses for VDEVs that
// live on another host. internal/gvd and internal/gvagent together provide
// the concrete implementation; it is injected rather than imported directly
// so this package stays free of network/process-spawning concerns.
type GVTransport interface {
	// QueryVDEVs asks every known GrapeVine node for VDEVs matching spec,
	// used to synthesize attach notifications for req_vdev the way the
	// local loader does for VDEV_KIND_LOCAL/UDS drivers.
	QueryVDEVs(spec string) ([]vdev.Descriptor, error)
	// Connect opens a remote connection to (hostID, vdevID), returning the
	// remote-assigned connection id and its function/constant tables.
	Connect(hostID wire.HostID, vdevID uint64) (connID uint64, fns []wire.Function, consts []wire.Constant, err error)
	Disconnect(connID uint64)
	// Call invokes fnID on connID and blocks for the reply.
	Call(connID uint64, fnID uint32, args []wire.Value, retType wire.Type) (wire.Value, error)
}

// Options configures a new KOS handle. HostID and Name are required; Loader
// and GV may be left nil (GV absence means every connect to a non-local
// host fails with conn_fail, matching a KOS with no GrapeVine daemon
// reachable).
type Options struct {
	HostID wire.HostID
	Name   string
	Loader *vdriver.Loader
	GV     GVTransport
}

// KOS is one runtime instance: the encapsulated replacement for the
// original's process-global state (REDESIGN FLAGS, "Process-wide KOS
// state").
type KOS struct {
	hostID wire.HostID
	name   string
	gv     GVTransport
	loader *vdriver.Loader

	mu          sync.Mutex // guards below
	nextCookie  vdev.Cookie
	nextConnID  uint64
	connections map[uint64]*vdev.Connection
	callback    vdev.Callback

	// pending marks cookies with an outstanding action not yet resolved by
	// a notification; it exists so a dropped (never-dispatched) action can
	// be told apart from a timed-out one when diagnosing a stuck cookie.
	pending map[vdev.Cookie]struct{}

	queue *actionQueue
}

// Hello negotiates an API version in [min, max] and, on success, returns a
// ready KOS handle. The CORE only ever speaks APIV4, so the negotiated
// version is APIV4 whenever min <= APIV4 <= max, and APINone otherwise.
func Hello(min, max APIVersion, opts Options) (*KOS, Descr, error) {
	descr := Descr{BestAPIVersion: APIV4, Name: opts.Name}

	if min > APIV4 || max < APIV4 {
		descr.APIVersion = APINone
		return nil, descr, fmt.Errorf("kos: no overlapping API version in [%d, %d]", min, max)
	}
	descr.APIVersion = APIV4

	loader := opts.Loader
	k := &KOS{
		hostID:      opts.HostID,
		name:        opts.Name,
		gv:          opts.GV,
		connections: make(map[uint64]*vdev.Connection),
		pending:     make(map[vdev.Cookie]struct{}),
		queue:       newActionQueue(),
	}

	if loader == nil {
		loader = vdriver.NewLoader(opts.HostID, k.onVDriverNotify, k.writePtr)
	} else {
		loader.Notify = k.onVDriverNotify
	}
	k.loader = loader

	alog.Info("kos: hello negotiated API v%d (%s)", descr.APIVersion, opts.Name)
	return k, descr, nil
}

// writePtr is the default pointer-routing primitive handed to VDRIVERs. It
// routes no writes: every call returns an error, whichever host the pointer
// names, and data is not written anywhere.
func (k *KOS) writePtr(p wire.Ptr, data []byte) error {
	return fmt.Errorf("kos: write_ptr to host %d not implemented by this runtime", p.Host)
}

func (k *KOS) nextCookieLocked() vdev.Cookie {
	k.nextCookie++
	return k.nextCookie
}
