// Package vdrivertest provides an in-process VDRIVER used to drive the
// CORE's end-to-end scenarios without a real loadable .vdriver shared
// object. It implements spec "aqua.test" with a single VDEV exposing
// add(a:u64, b:u64) -> u64.
package vdrivertest

import (
	"github.com/inobulles/aqua/internal/vdriver"
	"github.com/inobulles/aqua/pkg/wire"
)

const Spec = "aqua.test"

const (
	fnAdd = 0
)

// driver holds the one VDEV this VDRIVER exposes; local-only, not
// thread-safe beyond what the KOS's single-threaded call discipline
// already guarantees.
type driver struct {
	descr *vdriver.Descriptor
}

// New builds a fresh *vdriver.Descriptor. It is meant to be installed via
// vdriver.Loader.SetOpener in tests, keyed by whatever path the test
// chooses to call it.
func New() *vdriver.Descriptor {
	d := &driver{}
	descr := &vdriver.Descriptor{
		Spec:    Spec,
		Human:   "in-process arithmetic test VDRIVER",
		Version: 1,
	}
	descr.Init = d.init
	descr.Probe = d.probe
	descr.Conn = d.conn
	descr.Call = d.call
	d.descr = descr
	return descr
}

func (d *driver) init() error { return nil }

func (d *driver) probe(cookie uint64) error {
	d.descr.Notify(vdriver.Notification{
		Kind:         vdriver.NotifyAttach,
		Spec:         Spec,
		VDEVID:       d.descr.VDEVID(0),
		Version:      d.descr.Version,
		Human:        "aqua.test VDEV #0",
		VDriverHuman: d.descr.Human,
		Preference:   0,
	})
	return nil
}

func (d *driver) conn(cookie uint64, vdevID uint64, connID uint64) {
	if vdevID != d.descr.VDEVID(0) {
		d.descr.Notify(vdriver.Notification{Kind: vdriver.NotifyConnFail, Cookie: cookie})
		return
	}

	d.descr.Notify(vdriver.Notification{
		Kind:   vdriver.NotifyConn,
		Cookie: cookie,
		ConnID: connID,
		Fns: []wire.Function{
			{
				Name:    "add",
				RetType: wire.U64,
				Params: []wire.Param{
					{Type: wire.U64, Name: "a"},
					{Type: wire.U64, Name: "b"},
				},
			},
		},
	})
}

func (d *driver) call(cookie uint64, connID uint64, fnID uint32, args []wire.Value) {
	if fnID != fnAdd || len(args) != 2 {
		d.descr.Notify(vdriver.Notification{Kind: vdriver.NotifyCallFail, Cookie: cookie, ConnID: connID})
		return
	}

	a, errA := args[0].U64()
	b, errB := args[1].U64()
	if errA != nil || errB != nil {
		d.descr.Notify(vdriver.Notification{Kind: vdriver.NotifyCallFail, Cookie: cookie, ConnID: connID})
		return
	}
	sum := a + b
	d.descr.Notify(vdriver.Notification{
		Kind:   vdriver.NotifyCall,
		Cookie: cookie,
		ConnID: connID,
		Return: wire.U64Value(sum),
	})
}
