package kos

import (
	"github.com/inobulles/aqua/pkg/alog"
	"github.com/inobulles/aqua/pkg/vdev"
)

// ReqVDEV requests that VDEVs matching spec be loaded. It is guaranteed to
// synchronously deliver an attach notification for every VDEV_KIND_LOCAL
// match (through the loader's Probe call) before it returns; a GrapeVine
// transport, if configured, is also queried so remote matches attach
// without the caller having to poll.
func (k *KOS) ReqVDEV(spec string) error {
	err := k.loader.RequestLocalVDEV(spec, 0)
	if err != nil {
		alog.Warn("kos: req_vdev(%q) local lookup failed: %v", spec, err)
	}

	if k.gv == nil {
		return err
	}

	remote, gvErr := k.gv.QueryVDEVs(spec)
	if gvErr != nil {
		alog.Warn("kos: req_vdev(%q) gv lookup failed: %v", spec, gvErr)
		if err == nil {
			err = gvErr
		}
		return err
	}

	for _, d := range remote {
		d.Kind = vdev.KindGV
		k.deliver(vdev.Notification{Kind: vdev.NotifAttach, VDEV: d})
	}

	return err
}
