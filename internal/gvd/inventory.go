package gvd

import (
	"net"
	"sync"

	"github.com/inobulles/aqua/internal/gv/ipc"
	"github.com/inobulles/aqua/internal/vdriver"
	"github.com/inobulles/aqua/pkg/alog"
	"github.com/inobulles/aqua/pkg/vdev"
)

// localInventory accumulates the attach notifications gvd's loader raises
// during Inventory(), since a VDRIVER may expose more than one VDEV (the
// loader only hands back its top-level descriptor, not each attached
// VDEV).
type localInventory struct {
	mu    sync.Mutex
	vdevs []vdev.Descriptor
}

func (li *localInventory) onAttach(n vdriver.Notification) {
	if n.Kind != vdriver.NotifyAttach {
		return
	}
	li.mu.Lock()
	defer li.mu.Unlock()
	li.vdevs = append(li.vdevs, vdev.Descriptor{
		VDEVID:       n.VDEVID,
		Spec:         n.Spec,
		Version:      n.Version,
		Human:        n.Human,
		VDriverHuman: n.VDriverHuman,
		Kind:         vdev.KindLocal,
		Preference:   n.Preference,
	})
}

func (li *localInventory) snapshot() []vdev.Descriptor {
	li.mu.Lock()
	defer li.mu.Unlock()
	out := make([]vdev.Descriptor, len(li.vdevs))
	copy(out, li.vdevs)
	return out
}

// localVDEVs re-probes every loaded VDRIVER and returns the full local
// VDEV inventory, for answering a QUERY.
func (d *Daemon) localVDEVs() []vdev.Descriptor {
	d.inventory.mu.Lock()
	d.inventory.vdevs = nil
	d.inventory.mu.Unlock()

	if err := d.loader.Inventory(0); err != nil {
		alog.Warn("gvd: local inventory failed: %v", err)
	}

	vdevs := d.inventory.snapshot()
	for i := range vdevs {
		vdevs[i].HostID = d.HostID
	}
	return vdevs
}

// publishNodes rewrites gv.nodes with this gvd's full up-to-date view of
// every live peer, for co-resident KOS instances to read.
func (d *Daemon) publishNodes() {
	var entries []ipc.NodeEntry
	for _, n := range d.table.snapshot() {
		if n.State != StateLive {
			continue
		}
		entries = append(entries, ipc.NodeEntry{
			HostID: n.HostID,
			IP:     nodeIP(n.Addr),
			VDEVs:  n.VDEVs,
		})
	}

	if err := ipc.WriteNodes(entries); err != nil {
		alog.Warn("gvd: publishing nodes file: %v", err)
	}
}

func nodeIP(addr *net.UDPAddr) net.IP {
	if addr == nil {
		return net.IPv4zero
	}
	return addr.IP
}
