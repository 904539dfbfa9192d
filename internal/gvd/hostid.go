package gvd

import (
	"fmt"
	"net"

	"github.com/inobulles/aqua/pkg/wire"
)

// hostIDConst fills the low 16 bits of a derived host-id below the
// interface MAC. It is a fixed constant, so the host-id is a deterministic
// function of the MAC: two hosts sharing a MAC get the same host-id.
const hostIDConst = 0xA55A

// DeriveHostID picks the first non-loopback, broadcast-capable network
// interface with a hardware address and folds its MAC into a host-id:
// (mac48 << 16) | hostIDConst.
func DeriveHostID() (wire.HostID, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0, fmt.Errorf("gvd: listing network interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		if len(iface.HardwareAddr) != 6 {
			continue
		}

		var mac uint64
		for _, b := range iface.HardwareAddr {
			mac = mac<<8 | uint64(b)
		}

		return wire.HostID(mac<<16 | hostIDConst), nil
	}

	return 0, fmt.Errorf("gvd: no non-loopback broadcast-capable interface with a hardware address found")
}
