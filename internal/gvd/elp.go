package gvd

import (
	"context"
	"net"
	"syscall"
	"time"

	"github.com/inobulles/aqua/internal/gv/packet"
	"github.com/inobulles/aqua/pkg/alog"
	"github.com/inobulles/aqua/pkg/wire"
)

// enableBroadcast sets SO_BROADCAST on conn's underlying socket, mirroring
// the original's raw setsockopt(SO_BROADCAST) call in gv/elp.c; there is no
// portable net.UDPConn option for this, so the syscall is reached for
// directly rather than going through golang.org/x/net (whose ipv4 package
// is multicast-oriented, not broadcast-oriented, and doesn't fit here).
func enableBroadcast(conn *net.UDPConn) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// elpSenderLoop broadcasts an ELP every ELPDelay and sweeps expired nodes
// from the table on the same tick.
func (d *Daemon) elpSenderLoop(ctx context.Context) error {
	ticker := time.NewTicker(ELPDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p := packet.ELPPacket{
				Vers:   packet.ElpVersion,
				Unique: d.unique,
				HostID: d.HostID,
				Name:   d.Name,
			}
			if _, err := d.udpConn.WriteToUDP(p.Marshal(), d.broadcastAddr); err != nil {
				alog.Warn("gvd: sending ELP: %v", err)
			}

			dead := d.table.sweep()
			for _, id := range dead {
				alog.Info("gvd: node %#x expired (no ELP within NODE_TTL)", id)
			}
			if len(dead) > 0 {
				d.publishNodes()
			}
		}
	}
}

// elpListenerLoop receives ELP broadcasts from peers, and for any
// newly-seen or changed node, issues a TCP QUERY to learn its VDEVs.
func (d *Daemon) elpListenerLoop(ctx context.Context) error {
	buf := make([]byte, packet.UDPBudget)

	go func() {
		<-ctx.Done()
		d.udpConn.Close()
	}()

	for {
		n, addr, err := d.udpConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		p, err := packet.UnmarshalELP(buf[:n])
		if err != nil {
			alog.Warn("gvd: malformed ELP from %s: %v", addr, err)
			continue
		}
		if p.HostID == d.HostID {
			continue // our own broadcast, echoed back to us
		}

		if d.table.touch(p.HostID, addr, p.Unique) {
			go d.queryNode(p.HostID, addr)
		}
	}
}

// queryNode dials a peer's TCP port and asks it for its VDEV inventory.
func (d *Daemon) queryNode(hostID wire.HostID, addr *net.UDPAddr) {
	tcpAddr := &net.TCPAddr{IP: addr.IP, Port: packet.Port}

	conn, err := net.DialTCP("tcp4", nil, tcpAddr)
	if err != nil {
		alog.Warn("gvd: querying %#x at %s: %v", hostID, tcpAddr, err)
		return
	}
	defer conn.Close()

	if err := packet.WriteFrame(conn, packet.MarshalQuery()); err != nil {
		alog.Warn("gvd: sending QUERY to %#x: %v", hostID, err)
		return
	}

	reply, err := packet.ReadFrame(conn)
	if err != nil {
		alog.Warn("gvd: reading QUERY_RES from %#x: %v", hostID, err)
		return
	}

	res, err := packet.UnmarshalQueryRes(reply)
	if err != nil {
		alog.Warn("gvd: malformed QUERY_RES from %#x: %v", hostID, err)
		return
	}

	d.table.markLive(hostID, res.VDEVs)
	d.publishNodes()
	alog.Info("gvd: node %#x is live with %d VDEV(s)", hostID, len(res.VDEVs))
}
