// Package gvd implements the GrapeVine daemon: UDP echolocation (ELP)
// broadcast/listen, TCP QUERY/CONN_VDEV handling, and the per-node
// discovery state machine described in original_source/gv/elp.c,
// gv/query.c, and gv/main.c.
package gvd

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/jacobsa/timeutil"

	"github.com/inobulles/aqua/internal/gv/ipc"
	"github.com/inobulles/aqua/internal/gv/packet"
	"github.com/inobulles/aqua/internal/vdriver"
	"github.com/inobulles/aqua/pkg/alog"
	"github.com/inobulles/aqua/pkg/wire"
)

// Daemon is one running gvd instance: exactly three always-on goroutines
// (ELP sender, ELP listener, TCP accept loop) sharing one node table.
type Daemon struct {
	HostID wire.HostID
	Name   string

	loader    *vdriver.Loader
	inventory *localInventory
	table     *nodeTable
	clock     timeutil.Clock
	lock      *ipc.Lock

	udpConn *net.UDPConn
	tcpLn   *net.TCPListener

	broadcastAddr *net.UDPAddr

	// unique identifies this process's run to peers: it changes across
	// restarts so a peer can tell a rebooted host-id apart from a live one.
	unique uint64
}

// Options configures a new Daemon. Clock defaults to timeutil.RealClock()
// when nil (tests inject a fake to make ELP_DELAY/NODE_TTL deterministic).
type Options struct {
	HostID wire.HostID
	Name   string
	Loader *vdriver.Loader
	Clock  timeutil.Clock
}

func New(opts Options) (*Daemon, error) {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}

	inv := &localInventory{}

	loader := opts.Loader
	if loader == nil {
		loader = vdriver.NewLoader(opts.HostID, inv.onAttach, nil)
	} else {
		loader.Notify = inv.onAttach
	}

	var uniqueBuf [8]byte
	if _, err := rand.Read(uniqueBuf[:]); err != nil {
		return nil, fmt.Errorf("gvd: seeding ELP unique id: %w", err)
	}

	return &Daemon{
		HostID:    opts.HostID,
		Name:      opts.Name,
		loader:    loader,
		inventory: inv,
		table:     newNodeTable(clock),
		clock:     clock,
		unique:    binary.LittleEndian.Uint64(uniqueBuf[:]),
	}, nil
}

// Start acquires the gv.lock singleton, publishes the host-id file, and
// opens the UDP/TCP sockets gvd needs, without yet running its threads.
func (d *Daemon) Start() error {
	lock, err := ipc.AcquireLock()
	if err != nil {
		return fmt.Errorf("gvd: %w", err)
	}
	d.lock = lock

	if err := ipc.WriteHostID(d.HostID); err != nil {
		d.lock.Release()
		return err
	}

	udpAddr := &net.UDPAddr{Port: packet.Port}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		d.lock.Release()
		return fmt.Errorf("gvd: listening on UDP %d: %w", packet.Port, err)
	}
	d.udpConn = conn

	if err := enableBroadcast(conn); err != nil {
		alog.Warn("gvd: could not enable SO_BROADCAST: %v", err)
	}

	tcpAddr := &net.TCPAddr{Port: packet.Port}
	tcpLn, err := net.ListenTCP("tcp4", tcpAddr)
	if err != nil {
		d.udpConn.Close()
		d.lock.Release()
		return fmt.Errorf("gvd: listening on TCP %d: %w", packet.Port, err)
	}
	d.tcpLn = tcpLn

	d.broadcastAddr = &net.UDPAddr{IP: net.IPv4bcast, Port: packet.Port}

	alog.Info("gvd: started (host-id=%#x, name=%q)", d.HostID, d.Name)
	return nil
}

// Stop releases every resource Start acquired.
func (d *Daemon) Stop() {
	if d.udpConn != nil {
		d.udpConn.Close()
	}
	if d.tcpLn != nil {
		d.tcpLn.Close()
	}
	if d.lock != nil {
		d.lock.Release()
	}
}

// Run blocks, running the three daemon threads under one errgroup until
// ctx is cancelled or one of them fails.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return d.elpSenderLoop(ctx) })
	g.Go(func() error { return d.elpListenerLoop(ctx) })
	g.Go(func() error { return d.tcpAcceptLoop(ctx) })

	return g.Wait()
}
