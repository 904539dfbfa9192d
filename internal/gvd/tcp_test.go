package gvd

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/inobulles/aqua/internal/gv/packet"
	"github.com/inobulles/aqua/internal/vdriver"
	"github.com/inobulles/aqua/internal/vdrivertest"
)

// newTestDaemon builds a Daemon with a loader resolving "aqua.test" to a
// fresh vdrivertest descriptor, without acquiring the real gv.lock/binding
// the fixed GrapeVine port (Start is never called by these tests).
func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	dir := t.TempDir()
	placeholder := filepath.Join(dir, vdrivertest.Spec+vdriver.Ext)
	if err := os.WriteFile(placeholder, nil, 0644); err != nil {
		t.Fatalf("writing placeholder vdriver file: %v", err)
	}
	t.Setenv(vdriver.PathEnvVar, dir)

	inv := &localInventory{}
	loader := vdriver.NewLoader(1, inv.onAttach, nil)
	loader.SetOpener(func(path string) (*vdriver.Descriptor, error) {
		return vdrivertest.New(), nil
	})

	clock := newSimClock()
	return &Daemon{
		HostID:    1,
		Name:      "test-node",
		loader:    loader,
		inventory: inv,
		table:     newNodeTable(clock),
		clock:     clock,
	}
}

// dialLocal opens a loopback TCP pair without binding GrapeVine's fixed
// port, returning the server-side *net.TCPConn handleConn expects and the
// client-side net.Conn the test drives.
func dialLocal(t *testing.T) (server *net.TCPConn, client net.Conn) {
	t.Helper()

	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	defer ln.Close()

	accepted := make(chan *net.TCPConn, 1)
	go func() {
		c, err := ln.AcceptTCP()
		if err != nil {
			accepted <- nil
			return
		}
		accepted <- c
	}()

	c, err := net.DialTCP("tcp4", nil, ln.Addr().(*net.TCPAddr))
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}

	server = <-accepted
	if server == nil {
		t.Fatalf("accept failed")
	}
	return server, c
}

// TestHandleConnQuery covers the TCP QUERY path: a QUERY gets back a
// QUERY_RES enumerating the daemon's local VDEV inventory.
func TestHandleConnQuery(t *testing.T) {
	d := newTestDaemon(t)
	server, client := dialLocal(t)
	defer client.Close()

	go d.handleConn(server)

	if err := packet.WriteFrame(client, packet.MarshalQuery()); err != nil {
		t.Fatalf("sending QUERY: %v", err)
	}

	reply, err := packet.ReadFrame(client)
	if err != nil {
		t.Fatalf("reading QUERY_RES: %v", err)
	}
	if packet.Type(reply[0]) != packet.QueryRes {
		t.Fatalf("expected QUERY_RES, got %s", packet.Type(reply[0]))
	}

	res, err := packet.UnmarshalQueryRes(reply)
	if err != nil {
		t.Fatalf("unmarshal QUERY_RES: %v", err)
	}
	if len(res.VDEVs) != 1 || res.VDEVs[0].Spec != vdrivertest.Spec {
		t.Fatalf("unexpected local inventory: %+v", res.VDEVs)
	}
	if res.VDEVs[0].HostID != d.HostID {
		t.Fatalf("VDEV host-id = %#x, want %#x", res.VDEVs[0].HostID, d.HostID)
	}
}

// TestHandleConnVDEVUnknownFails covers a CONN_VDEV naming a vdev-id this
// daemon has no VDRIVER for: it must get CONN_VDEV_FAIL, not a hang or a
// spawned gvagent.
func TestHandleConnVDEVUnknownFails(t *testing.T) {
	d := newTestDaemon(t)
	server, client := dialLocal(t)
	defer client.Close()

	go d.handleConn(server)

	req := packet.ConnVDEVPacket{VDEVID: 0xdeadbeef}
	if err := packet.WriteFrame(client, req.Marshal()); err != nil {
		t.Fatalf("sending CONN_VDEV: %v", err)
	}

	reply, err := packet.ReadFrame(client)
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if packet.Type(reply[0]) != packet.ConnVDEVFail {
		t.Fatalf("expected CONN_VDEV_FAIL, got %s", packet.Type(reply[0]))
	}
}

// TestHandleConnUnexpectedTypeClosesConnection covers a malformed/unexpected
// leading packet type: the connection is simply closed rather than hung.
func TestHandleConnUnexpectedTypeClosesConnection(t *testing.T) {
	d := newTestDaemon(t)
	server, client := dialLocal(t)
	defer client.Close()

	go d.handleConn(server)

	if err := packet.WriteFrame(client, []byte{byte(packet.KOSCallRet)}); err != nil {
		t.Fatalf("sending bogus frame: %v", err)
	}

	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Read(buf); err == nil {
		t.Fatalf("expected the connection to be closed, got data instead")
	}
}
