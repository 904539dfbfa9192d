package ipc

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/inobulles/aqua/pkg/vdev"
)

func TestHostIDRoundTrip(t *testing.T) {
	t.Setenv("GV_HOST_ID_PATH", filepath.Join(t.TempDir(), "gv.host_id"))

	if err := WriteHostID(0x0011223344556677); err != nil {
		t.Fatal(err)
	}
	got, err := ReadHostID()
	if err != nil {
		t.Fatal(err)
	}
	if got != 0x0011223344556677 {
		t.Fatalf("got %#x, want %#x", got, 0x0011223344556677)
	}
}

func TestNodesRoundTripV4AndV6(t *testing.T) {
	t.Setenv("GV_NODES_PATH", filepath.Join(t.TempDir(), "gv.nodes"))

	entries := []NodeEntry{
		{
			HostID: 1,
			IP:     net.ParseIP("192.168.1.5"),
			VDEVs: []vdev.Descriptor{
				{HostID: 1, VDEVID: 10, Spec: "aqua.test", Version: 1, Kind: vdev.KindGV},
			},
		},
		{
			HostID: 2,
			IP:     net.ParseIP("fe80::1"),
			VDEVs:  nil,
		},
	}

	if err := WriteNodes(entries); err != nil {
		t.Fatal(err)
	}

	got, err := ReadNodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].HostID != 1 || !got[0].IP.Equal(entries[0].IP) {
		t.Fatalf("entry 0 mismatch: %+v", got[0])
	}
	if len(got[0].VDEVs) != 1 || got[0].VDEVs[0].Spec != "aqua.test" {
		t.Fatalf("entry 0 vdevs mismatch: %+v", got[0].VDEVs)
	}
	if got[1].HostID != 2 || !got[1].IP.Equal(entries[1].IP) {
		t.Fatalf("entry 1 mismatch: %+v", got[1])
	}
}

func TestNodesMissingFileIsNotAnError(t *testing.T) {
	t.Setenv("GV_NODES_PATH", filepath.Join(t.TempDir(), "does-not-exist"))

	got, err := ReadNodes()
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil entries for a missing file, got %+v", got)
	}
}

func TestLockSingleton(t *testing.T) {
	t.Setenv("GV_LOCK_PATH", filepath.Join(t.TempDir(), "gv.lock"))

	l, err := AcquireLock()
	if err != nil {
		t.Fatal(err)
	}
	defer l.Release()

	if !Running() {
		t.Fatalf("expected Running() to report true while lock is held")
	}

	if _, err := AcquireLock(); err == nil {
		t.Fatalf("expected a second AcquireLock to fail while the first is held")
	}
}
