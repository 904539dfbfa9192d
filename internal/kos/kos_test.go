package kos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/inobulles/aqua/internal/vdriver"
	"github.com/inobulles/aqua/internal/vdrivertest"
	"github.com/inobulles/aqua/pkg/vdev"
	"github.com/inobulles/aqua/pkg/wire"
)

// newTestKOS builds a KOS whose loader always hands back a fresh
// vdrivertest descriptor for any path, so ReqVDEV("aqua.test") attaches the
// test VDEV. VDRIVER_PATH is pointed at a temp dir holding a placeholder
// "aqua.test.vdriver" file so the loader's filesystem glob finds a
// candidate to hand to the fake opener; its contents are never read.
func newTestKOS(t *testing.T) (*KOS, *captured) {
	t.Helper()

	dir := t.TempDir()
	placeholder := filepath.Join(dir, vdrivertest.Spec+vdriver.Ext)
	if err := os.WriteFile(placeholder, nil, 0644); err != nil {
		t.Fatalf("writing placeholder vdriver file: %v", err)
	}
	t.Setenv(vdriver.PathEnvVar, dir)

	k, descr, err := Hello(APIV4, APIV4, Options{HostID: 1, Name: "test kos"})
	if err != nil {
		t.Fatalf("Hello: %v", err)
	}
	if descr.APIVersion != APIV4 {
		t.Fatalf("negotiated version = %d, want %d", descr.APIVersion, APIV4)
	}

	loader := vdriver.NewLoader(1, k.onVDriverNotify, k.writePtr)
	loader.SetOpener(func(path string) (*vdriver.Descriptor, error) {
		return vdrivertest.New(), nil
	})
	k.loader = loader

	rec := &captured{}
	k.Subscribe(rec.record)
	return k, rec
}

type captured struct {
	notifs []vdev.Notification
}

func (c *captured) record(n vdev.Notification) { c.notifs = append(c.notifs, n) }

func (c *captured) last() vdev.Notification {
	if len(c.notifs) == 0 {
		return vdev.Notification{}
	}
	return c.notifs[len(c.notifs)-1]
}

func (c *captured) find(kind vdev.NotifKind) (vdev.Notification, bool) {
	for _, n := range c.notifs {
		if n.Kind == kind {
			return n, true
		}
	}
	return vdev.Notification{}, false
}

// TestLocalCallRoundTrip is the spec's scenario 1: connect, call add(420,
// 69), flush, expect call_ret u64=489 with a matching cookie.
func TestLocalCallRoundTrip(t *testing.T) {
	k, rec := newTestKOS(t)

	if err := k.ReqVDEV(vdrivertest.Spec); err != nil {
		t.Fatalf("ReqVDEV: %v", err)
	}
	attach, ok := rec.find(vdev.NotifAttach)
	if !ok {
		t.Fatalf("expected an attach notification, got %+v", rec.notifs)
	}

	connectCookie := k.Connect(1, attach.VDEV.VDEVID)
	k.Flush(true)

	conn, ok := rec.find(vdev.NotifConn)
	if !ok || conn.Cookie != connectCookie {
		t.Fatalf("expected conn notification with cookie %d, got %+v", connectCookie, rec.notifs)
	}
	if len(conn.Fns) != 1 || conn.Fns[0].Name != "add" {
		t.Fatalf("unexpected fn table: %+v", conn.Fns)
	}

	callCookie := k.Call(conn.ConnectionID, 0, []wire.Value{wire.U64Value(420), wire.U64Value(69)})
	k.Flush(true)

	ret := rec.last()
	if ret.Kind != vdev.NotifCallRet {
		t.Fatalf("expected call_ret, got %v", ret.Kind)
	}
	if ret.Cookie != callCookie {
		t.Fatalf("call_ret cookie = %d, want %d", ret.Cookie, callCookie)
	}
	got, err := ret.Return.U64()
	if err != nil {
		t.Fatalf("Return.U64(): %v", err)
	}
	if got != 489 {
		t.Fatalf("add(420, 69) = %d, want 489", got)
	}
}

// TestUnknownFunctionCallFails is the spec's scenario 2: calling an
// out-of-range fn_id yields call_fail and leaves the connection alive.
func TestUnknownFunctionCallFails(t *testing.T) {
	k, rec := newTestKOS(t)

	if err := k.ReqVDEV(vdrivertest.Spec); err != nil {
		t.Fatalf("ReqVDEV: %v", err)
	}
	attach, _ := rec.find(vdev.NotifAttach)

	k.Connect(1, attach.VDEV.VDEVID)
	k.Flush(true)
	conn, _ := rec.find(vdev.NotifConn)

	callCookie := k.Call(conn.ConnectionID, 7, nil)
	k.Flush(true)

	ret := rec.last()
	if ret.Kind != vdev.NotifCallFail {
		t.Fatalf("expected call_fail, got %v", ret.Kind)
	}
	if ret.Cookie != callCookie {
		t.Fatalf("call_fail cookie = %d, want %d", ret.Cookie, callCookie)
	}

	k.mu.Lock()
	c := k.connections[conn.ConnectionID]
	k.mu.Unlock()
	if !c.Alive() {
		t.Fatalf("connection should still be alive after call_fail")
	}
}

// TestActionQueueDropsOnOverflow exercises the spec's bounded-queue
// invariant: the 17th pending action before a flush is dropped, and the
// queue returns to 0 after flush.
func TestActionQueueDropsOnOverflow(t *testing.T) {
	k, rec := newTestKOS(t)

	if err := k.ReqVDEV(vdrivertest.Spec); err != nil {
		t.Fatalf("ReqVDEV: %v", err)
	}
	attach, _ := rec.find(vdev.NotifAttach)

	k.Connect(1, attach.VDEV.VDEVID)
	k.Flush(true)
	conn, _ := rec.find(vdev.NotifConn)

	for i := 0; i < queueCap+1; i++ {
		k.Call(conn.ConnectionID, 0, []wire.Value{wire.U64Value(1), wire.U64Value(1)})
	}
	if got := k.QueueLen(); got != queueCap {
		t.Fatalf("queue length before flush = %d, want %d (one dropped)", got, queueCap)
	}

	k.Flush(true)
	if got := k.QueueLen(); got != 0 {
		t.Fatalf("queue length after flush = %d, want 0", got)
	}
}

// TestDisconnectFailsSubsequentCalls ensures a call on a disconnected
// connection gets call_fail rather than being dispatched to the VDRIVER.
func TestDisconnectFailsSubsequentCalls(t *testing.T) {
	k, rec := newTestKOS(t)

	if err := k.ReqVDEV(vdrivertest.Spec); err != nil {
		t.Fatalf("ReqVDEV: %v", err)
	}
	attach, _ := rec.find(vdev.NotifAttach)

	k.Connect(1, attach.VDEV.VDEVID)
	k.Flush(true)
	conn, _ := rec.find(vdev.NotifConn)

	k.Disconnect(conn.ConnectionID)
	callCookie := k.Call(conn.ConnectionID, 0, []wire.Value{wire.U64Value(1), wire.U64Value(1)})
	k.Flush(true)

	ret := rec.last()
	if ret.Kind != vdev.NotifCallFail || ret.Cookie != callCookie {
		t.Fatalf("expected call_fail for cookie %d, got %+v", callCookie, ret)
	}
}
