package vdriver

import (
	"testing"

	"github.com/inobulles/aqua/pkg/wire"
)

func fakeOpener(descrs map[string]*Descriptor) Opener {
	return func(path string) (*Descriptor, error) {
		d, ok := descrs[path]
		if !ok {
			d = &Descriptor{Spec: path}
		}
		cp := *d
		return &cp, nil
	}
}

func TestSliceForDisjoint(t *testing.T) {
	a := SliceFor(0)
	b := SliceFor(1)

	if a.Hi >= b.Lo {
		t.Fatalf("slices overlap: %+v %+v", a, b)
	}
	if !a.Contains(a.Lo) || !a.Contains(a.Hi) {
		t.Fatalf("slice does not contain its own bounds: %+v", a)
	}
	if a.Contains(b.Lo) || b.Contains(a.Hi) {
		t.Fatalf("slice contains neighbor's bound: %+v %+v", a, b)
	}
}

func TestLoaderAssignsDisjointSlices(t *testing.T) {
	l := NewLoader(wire.LocalHostID, func(Notification) {}, nil)
	l.SetOpener(fakeOpener(map[string]*Descriptor{
		"/a.vdriver": {Spec: "a"},
		"/b.vdriver": {Spec: "b"},
	}))

	da, err := l.load("/a.vdriver")
	if err != nil {
		t.Fatal(err)
	}
	db, err := l.load("/b.vdriver")
	if err != nil {
		t.Fatal(err)
	}

	if da.VIDSlice.Index == db.VIDSlice.Index {
		t.Fatalf("expected distinct slices, got %d == %d", da.VIDSlice.Index, db.VIDSlice.Index)
	}
	if da.VIDSlice.Contains(db.VDEVID(0)) {
		t.Fatalf("slice a contains a vdev-id minted from slice b")
	}
}

func TestLoaderCachesByAbsolutePath(t *testing.T) {
	calls := 0
	l := NewLoader(wire.LocalHostID, func(Notification) {}, nil)
	l.SetOpener(func(path string) (*Descriptor, error) {
		calls++
		return &Descriptor{Spec: "a"}, nil
	})

	d1, err := l.load("x.vdriver")
	if err != nil {
		t.Fatal(err)
	}
	d2, err := l.load("x.vdriver")
	if err != nil {
		t.Fatal(err)
	}
	if d1 != d2 {
		t.Fatalf("expected cached descriptor to be reused")
	}
	if calls != 1 {
		t.Fatalf("expected opener to be called once, got %d", calls)
	}
}

func TestFindByVDEVID(t *testing.T) {
	l := NewLoader(wire.LocalHostID, func(Notification) {}, nil)
	l.SetOpener(fakeOpener(nil))

	da, err := l.load("/a.vdriver")
	if err != nil {
		t.Fatal(err)
	}
	_, err = l.load("/b.vdriver")
	if err != nil {
		t.Fatal(err)
	}

	vdevID := da.VDEVID(7)
	found := l.FindByVDEVID(vdevID)
	if found == nil || found.Spec != da.Spec {
		t.Fatalf("FindByVDEVID(%#x) = %+v, want driver %q", vdevID, found, da.Spec)
	}

	if l.FindByVDEVID(1 << 40) != nil {
		t.Fatalf("expected no driver to own an out-of-range vdev-id")
	}
}

func TestLoadInitFailurePropagates(t *testing.T) {
	l := NewLoader(wire.LocalHostID, func(Notification) {}, nil)
	l.SetOpener(func(path string) (*Descriptor, error) {
		return &Descriptor{
			Spec: "broken",
			Init: func() error { return errTestInit },
		}, nil
	})

	if _, err := l.load("broken.vdriver"); err == nil {
		t.Fatalf("expected Init failure to propagate")
	}
}

var errTestInit = initErr("boom")

type initErr string

func (e initErr) Error() string { return string(e) }
