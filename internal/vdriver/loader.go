package vdriver

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"strings"
	"sync"

	"github.com/inobulles/aqua/pkg/alog"
	"github.com/inobulles/aqua/pkg/wire"
)

const (
	// PathEnvVar is the VDRIVER_PATH environment variable name; it may hold
	// multiple colon-separated search path entries.
	PathEnvVar = "VDRIVER_PATH"

	// DefaultPath is used when PathEnvVar is unset.
	DefaultPath = "vdriver"

	// Ext is the required filename suffix of a VDRIVER shared object.
	Ext = ".vdriver"

	// EntrySymbol is the one exported symbol every VDRIVER must provide:
	// a *Descriptor.
	EntrySymbol = "AquaVDRIVER"

	maxSlices = 1 << 32
)

// Opener abstracts plugin.Open so tests can substitute an in-process
// descriptor instead of requiring a real .vdriver shared object on disk
// (concrete VDRIVERs are out of this CORE's scope; see
// internal/vdrivertest).
type Opener func(path string) (*Descriptor, error)

func defaultOpener(path string) (*Descriptor, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vdriver: opening %s: %w", path, err)
	}

	sym, err := p.Lookup(EntrySymbol)
	if err != nil {
		return nil, fmt.Errorf("vdriver: %s missing %s symbol: %w", path, EntrySymbol, err)
	}

	descr, ok := sym.(*Descriptor)
	if !ok {
		return nil, fmt.Errorf("vdriver: %s's %s symbol has the wrong type", path, EntrySymbol)
	}

	return descr, nil
}

// Loader discovers, loads, and assigns VID slices to VDRIVERs for one
// process. It is owned by exactly one KOS instance (or, for gvd, used
// directly to take local inventory).
type Loader struct {
	HostID wire.HostID
	Notify NotifyFunc
	WritePtr WritePtrFunc

	open Opener

	mu       sync.Mutex // guards below
	nextSlice uint64
	byPath   map[string]*Descriptor // absolute path -> loaded descriptor
	loaded   []*Descriptor
}

func NewLoader(hostID wire.HostID, notify NotifyFunc, writePtr WritePtrFunc) *Loader {
	return &Loader{
		HostID:   hostID,
		Notify:   notify,
		WritePtr: writePtr,
		open:     defaultOpener,
		byPath:   make(map[string]*Descriptor),
	}
}

// SetOpener overrides how VDRIVER files get turned into descriptors. Tests
// use this to inject in-process fakes.
func (l *Loader) SetOpener(o Opener) { l.open = o }

// SearchPath resolves VDRIVER_PATH (or DefaultPath) into its colon-separated
// entries.
func SearchPath() []string {
	path := os.Getenv(PathEnvVar)
	if path == "" {
		path = DefaultPath
	}
	return strings.Split(path, ":")
}

// candidates lists the files matching pattern across the search path, in
// order, skipping files (by absolute path) already listed from an earlier
// entry.
func (l *Loader) candidates(pattern string) []string {
	var out []string
	seen := make(map[string]bool)

	for _, dir := range SearchPath() {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		for _, m := range matches {
			abs, err := filepath.Abs(m)
			if err != nil {
				abs = m
			}
			if seen[abs] {
				continue
			}
			seen[abs] = true
			out = append(out, m)
		}
	}
	return out
}

// load resolves, assigns a VID slice to, and initializes the VDRIVER at
// path, unless it has already been loaded from an earlier search path
// entry (keyed by absolute path).
func (l *Loader) load(path string) (*Descriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	l.mu.Lock()
	if d, ok := l.byPath[abs]; ok {
		l.mu.Unlock()
		return d, nil
	}
	l.mu.Unlock()

	descr, err := l.open(path)
	if err != nil {
		alog.Error("vdriver: failed to load %s: %v", path, err)
		return nil, err
	}

	l.mu.Lock()
	if l.nextSlice >= maxSlices {
		l.mu.Unlock()
		return nil, fmt.Errorf("vdriver: exhausted VID slice space loading %s", path)
	}
	descr.VIDSlice = SliceFor(VID(l.nextSlice))
	l.nextSlice++

	descr.HostID = l.HostID
	descr.Notify = l.Notify
	descr.WritePtr = l.WritePtr

	l.byPath[abs] = descr
	l.loaded = append(l.loaded, descr)
	l.mu.Unlock()

	if descr.Init != nil {
		if err := descr.Init(); err != nil {
			alog.Error("vdriver: %s init failed: %v", path, err)
			return nil, fmt.Errorf("vdriver: %s init: %w", path, err)
		}
	}

	alog.Info("vdriver: loaded %s (spec=%s, slice=%d, vid=[%#x,%#x])", path, descr.Spec, descr.VIDSlice.Index, descr.VIDSlice.Lo, descr.VIDSlice.Hi)
	return descr, nil
}

// RequestLocalVDEV loads the VDRIVER(s) matching "<spec>.vdriver" across the
// search path (once each) and probes them, so every locally-available VDEV
// of that spec gets an attach notification synchronously.
func (l *Loader) RequestLocalVDEV(spec string, cookie uint64) error {
	var lastErr error
	found := false

	for _, path := range l.candidates(spec + Ext) {
		descr, err := l.load(path)
		if err != nil {
			lastErr = err
			continue
		}
		found = true
		if err := l.probe(descr, cookie); err != nil {
			lastErr = err
		}
	}

	if !found && lastErr != nil {
		return lastErr
	}
	return nil
}

// Inventory loads and probes every VDRIVER found across the search path.
func (l *Loader) Inventory(cookie uint64) error {
	var lastErr error

	for _, path := range l.candidates("*" + Ext) {
		descr, err := l.load(path)
		if err != nil {
			lastErr = err
			continue
		}
		if err := l.probe(descr, cookie); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

func (l *Loader) probe(descr *Descriptor, cookie uint64) error {
	if descr.Probe == nil {
		return nil
	}
	if err := descr.Probe(cookie); err != nil {
		alog.Error("vdriver: %s probe failed: %v", descr.Spec, err)
		return fmt.Errorf("vdriver: %s probe: %w", descr.Spec, err)
	}
	return nil
}

// FindByVDEVID linearly scans loaded VDRIVERs' slices for the one owning
// vdevID.
func (l *Loader) FindByVDEVID(vdevID uint64) *Descriptor {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, d := range l.loaded {
		if d.VIDSlice.Contains(vdevID) {
			return d
		}
	}
	return nil
}

// Loaded returns every VDRIVER descriptor loaded so far.
func (l *Loader) Loaded() []*Descriptor {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Descriptor, len(l.loaded))
	copy(out, l.loaded)
	return out
}
