// Package ipc implements the three files gvd and co-resident KOS instances
// use to coordinate without a socket: the singleton lock, the host-id
// file, and the discovered-nodes file, grounded on
// original_source/kos/lib/gv_ipc.h.
package ipc

import "os"

const (
	defaultLockPath  = "/tmp/gv.lock"
	defaultHostIDPath = "/tmp/gv.host_id"
	defaultNodesPath = "/tmp/gv.nodes"
)

// LockPath returns the GrapeVine lock file path, honoring GV_LOCK_PATH.
func LockPath() string { return envOr("GV_LOCK_PATH", defaultLockPath) }

// HostIDPath returns the host-id file path, honoring GV_HOST_ID_PATH.
func HostIDPath() string { return envOr("GV_HOST_ID_PATH", defaultHostIDPath) }

// NodesPath returns the discovered-nodes file path, honoring GV_NODES_PATH.
func NodesPath() string { return envOr("GV_NODES_PATH", defaultNodesPath) }

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
