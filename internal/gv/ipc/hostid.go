package ipc

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/inobulles/aqua/pkg/wire"
)

// WriteHostID persists the running gvd's host-id as 8 little-endian bytes.
func WriteHostID(id wire.HostID) error {
	path := HostIDPath()

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))

	if err := os.WriteFile(path, buf[:], 0644); err != nil {
		return fmt.Errorf("ipc: writing host-id file %s: %w", path, err)
	}
	return nil
}

// ReadHostID reads back a host-id file previously written by WriteHostID.
func ReadHostID() (wire.HostID, error) {
	path := HostIDPath()

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("ipc: reading host-id file %s: %w", path, err)
	}
	if len(data) < 8 {
		return 0, fmt.Errorf("ipc: host-id file %s truncated", path)
	}

	return wire.HostID(binary.LittleEndian.Uint64(data)), nil
}
