package ipc

import (
	"encoding/binary"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/inobulles/aqua/internal/gv/packet"
	"github.com/inobulles/aqua/pkg/vdev"
	"github.com/inobulles/aqua/pkg/wire"
)

// ipFamily tags whether a node entry's address is v4 or v6; the original's
// C union is rendered here as an explicit discriminator instead.
type ipFamily uint8

const (
	ipv4 ipFamily = iota
	ipv6
)

// NodeEntry is one record in gv.nodes: a host's address and the VDEVs it
// exposes, as last reported by a QUERY_RES.
type NodeEntry struct {
	HostID wire.HostID
	IP     net.IP
	VDEVs  []vdev.Descriptor
}

func (e NodeEntry) marshal() []byte {
	family := ipv4
	ipBytes := e.IP.To4()
	if ipBytes == nil {
		family = ipv6
		ipBytes = e.IP.To16()
	}

	buf := make([]byte, 0, 8+1+16+2+len(e.VDEVs)*packet.VDEVDescrSize)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.HostID))
	buf = append(buf, byte(family))
	buf = append(buf, ipBytes...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.VDEVs)))
	for _, d := range e.VDEVs {
		buf = packet.WriteVDEVDescr(buf, d)
	}
	return buf
}

// unmarshalNodeEntry decodes one NodeEntry from buf, returning the number
// of bytes consumed so the caller can advance to the next record.
func unmarshalNodeEntry(buf []byte) (NodeEntry, int, error) {
	if len(buf) < 8+1 {
		return NodeEntry{}, 0, fmt.Errorf("ipc: truncated node entry header")
	}

	hostID := wire.HostID(binary.LittleEndian.Uint64(buf))
	off := 8

	family := ipFamily(buf[off])
	off++

	ipSize := 4
	if family == ipv6 {
		ipSize = 16
	}
	if len(buf) < off+ipSize+2 {
		return NodeEntry{}, 0, fmt.Errorf("ipc: truncated node entry address/count")
	}

	ip := net.IP(append([]byte(nil), buf[off:off+ipSize]...))
	off += ipSize

	count := binary.LittleEndian.Uint16(buf[off:])
	off += 2

	vdevs := make([]vdev.Descriptor, 0, count)
	for i := uint16(0); i < count; i++ {
		d, n, err := packet.ReadVDEVDescr(buf[off:])
		if err != nil {
			return NodeEntry{}, 0, fmt.Errorf("ipc: node entry vdev %d: %w", i, err)
		}
		vdevs = append(vdevs, d)
		off += n
	}

	return NodeEntry{HostID: hostID, IP: ip, VDEVs: vdevs}, off, nil
}

// WriteNodes overwrites gv.nodes with the concatenation of entries, gvd's
// full discovered-node snapshot. The file is rewritten via a temp file plus
// rename so a concurrent ReadNodes never observes a partially-written file.
func WriteNodes(entries []NodeEntry) error {
	path := NodesPath()

	var buf []byte
	for _, e := range entries {
		buf = append(buf, e.marshal()...)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("ipc: creating temp nodes file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ipc: writing temp nodes file %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ipc: closing temp nodes file %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ipc: setting permissions on temp nodes file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ipc: replacing nodes file %s: %w", path, err)
	}
	return nil
}

// ReadNodes parses gv.nodes into its constituent entries.
func ReadNodes() ([]NodeEntry, error) {
	path := NodesPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ipc: reading nodes file %s: %w", path, err)
	}

	var entries []NodeEntry
	for len(data) > 0 {
		e, n, err := unmarshalNodeEntry(data)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		data = data[n:]
	}
	return entries, nil
}
