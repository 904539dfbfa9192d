package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/inobulles/aqua/pkg/wire"
)

// ConnVDEVPacket requests a connection to vdev-id on the receiving node.
type ConnVDEVPacket struct {
	VDEVID uint64
}

func (p ConnVDEVPacket) Marshal() []byte {
	buf := make([]byte, 0, 1+8)
	buf = append(buf, byte(ConnVDEV))
	return binary.LittleEndian.AppendUint64(buf, p.VDEVID)
}

func UnmarshalConnVDEV(buf []byte) (ConnVDEVPacket, error) {
	t, rest, err := readType(buf)
	if err != nil {
		return ConnVDEVPacket{}, err
	}
	if t != ConnVDEV {
		return ConnVDEVPacket{}, fmt.Errorf("packet: expected CONN_VDEV, got %s", t)
	}
	if len(rest) < 8 {
		return ConnVDEVPacket{}, fmt.Errorf("packet: CONN_VDEV truncated")
	}
	return ConnVDEVPacket{VDEVID: binary.LittleEndian.Uint64(rest)}, nil
}

// MarshalConnVDEVFail builds a header-only CONN_VDEV_FAIL packet.
func MarshalConnVDEVFail() []byte {
	return []byte{byte(ConnVDEVFail)}
}

// ConnVDEVResPacket carries the newly established connection's id and its
// constant/function tables.
type ConnVDEVResPacket struct {
	ConnID uint64
	Consts []wire.Constant
	Fns    []wire.Function
}

func (p ConnVDEVResPacket) Marshal() []byte {
	body := make([]byte, 0, 64)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(p.Consts)))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(p.Fns)))
	for _, c := range p.Consts {
		body = wire.WriteConstant(body, c)
	}
	for _, fn := range p.Fns {
		body = wire.WriteFunction(body, fn)
	}

	buf := make([]byte, 0, 1+8+4+len(body))
	buf = append(buf, byte(ConnVDEVRes))
	buf = binary.LittleEndian.AppendUint64(buf, p.ConnID)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)
	return buf
}

func UnmarshalConnVDEVRes(buf []byte) (ConnVDEVResPacket, error) {
	t, rest, err := readType(buf)
	if err != nil {
		return ConnVDEVResPacket{}, err
	}
	if t != ConnVDEVRes {
		return ConnVDEVResPacket{}, fmt.Errorf("packet: expected CONN_VDEV_RES, got %s", t)
	}
	if len(rest) < 8+4 {
		return ConnVDEVResPacket{}, fmt.Errorf("packet: CONN_VDEV_RES truncated")
	}

	connID := binary.LittleEndian.Uint64(rest)
	rest = rest[8:]
	size := binary.LittleEndian.Uint32(rest)
	rest = rest[4:]
	if uint32(len(rest)) < size {
		return ConnVDEVResPacket{}, fmt.Errorf("packet: CONN_VDEV_RES body shorter than declared size")
	}

	if len(rest) < 8 {
		return ConnVDEVResPacket{}, fmt.Errorf("packet: CONN_VDEV_RES header truncated")
	}
	constCount := binary.LittleEndian.Uint32(rest)
	fnCount := binary.LittleEndian.Uint32(rest[4:])
	rest = rest[8:]

	consts := make([]wire.Constant, 0, constCount)
	for i := uint32(0); i < constCount; i++ {
		c, n, err := wire.ReadConstant(rest)
		if err != nil {
			return ConnVDEVResPacket{}, fmt.Errorf("packet: CONN_VDEV_RES const %d: %w", i, err)
		}
		consts = append(consts, c)
		rest = rest[n:]
	}

	fns := make([]wire.Function, 0, fnCount)
	for i := uint32(0); i < fnCount; i++ {
		fn, n, err := wire.ReadFunction(rest)
		if err != nil {
			return ConnVDEVResPacket{}, fmt.Errorf("packet: CONN_VDEV_RES fn %d: %w", i, err)
		}
		fns = append(fns, fn)
		rest = rest[n:]
	}

	return ConnVDEVResPacket{ConnID: connID, Consts: consts, Fns: fns}, nil
}
