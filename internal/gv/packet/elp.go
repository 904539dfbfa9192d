package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/inobulles/aqua/pkg/wire"
)

const elpNameSize = 64

// ELPPacket is periodically broadcast by gvd to advertise a node's
// existence. gvd picks Unique at random once per process, so a changed
// Unique tells peers the node restarted and must be re-QUERYed.
type ELPPacket struct {
	Vers   uint8
	Unique uint64 // low 56 bits significant
	HostID wire.HostID
	Name   string
}

func (p ELPPacket) Marshal() []byte {
	buf := make([]byte, 0, 1+1+7+8+elpNameSize)
	buf = append(buf, byte(ELP), p.Vers)

	var uniqueBuf [8]byte
	binary.LittleEndian.PutUint64(uniqueBuf[:], p.Unique&((1<<56)-1))
	buf = append(buf, uniqueBuf[:7]...)

	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.HostID))
	buf = wire.PutName(buf, elpNameSize, p.Name)
	return buf
}

func UnmarshalELP(buf []byte) (ELPPacket, error) {
	t, rest, err := readType(buf)
	if err != nil {
		return ELPPacket{}, err
	}
	if t != ELP {
		return ELPPacket{}, fmt.Errorf("packet: expected ELP, got %s", t)
	}
	if len(rest) < 1+7+8+elpNameSize {
		return ELPPacket{}, fmt.Errorf("packet: ELP truncated")
	}

	var p ELPPacket
	p.Vers = rest[0]

	var uniqueBuf [8]byte
	copy(uniqueBuf[:7], rest[1:8])
	p.Unique = binary.LittleEndian.Uint64(uniqueBuf[:])

	p.HostID = wire.HostID(binary.LittleEndian.Uint64(rest[8:16]))

	name, err := wire.ReadName(rest[16:16+elpNameSize], elpNameSize)
	if err != nil {
		return ELPPacket{}, fmt.Errorf("packet: ELP name: %w", err)
	}
	p.Name = name

	return p, nil
}
