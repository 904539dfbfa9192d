package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/inobulles/aqua/pkg/vdev"
	"github.com/inobulles/aqua/pkg/wire"
)

// VDEVDescrSize is the fixed wire size of one serialized vdev.Descriptor:
// host_id(8) + vdev_id(8) + spec[64] + vers(4) + human[256] +
// vdriver_human[256] + kind(1) + pref(4).
const VDEVDescrSize = 8 + 8 + vdev.SpecSize + 4 + vdev.HumanSize + vdev.VDriverHumanSize + 1 + 4

func WriteVDEVDescr(buf []byte, d vdev.Descriptor) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(d.HostID))
	buf = binary.LittleEndian.AppendUint64(buf, d.VDEVID)
	buf = wire.PutName(buf, vdev.SpecSize, d.Spec)
	buf = binary.LittleEndian.AppendUint32(buf, d.Version)
	buf = wire.PutName(buf, vdev.HumanSize, d.Human)
	buf = wire.PutName(buf, vdev.VDriverHumanSize, d.VDriverHuman)
	buf = append(buf, byte(d.Kind))
	buf = binary.LittleEndian.AppendUint32(buf, d.Preference)
	return buf
}

func ReadVDEVDescr(buf []byte) (vdev.Descriptor, int, error) {
	if len(buf) < VDEVDescrSize {
		return vdev.Descriptor{}, 0, fmt.Errorf("packet: truncated vdev descriptor: need %d bytes, have %d", VDEVDescrSize, len(buf))
	}

	off := 0
	hostID := wire.HostID(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	vdevID := binary.LittleEndian.Uint64(buf[off:])
	off += 8

	spec, err := wire.ReadName(buf[off:], vdev.SpecSize)
	if err != nil {
		return vdev.Descriptor{}, 0, fmt.Errorf("packet: vdev descriptor spec: %w", err)
	}
	off += vdev.SpecSize

	vers := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	human, err := wire.ReadName(buf[off:], vdev.HumanSize)
	if err != nil {
		return vdev.Descriptor{}, 0, fmt.Errorf("packet: vdev descriptor human: %w", err)
	}
	off += vdev.HumanSize

	vdriverHuman, err := wire.ReadName(buf[off:], vdev.VDriverHumanSize)
	if err != nil {
		return vdev.Descriptor{}, 0, fmt.Errorf("packet: vdev descriptor vdriver_human: %w", err)
	}
	off += vdev.VDriverHumanSize

	kind := vdev.Kind(buf[off])
	off += 1

	pref := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	return vdev.Descriptor{
		HostID:       hostID,
		VDEVID:       vdevID,
		Spec:         spec,
		Version:      vers,
		Human:        human,
		VDriverHuman: vdriverHuman,
		Kind:         kind,
		Preference:   pref,
	}, off, nil
}
