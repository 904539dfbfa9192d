package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/inobulles/aqua/pkg/vdev"
)

// MarshalQuery builds a header-only QUERY packet: "tell me your VDEVs".
func MarshalQuery() []byte {
	return []byte{byte(Query)}
}

// QueryResPacket answers a QUERY with the sender's full local VDEV
// inventory.
type QueryResPacket struct {
	VDEVs []vdev.Descriptor
}

func (p QueryResPacket) Marshal() []byte {
	buf := make([]byte, 0, 1+4+len(p.VDEVs)*VDEVDescrSize)
	buf = append(buf, byte(QueryRes))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.VDEVs)))
	for _, d := range p.VDEVs {
		buf = WriteVDEVDescr(buf, d)
	}
	return buf
}

func UnmarshalQueryRes(buf []byte) (QueryResPacket, error) {
	t, rest, err := readType(buf)
	if err != nil {
		return QueryResPacket{}, err
	}
	if t != QueryRes {
		return QueryResPacket{}, fmt.Errorf("packet: expected QUERY_RES, got %s", t)
	}
	if len(rest) < 4 {
		return QueryResPacket{}, fmt.Errorf("packet: QUERY_RES truncated")
	}

	count := binary.LittleEndian.Uint32(rest)
	rest = rest[4:]

	vdevs := make([]vdev.Descriptor, 0, count)
	for i := uint32(0); i < count; i++ {
		d, n, err := ReadVDEVDescr(rest)
		if err != nil {
			return QueryResPacket{}, fmt.Errorf("packet: QUERY_RES vdev %d: %w", i, err)
		}
		vdevs = append(vdevs, d)
		rest = rest[n:]
	}

	return QueryResPacket{VDEVs: vdevs}, nil
}
