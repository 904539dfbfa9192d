package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/inobulles/aqua/pkg/wire"
)

// KOSCallPacket invokes fnID on conn_id with args serialized back to back.
// Decoding requires the caller to already know each arg's type (from the
// connection's function table agreed on at CONN_VDEV_RES time).
type KOSCallPacket struct {
	ConnID uint64
	FnID   uint32
	Args   []wire.Value
}

func (p KOSCallPacket) Marshal() []byte {
	body := make([]byte, 0, 64)
	for _, a := range p.Args {
		body = wire.WriteValue(body, a)
	}

	buf := make([]byte, 0, 1+8+4+4+len(body))
	buf = append(buf, byte(KOSCall))
	buf = binary.LittleEndian.AppendUint64(buf, p.ConnID)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(4+len(body)))
	buf = binary.LittleEndian.AppendUint32(buf, p.FnID)
	buf = append(buf, body...)
	return buf
}

// PeekKOSCallHeader reads a KOS_CALL packet's conn_id and fn_id without
// decoding its argument payload, for callers that need fn_id first to look
// up the argument types UnmarshalKOSCall requires.
func PeekKOSCallHeader(buf []byte) (connID uint64, fnID uint32, err error) {
	t, rest, err := readType(buf)
	if err != nil {
		return 0, 0, err
	}
	if t != KOSCall {
		return 0, 0, fmt.Errorf("packet: expected KOS_CALL, got %s", t)
	}
	if len(rest) < 8+4+4 {
		return 0, 0, fmt.Errorf("packet: KOS_CALL truncated")
	}

	connID = binary.LittleEndian.Uint64(rest)
	fnID = binary.LittleEndian.Uint32(rest[8+4:])
	return connID, fnID, nil
}

// UnmarshalKOSCall decodes a KOS_CALL packet given the argument types the
// target function expects, in order.
func UnmarshalKOSCall(buf []byte, argTypes []wire.Type) (KOSCallPacket, error) {
	t, rest, err := readType(buf)
	if err != nil {
		return KOSCallPacket{}, err
	}
	if t != KOSCall {
		return KOSCallPacket{}, fmt.Errorf("packet: expected KOS_CALL, got %s", t)
	}
	if len(rest) < 8+4+4 {
		return KOSCallPacket{}, fmt.Errorf("packet: KOS_CALL truncated")
	}

	connID := binary.LittleEndian.Uint64(rest)
	rest = rest[8:]
	rest = rest[4:] // size field, not needed once argTypes is known
	fnID := binary.LittleEndian.Uint32(rest)
	rest = rest[4:]

	args := make([]wire.Value, 0, len(argTypes))
	for i, at := range argTypes {
		v, n, err := wire.ReadValue(rest, at)
		if err != nil {
			return KOSCallPacket{}, fmt.Errorf("packet: KOS_CALL arg %d: %w", i, err)
		}
		args = append(args, v)
		rest = rest[n:]
	}

	return KOSCallPacket{ConnID: connID, FnID: fnID, Args: args}, nil
}

// MarshalKOSCallFail builds a header-only KOS_CALL_FAIL packet.
func MarshalKOSCallFail() []byte {
	return []byte{byte(KOSCallFail)}
}

// KOSCallRetPacket carries a call's return value.
type KOSCallRetPacket struct {
	Return wire.Value
}

func (p KOSCallRetPacket) Marshal() []byte {
	body := wire.WriteValue(nil, p.Return)

	buf := make([]byte, 0, 1+4+len(body))
	buf = append(buf, byte(KOSCallRet))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)
	return buf
}

func UnmarshalKOSCallRet(buf []byte, retType wire.Type) (KOSCallRetPacket, error) {
	t, rest, err := readType(buf)
	if err != nil {
		return KOSCallRetPacket{}, err
	}
	if t != KOSCallRet {
		return KOSCallRetPacket{}, fmt.Errorf("packet: expected KOS_CALL_RET, got %s", t)
	}
	if len(rest) < 4 {
		return KOSCallRetPacket{}, fmt.Errorf("packet: KOS_CALL_RET truncated")
	}
	rest = rest[4:]

	v, _, err := wire.ReadValue(rest, retType)
	if err != nil {
		return KOSCallRetPacket{}, fmt.Errorf("packet: KOS_CALL_RET value: %w", err)
	}
	return KOSCallRetPacket{Return: v}, nil
}
