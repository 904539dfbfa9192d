package wire

import (
	"encoding/binary"
	"fmt"
)

// SizeOfValue returns the number of bytes Write would emit for v. The codec
// never needs to buffer twice: callers size their destination once.
func SizeOfValue(v Value) int {
	switch v.typ {
	case Void:
		return 0
	case Bool, U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32, F32:
		return 4
	case U64, I64, F64:
		return 8
	case Buf:
		return 4 + len(v.buf)
	case OpaquePtr, Ptr:
		return 16
	default:
		return 0
	}
}

// WriteValue appends v's wire encoding to buf and returns the result.
func WriteValue(buf []byte, v Value) []byte {
	switch v.typ {
	case Void:
		return buf
	case Bool, U8:
		return append(buf, byte(v.scalar))
	case I8:
		return append(buf, byte(v.scalar))
	case U16, I16:
		return binary.LittleEndian.AppendUint16(buf, uint16(v.scalar))
	case U32, I32:
		return binary.LittleEndian.AppendUint32(buf, uint32(v.scalar))
	case F32:
		return binary.LittleEndian.AppendUint32(buf, f32bits(v.f32))
	case U64, I64:
		return binary.LittleEndian.AppendUint64(buf, v.scalar)
	case F64:
		return binary.LittleEndian.AppendUint64(buf, f64bits(v.f64))
	case Buf:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.buf)))
		return append(buf, v.buf...)
	case OpaquePtr, Ptr:
		buf = binary.LittleEndian.AppendUint64(buf, uint64(v.ptr.Host))
		return binary.LittleEndian.AppendUint64(buf, v.ptr.Value)
	default:
		return buf
	}
}

// ReadValue decodes a value of type t from the front of buf, returning the
// value and the number of bytes consumed. buf must hold at least as many
// bytes as the encoding requires; ReadValue never reads past what t demands.
func ReadValue(buf []byte, t Type) (Value, int, error) {
	if !t.Valid() {
		return Value{}, 0, fmt.Errorf("wire: invalid type tag %d", uint8(t))
	}

	need := minSize(t)
	if len(buf) < need {
		return Value{}, 0, fmt.Errorf("wire: truncated %v value: need %d bytes, have %d", t, need, len(buf))
	}

	switch t {
	case Void:
		return VoidValue(), 0, nil
	case Bool:
		return BoolValue(buf[0] != 0), 1, nil
	case U8:
		return U8Value(buf[0]), 1, nil
	case I8:
		return I8Value(int8(buf[0])), 1, nil
	case U16:
		return U16Value(binary.LittleEndian.Uint16(buf)), 2, nil
	case I16:
		return I16Value(int16(binary.LittleEndian.Uint16(buf))), 2, nil
	case U32:
		return U32Value(binary.LittleEndian.Uint32(buf)), 4, nil
	case I32:
		return I32Value(int32(binary.LittleEndian.Uint32(buf))), 4, nil
	case F32:
		return F32Value(f32frombits(binary.LittleEndian.Uint32(buf))), 4, nil
	case U64:
		return U64Value(binary.LittleEndian.Uint64(buf)), 8, nil
	case I64:
		return I64Value(int64(binary.LittleEndian.Uint64(buf))), 8, nil
	case F64:
		return F64Value(f64frombits(binary.LittleEndian.Uint64(buf))), 8, nil
	case Buf:
		size := binary.LittleEndian.Uint32(buf)
		if len(buf) < 4+int(size) {
			return Value{}, 0, fmt.Errorf("wire: truncated buf value: need %d bytes, have %d", 4+size, len(buf))
		}
		// Allocation here is the one codec exception the spec carves out:
		// ownership of the payload transfers to the caller.
		payload := make([]byte, size)
		copy(payload, buf[4:4+size])
		return BufValue(payload), 4 + int(size), nil
	case OpaquePtr, Ptr:
		host := HostID(binary.LittleEndian.Uint64(buf))
		val := binary.LittleEndian.Uint64(buf[8:])
		p := Ptr{Host: host, Value: val}
		if t == OpaquePtr {
			return OpaquePtrValue(p), 16, nil
		}
		return PtrValue(p), 16, nil
	}

	return Value{}, 0, fmt.Errorf("wire: unreachable type %v", t)
}

func minSize(t Type) int {
	switch t {
	case Void:
		return 0
	case Bool, U8, I8:
		return 1
	case U16, I16:
		return 2
	case U32, I32, F32:
		return 4
	case U64, I64, F64:
		return 8
	case Buf:
		return 4
	case OpaquePtr, Ptr:
		return 16
	}
	return 0
}
