package wire

import "fmt"

// HostID identifies a GrapeVine node. LocalHostID is its zero value, the
// host-id a KOS or loader uses when it is given none.
type HostID uint64

const LocalHostID HostID = 0

// Ptr is a host-tagged pointer value. Per the spec, pointer values carry
// their owning host so cross-host values stay unambiguous: OpaquePtr may
// only ever be dereferenced by the VDRIVER that minted it, Ptr may be
// dereferenced only through a host-routed write primitive.
type Ptr struct {
	Host  HostID
	Value uint64
}

// Value is a tagged variant carrying exactly the payload its Type implies.
// It is a sum type on purpose (see spec §9, "Tagged pointer graph") rather
// than a raw reinterpret-cast of a uint64, so a pointer's owning host can
// never be silently dropped.
type Value struct {
	typ Type

	scalar uint64  // bool/u*/i* stored here, reinterpreted per typ
	f32    float32
	f64    float64
	buf    []byte
	ptr    Ptr
}

func (v Value) Type() Type { return v.typ }

func VoidValue() Value { return Value{typ: Void} }

func BoolValue(b bool) Value {
	var s uint64
	if b {
		s = 1
	}
	return Value{typ: Bool, scalar: s}
}

func U8Value(x uint8) Value   { return Value{typ: U8, scalar: uint64(x)} }
func U16Value(x uint16) Value { return Value{typ: U16, scalar: uint64(x)} }
func U32Value(x uint32) Value { return Value{typ: U32, scalar: uint64(x)} }
func U64Value(x uint64) Value { return Value{typ: U64, scalar: x} }

func I8Value(x int8) Value   { return Value{typ: I8, scalar: uint64(uint8(x))} }
func I16Value(x int16) Value { return Value{typ: I16, scalar: uint64(uint16(x))} }
func I32Value(x int32) Value { return Value{typ: I32, scalar: uint64(uint32(x))} }
func I64Value(x int64) Value { return Value{typ: I64, scalar: uint64(x)} }

func F32Value(x float32) Value { return Value{typ: F32, f32: x} }
func F64Value(x float64) Value { return Value{typ: F64, f64: x} }

// BufValue takes ownership of buf; callers must not mutate it afterwards.
func BufValue(buf []byte) Value { return Value{typ: Buf, buf: buf} }

func OpaquePtrValue(p Ptr) Value { return Value{typ: OpaquePtr, ptr: p} }
func PtrValue(p Ptr) Value       { return Value{typ: Ptr, ptr: p} }

func (v Value) Bool() (bool, error) {
	if v.typ != Bool {
		return false, fmt.Errorf("wire: value is %v, not bool", v.typ)
	}
	return v.scalar != 0, nil
}

func (v Value) U64() (uint64, error) {
	switch v.typ {
	case U8, U16, U32, U64:
		return v.scalar, nil
	}
	return 0, fmt.Errorf("wire: value is %v, not an unsigned integer", v.typ)
}

func (v Value) I64() (int64, error) {
	switch v.typ {
	case I8:
		return int64(int8(v.scalar)), nil
	case I16:
		return int64(int16(v.scalar)), nil
	case I32:
		return int64(int32(v.scalar)), nil
	case I64:
		return int64(v.scalar), nil
	}
	return 0, fmt.Errorf("wire: value is %v, not a signed integer", v.typ)
}

func (v Value) F32() (float32, error) {
	if v.typ != F32 {
		return 0, fmt.Errorf("wire: value is %v, not f32", v.typ)
	}
	return v.f32, nil
}

func (v Value) F64() (float64, error) {
	if v.typ != F64 {
		return 0, fmt.Errorf("wire: value is %v, not f64", v.typ)
	}
	return v.f64, nil
}

func (v Value) Buf() ([]byte, error) {
	if v.typ != Buf {
		return nil, fmt.Errorf("wire: value is %v, not buf", v.typ)
	}
	return v.buf, nil
}

// UnwrapOpaquePtr returns p's raw value only if it was minted by the caller's
// own host; this is the only way a VDRIVER may legally dereference one.
func (v Value) UnwrapOpaquePtr(self HostID) (uint64, error) {
	if v.typ != OpaquePtr {
		return 0, fmt.Errorf("wire: value is %v, not opaque_ptr", v.typ)
	}
	if v.ptr.Host != self {
		return 0, fmt.Errorf("wire: opaque_ptr belongs to host %d, not %d", v.ptr.Host, self)
	}
	return v.ptr.Value, nil
}

// Ptr returns the raw pointer struct; dereferencing it is only valid through
// a host-routed write primitive unless Host == self.
func (v Value) Ptr() (Ptr, error) {
	if v.typ != Ptr {
		return Ptr{}, fmt.Errorf("wire: value is %v, not ptr", v.typ)
	}
	return v.ptr, nil
}

func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case Void:
		return true
	case F32:
		return v.f32 == o.f32
	case F64:
		return v.f64 == o.f64
	case Buf:
		if len(v.buf) != len(o.buf) {
			return false
		}
		for i := range v.buf {
			if v.buf[i] != o.buf[i] {
				return false
			}
		}
		return true
	case OpaquePtr, Ptr:
		return v.ptr == o.ptr
	default:
		return v.scalar == o.scalar
	}
}
