// Package wire implements AQUA's type-tagged binary codec: the little-endian,
// length-prefixed serialization shared by the KOS runtime and the GrapeVine
// transport for values, parameters, functions, and constants.
//
// The codec is grounded on the byte layout fixed by
// original_source/gv/proto/proto.h and original_source/kos/lib/kos.h — it is
// not free to choose a self-describing encoding (gob) or a recursive one
// (RLP): every type has exactly one encoding, and decode(encode(v)) == v.
package wire

import "fmt"

// Type is the one-byte discriminator prefixing every serialized Value.
type Type uint8

const (
	Void Type = iota
	Bool
	U8
	U16
	U32
	U64
	I8
	I16
	I32
	I64
	F32
	F64
	Buf
	OpaquePtr
	Ptr
)

func (t Type) String() string {
	switch t {
	case Void:
		return "void"
	case Bool:
		return "bool"
	case U8:
		return "u8"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	case Buf:
		return "buf"
	case OpaquePtr:
		return "opaque_ptr"
	case Ptr:
		return "ptr"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Valid reports whether t is one of the fifteen type tags the codec knows
// how to encode.
func (t Type) Valid() bool {
	return t <= Ptr
}

// NameSize is the fixed width of every zero-padded ASCII name field (VDEV
// spec strings excepted, which use their own width).
const NameSize = 64
