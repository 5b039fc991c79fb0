package dbgmodel

import (
	"fmt"
	"math"
)

// WireTag identifies one member of the fixed tagged-variant set that crosses
// the host boundary.
type WireTag uint8

const (
	WireInvalid WireTag = iota
	WireI8
	WireU8
	WireI16
	WireU16
	WireI32
	WireU32
	WireI64
	WireU64
	WireF32
	WireF64
	WireBool
	WireWString
	WireInterface
	// WireHandle is the reference-counted opaque handle form used for
	// composite values.
	WireHandle
)

// Wire is a single value in boundary representation: a tag plus a 64 bit
// payload. Strings and interface handles travel as handle ids in the payload.
type Wire struct {
	Tag  WireTag
	Bits uint64
}

func encodeI32(v int32) uint64  { return uint64(uint32(v)) }
func decodeI32(v uint64) int32  { return int32(uint32(v)) }
func encodeU32(v uint32) uint64 { return uint64(v) }
func decodeU32(v uint64) uint32 { return uint32(v) }

func encodeF32(v float32) uint64 { return uint64(math.Float32bits(v)) }
func decodeF32(v uint64) float32 { return math.Float32frombits(uint32(v)) }
func encodeF64(v float64) uint64 { return math.Float64bits(v) }
func decodeF64(v uint64) float64 { return math.Float64frombits(v) }

// wireSize returns the element size in bytes for a scalar wire tag. Strided
// view indexing is pure address arithmetic over these sizes.
func wireSize(tag WireTag) (uint32, error) {
	switch tag {
	case WireI8, WireU8, WireBool:
		return 1, nil
	case WireI16, WireU16:
		return 2, nil
	case WireI32, WireU32, WireF32:
		return 4, nil
	case WireI64, WireU64, WireF64:
		return 8, nil
	}
	return 0, invalidArgument("wire tag %d has no element size", tag)
}

// packScalar converts a native scalar into its boundary payload.
func packScalar(o any) (Wire, error) {
	switch v := o.(type) {
	case int8:
		return Wire{Tag: WireI8, Bits: encodeI32(int32(v))}, nil
	case uint8:
		return Wire{Tag: WireU8, Bits: encodeU32(uint32(v))}, nil
	case int16:
		return Wire{Tag: WireI16, Bits: encodeI32(int32(v))}, nil
	case uint16:
		return Wire{Tag: WireU16, Bits: encodeU32(uint32(v))}, nil
	case int32:
		return Wire{Tag: WireI32, Bits: encodeI32(v)}, nil
	case uint32:
		return Wire{Tag: WireU32, Bits: encodeU32(v)}, nil
	case int64:
		return Wire{Tag: WireI64, Bits: uint64(v)}, nil
	case uint64:
		return Wire{Tag: WireU64, Bits: v}, nil
	case int:
		return Wire{Tag: WireI64, Bits: uint64(int64(v))}, nil
	case uint:
		return Wire{Tag: WireU64, Bits: uint64(v)}, nil
	case float32:
		return Wire{Tag: WireF32, Bits: encodeF32(v)}, nil
	case float64:
		return Wire{Tag: WireF64, Bits: encodeF64(v)}, nil
	case bool:
		if v {
			return Wire{Tag: WireBool, Bits: 1}, nil
		}
		return Wire{Tag: WireBool, Bits: 0}, nil
	}
	return Wire{}, invalidArgument("value of type %T has no scalar wire form", o)
}

// unpackScalar converts a boundary payload back into the native scalar for
// its tag.
func unpackScalar(w Wire) (any, error) {
	switch w.Tag {
	case WireI8:
		return int8(decodeI32(w.Bits)), nil
	case WireU8:
		return uint8(decodeU32(w.Bits)), nil
	case WireI16:
		return int16(decodeI32(w.Bits)), nil
	case WireU16:
		return uint16(decodeU32(w.Bits)), nil
	case WireI32:
		return decodeI32(w.Bits), nil
	case WireU32:
		return decodeU32(w.Bits), nil
	case WireI64:
		return int64(w.Bits), nil
	case WireU64:
		return w.Bits, nil
	case WireF32:
		return decodeF32(w.Bits), nil
	case WireF64:
		return decodeF64(w.Bits), nil
	case WireBool:
		return w.Bits != 0, nil
	}
	return nil, fmt.Errorf("cannot unpack wire tag %d as a scalar", w.Tag)
}
