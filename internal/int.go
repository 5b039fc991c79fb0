package dbgmodel

import (
	"context"
)

type intType struct {
	baseType
	size   int32
	signed bool
	goType string
}

func (it *intType) wireTag() WireTag {
	switch it.size {
	case 1:
		if it.signed {
			return WireI8
		}
		return WireU8
	case 2:
		if it.signed {
			return WireI16
		}
		return WireU16
	case 4:
		if it.signed {
			return WireI32
		}
		return WireU32
	}
	if it.signed {
		return WireI64
	}
	return WireU64
}

func (it *intType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	ok := false
	switch it.goType {
	case "int8":
		_, ok = o.(int8)
	case "uint8":
		_, ok = o.(uint8)
	case "int16":
		_, ok = o.(int16)
	case "uint16":
		_, ok = o.(uint16)
	case "int32":
		_, ok = o.(int32)
	case "uint32":
		_, ok = o.(uint32)
	case "int64":
		_, ok = o.(int64)
	case "uint64":
		_, ok = o.(uint64)
	case "int":
		_, ok = o.(int)
	case "uint":
		_, ok = o.(uint)
	}

	if !ok {
		return Value{}, invalidArgument("value must be of type %s, is %T", it.goType, o)
	}

	return e.host.Intrinsic(KindScalar, o)
}

func (it *intType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	w, err := e.host.Convert(v, it.wireTag())
	if err != nil {
		return nil, invalidArgument("cannot unbox %s value as %s: %v", e.host.KindOf(v), it.goType, err)
	}

	o, err := unpackScalar(w)
	if err != nil {
		return nil, err
	}

	// The 8 byte payloads also back the platform sized int and uint.
	switch it.goType {
	case "int":
		return int(o.(int64)), nil
	case "uint":
		return uint(o.(uint64)), nil
	}

	return o, nil
}

func (it *intType) GoType() string {
	return it.goType
}
