package dbgmodel

import (
	"context"
)

type floatType struct {
	baseType
	size int32
}

func (ft *floatType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	if ft.size == 4 {
		_, ok := o.(float32)
		if !ok {
			return Value{}, invalidArgument("value must be of type float32, is %T", o)
		}
		return e.host.Intrinsic(KindScalar, o)
	}

	if ft.size == 8 {
		_, ok := o.(float64)
		if !ok {
			return Value{}, invalidArgument("value must be of type float64, is %T", o)
		}
		return e.host.Intrinsic(KindScalar, o)
	}

	return Value{}, unexpected("unknown float size %d", ft.size)
}

func (ft *floatType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	tag := WireF64
	if ft.size == 4 {
		tag = WireF32
	}

	w, err := e.host.Convert(v, tag)
	if err != nil {
		return nil, invalidArgument("cannot unbox %s value as %s: %v", e.host.KindOf(v), ft.GoType(), err)
	}

	return unpackScalar(w)
}

func (ft *floatType) GoType() string {
	if ft.size == 4 {
		return "float32"
	}

	return "float64"
}
