package dbgmodel

import (
	"context"
)

type boolType struct {
	baseType
}

func (bt *boolType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	if o == nil {
		return e.host.Boolean(false), nil
	}

	val, ok := o.(bool)
	if ok {
		return e.host.Boolean(val), nil
	}

	stringVal, ok := o.(string)
	if ok {
		return e.host.Boolean(stringVal != ""), nil
	}

	// Any number boxes on its truthiness.
	if w, err := packScalar(o); err == nil {
		return e.host.Boolean(w.Bits != 0), nil
	}

	return Value{}, invalidArgument("value of type %T cannot box as a boolean", o)
}

func (bt *boolType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	if e.host.KindOf(v) == KindNoValue {
		return false, nil
	}

	w, err := e.host.Convert(v, WireBool)
	if err != nil {
		return nil, invalidArgument("cannot unbox %s value as bool: %v", e.host.KindOf(v), err)
	}

	return w.Bits != 0, nil
}

func (bt *boolType) GoType() string {
	return "bool"
}
