package dbgmodel

import (
	"context"
	"reflect"
)

// optionalType marshals pointer types as optionals: a nil pointer boxes to
// the distinguished no-value handle, anything else boxes the pointee.
type optionalType struct {
	baseType
	goType reflect.Type
	inner  registeredType
}

func (ot *optionalType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	rv := reflect.ValueOf(o)
	if rv.Type() != ot.goType {
		return Value{}, invalidArgument("value must be of type %s, is %T", ot.goType, o)
	}

	if rv.IsNil() {
		return e.host.NoValue(), nil
	}

	return ot.inner.Box(ctx, e, rv.Elem().Interface())
}

func (ot *optionalType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	// The no-value marker always yields empty; everything else delegates to
	// the inner unboxer.
	if e.host.KindOf(v) == KindNoValue {
		return reflect.Zero(ot.goType).Interface(), nil
	}

	o, err := ot.inner.Unbox(ctx, e, v)
	if err != nil {
		return nil, err
	}

	ptr := reflect.New(ot.goType.Elem())
	ptr.Elem().Set(reflect.ValueOf(o))
	return ptr.Interface(), nil
}

func (ot *optionalType) GoType() string {
	return ot.goType.String()
}
