package dbgmodel

import (
	"context"
	"reflect"
)

// interfaceType marshals raw interface handles: the payload crosses opaque,
// no structural conversion happens.
type interfaceType struct {
	baseType
	goType reflect.Type
}

func (it *interfaceType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	if o == nil {
		return e.host.Null(), nil
	}
	return e.host.Synthetic(KindInterface, o), nil
}

func (it *interfaceType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	if e.host.KindOf(v) != KindInterface {
		return nil, invalidArgument("cannot unbox %s value as %s", e.host.KindOf(v), it.goType)
	}

	payload, err := e.host.PayloadOf(v)
	if err != nil {
		return nil, err
	}

	// A bound instance unboxes to the native it projects.
	if b, ok := payload.(*Binding); ok {
		payload = b.native
	}

	if it.goType.Kind() == reflect.Interface && it.goType.NumMethod() > 0 {
		if !reflect.TypeOf(payload).Implements(it.goType) {
			return nil, invalidArgument("interface payload %T does not implement %s", payload, it.goType)
		}
	}

	return payload, nil
}

func (it *interfaceType) GoType() string {
	return it.goType.String()
}
