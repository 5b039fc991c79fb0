package dbgmodel

import (
	"context"
	"reflect"
)

// arrayType boxes fixed-size arrays and slices as an owning indexable and
// iterable container holding a private copy of the elements.
type arrayType struct {
	baseType
	goType reflect.Type
	elem   registeredType
}

func newArrayType(e *engine, t reflect.Type) (registeredType, error) {
	elem, err := e.typeFor(t.Elem())
	if err != nil {
		return nil, err
	}

	return &arrayType{
		baseType: baseType{name: t.String(), kind: KindIterable},
		goType:   t,
		elem:     elem,
	}, nil
}

// ownedElements is the private element copy an array container holds.
type ownedElements struct {
	data reflect.Value // always a slice
	from reflect.Type
}

func (at *arrayType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	rv := reflect.ValueOf(o)
	if rv.Type() != at.goType {
		return Value{}, invalidArgument("value must be of type %s, is %T", at.goType, o)
	}

	owned := reflect.MakeSlice(reflect.SliceOf(at.goType.Elem()), rv.Len(), rv.Len())
	for i := 0; i < rv.Len(); i++ {
		owned.Index(i).Set(rv.Index(i))
	}
	elements := &ownedElements{data: owned, from: at.goType}

	factory := func(ctx context.Context) (Cursor, error) {
		return &sliceCursor{v: elements.data}, nil
	}
	setter := func(ctx context.Context, index int, element any) error {
		ev := reflect.ValueOf(element)
		if !ev.IsValid() || !ev.Type().AssignableTo(at.goType.Elem()) {
			if ev.IsValid() && ev.Type().ConvertibleTo(at.goType.Elem()) {
				ev = ev.Convert(at.goType.Elem())
			} else {
				return invalidArgument("cannot assign %T at index %d of %s", element, index, at.goType)
			}
		}
		elements.data.Index(index).Set(ev)
		return nil
	}

	return e.NewSequenceValue(factory, nil, setter, nil, elements)
}

func (at *arrayType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	if e.host.KindOf(v) != KindIterable {
		return nil, invalidArgument("cannot unbox %s value as %s", e.host.KindOf(v), at.goType)
	}

	payload, err := e.host.PayloadOf(v)
	if err != nil {
		return nil, err
	}

	adapter, ok := payload.(*sequenceAdapter)
	if !ok {
		return nil, invalidArgument("iterable value does not wrap a container")
	}

	// Fast path: the container owns typed elements already.
	if owned, ok := adapter.source.(*ownedElements); ok {
		return at.fromSlice(owned.data)
	}

	// Otherwise drain the traversal and rebuild.
	natives, err := e.drainIterable(ctx, v)
	if err != nil {
		return nil, err
	}

	out := reflect.MakeSlice(reflect.SliceOf(at.goType.Elem()), len(natives), len(natives))
	for i := range natives {
		ev := reflect.ValueOf(natives[i])
		if !ev.IsValid() || !ev.Type().AssignableTo(at.goType.Elem()) {
			return nil, invalidArgument("element %d of type %T does not fit %s", i, natives[i], at.goType)
		}
		out.Index(i).Set(ev)
	}
	return at.fromSlice(out)
}

func (at *arrayType) fromSlice(data reflect.Value) (any, error) {
	if at.goType.Kind() == reflect.Slice {
		copied := reflect.MakeSlice(at.goType, data.Len(), data.Len())
		reflect.Copy(copied, data)
		return copied.Interface(), nil
	}

	if data.Len() != at.goType.Len() {
		return nil, invalidArgument("container of %d elements does not fit %s", data.Len(), at.goType)
	}

	out := reflect.New(at.goType).Elem()
	reflect.Copy(out, data)
	return out.Interface(), nil
}

func (at *arrayType) GoType() string {
	return at.goType.String()
}
