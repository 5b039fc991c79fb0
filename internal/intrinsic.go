package dbgmodel

import (
	"context"
	"reflect"
)

// createIntrinsicTable builds the fixed conversion table that is the final
// fallback of the boxing strategy registry.
func createIntrinsicTable() map[reflect.Kind]registeredType {
	intOf := func(size int32, signed bool, goType string) *intType {
		return &intType{
			baseType: baseType{name: goType, kind: KindScalar},
			size:     size,
			signed:   signed,
			goType:   goType,
		}
	}

	return map[reflect.Kind]registeredType{
		reflect.Int8:    intOf(1, true, "int8"),
		reflect.Uint8:   intOf(1, false, "uint8"),
		reflect.Int16:   intOf(2, true, "int16"),
		reflect.Uint16:  intOf(2, false, "uint16"),
		reflect.Int32:   intOf(4, true, "int32"),
		reflect.Uint32:  intOf(4, false, "uint32"),
		reflect.Int64:   intOf(8, true, "int64"),
		reflect.Uint64:  intOf(8, false, "uint64"),
		reflect.Int:     intOf(8, true, "int"),
		reflect.Uint:    intOf(8, false, "uint"),
		reflect.Float32: &floatType{baseType: baseType{name: "float32", kind: KindScalar}, size: 4},
		reflect.Float64: &floatType{baseType: baseType{name: "float64", kind: KindScalar}, size: 8},
		reflect.Bool:    &boolType{baseType: baseType{name: "bool", kind: KindScalar}},
		reflect.String:  &stringType{baseType: baseType{name: "string", kind: KindString}, page: CodePageUTF8},
	}
}

// namedIntrinsicType handles defined types over an intrinsic kind, e.g.
// type Pid uint32. The underlying conversion applies but values round-trip
// through the declared type.
type namedIntrinsicType struct {
	baseType
	goType reflect.Type
	inner  registeredType
}

func (nt *namedIntrinsicType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	rv := reflect.ValueOf(o)
	if rv.Type() != nt.goType {
		return Value{}, invalidArgument("value must be of type %s, is %T", nt.goType, o)
	}

	underlying := rv.Convert(underlyingTypeOf(nt.goType))
	return nt.inner.Box(ctx, e, underlying.Interface())
}

func (nt *namedIntrinsicType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	o, err := nt.inner.Unbox(ctx, e, v)
	if err != nil {
		return nil, err
	}
	return reflect.ValueOf(o).Convert(nt.goType).Interface(), nil
}

func (nt *namedIntrinsicType) GoType() string {
	return nt.goType.String()
}

var kindTypes = map[reflect.Kind]reflect.Type{
	reflect.Int8:    reflect.TypeOf(int8(0)),
	reflect.Uint8:   reflect.TypeOf(uint8(0)),
	reflect.Int16:   reflect.TypeOf(int16(0)),
	reflect.Uint16:  reflect.TypeOf(uint16(0)),
	reflect.Int32:   reflect.TypeOf(int32(0)),
	reflect.Uint32:  reflect.TypeOf(uint32(0)),
	reflect.Int64:   reflect.TypeOf(int64(0)),
	reflect.Uint64:  reflect.TypeOf(uint64(0)),
	reflect.Int:     reflect.TypeOf(int(0)),
	reflect.Uint:    reflect.TypeOf(uint(0)),
	reflect.Float32: reflect.TypeOf(float32(0)),
	reflect.Float64: reflect.TypeOf(float64(0)),
	reflect.Bool:    reflect.TypeOf(false),
	reflect.String:  reflect.TypeOf(""),
}

func underlyingTypeOf(t reflect.Type) reflect.Type {
	return kindTypes[t.Kind()]
}
