package dbgmodel

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

type IEnum interface {
	// Type returns a zero value of the Go representation.
	Type() any
	// Values maps enumerator names to Go representation values.
	Values() map[string]any
}

type enumValue struct {
	name     string
	goValue  any
	rawValue int64
}

func (ev *enumValue) Name() string {
	return ev.name
}

func (ev *enumValue) Value() any {
	return ev.goValue
}

type enumType struct {
	baseType
	// Enums are basically ints, the intType does the boundary work.
	intHelper    intType
	goType       reflect.Type
	valuesByName map[string]*enumValue
	valuesByGo   map[any]*enumValue
	valuesByRaw  map[int64]*enumValue
}

// rawEnumValue returns the declared underlying integer of an enum
// representation value.
func rawEnumValue(rv reflect.Value) (int64, error) {
	switch {
	case rv.CanInt():
		return rv.Int(), nil
	case rv.CanUint():
		return int64(rv.Uint()), nil
	}
	return 0, invalidArgument("enum representation %s is not an integer type", rv.Type())
}

func (et *enumType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	val, ok := et.valuesByGo[o]
	if ok {
		return et.boxRaw(ctx, e, val.rawValue)
	}

	// Not a registered enumerator; accept the raw underlying integer.
	rv := reflect.ValueOf(o)
	if rv.Type() != et.goType && !rv.Type().ConvertibleTo(et.goType) {
		return Value{}, invalidArgument("could not map enum value %v of type %T onto %s", o, o, et.name)
	}

	raw, err := rawEnumValue(rv)
	if err != nil {
		return Value{}, err
	}

	return et.boxRaw(ctx, e, raw)
}

func (et *enumType) boxRaw(ctx context.Context, e *engine, raw int64) (Value, error) {
	if et.intHelper.signed {
		switch et.intHelper.size {
		case 1:
			return et.intHelper.Box(ctx, e, int8(raw))
		case 2:
			return et.intHelper.Box(ctx, e, int16(raw))
		case 4:
			return et.intHelper.Box(ctx, e, int32(raw))
		}
		return et.intHelper.Box(ctx, e, raw)
	}

	switch et.intHelper.size {
	case 1:
		return et.intHelper.Box(ctx, e, uint8(raw))
	case 2:
		return et.intHelper.Box(ctx, e, uint16(raw))
	case 4:
		return et.intHelper.Box(ctx, e, uint32(raw))
	}
	return et.intHelper.Box(ctx, e, uint64(raw))
}

func (et *enumType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	o, err := et.intHelper.Unbox(ctx, e, v)
	if err != nil {
		return nil, err
	}

	raw, err := rawEnumValue(reflect.ValueOf(o))
	if err != nil {
		return nil, err
	}

	val, ok := et.valuesByRaw[raw]
	if ok {
		return val.goValue, nil
	}

	// An unregistered enumerator still unboxes into the declared Go type.
	return reflect.ValueOf(raw).Convert(et.goType).Interface(), nil
}

func (et *enumType) GoType() string {
	return et.goType.String()
}

func (et *enumType) Values() []*enumValue {
	values := make([]*enumValue, 0, len(et.valuesByName))
	for name := range et.valuesByName {
		values = append(values, et.valuesByName[name])
	}
	sort.Slice(values, func(i, j int) bool { return values[i].rawValue < values[j].rawValue })
	return values
}

func (e *engine) RegisterEnum(name string, enum IEnum) error {
	_, ok := e.registeredEnums[name]
	if ok {
		return fmt.Errorf("enum %s is already registered", name)
	}

	goType := reflect.TypeOf(enum.Type())
	if goType == nil {
		return invalidArgument("enum %s has no Go representation type", name)
	}

	var size int32
	signed := false
	switch goType.Kind() {
	case reflect.Int8, reflect.Uint8:
		size = 1
	case reflect.Int16, reflect.Uint16:
		size = 2
	case reflect.Int32, reflect.Uint32:
		size = 4
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64:
		size = 8
	default:
		return invalidArgument("enum %s representation %s is not an integer type", name, goType)
	}
	switch goType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		signed = true
	}

	intGoType := goType.Kind().String()
	et := &enumType{
		baseType: baseType{name: name, kind: KindScalar},
		intHelper: intType{
			baseType: baseType{name: name, kind: KindScalar},
			size:     size,
			signed:   signed,
			goType:   intGoType,
		},
		goType:       goType,
		valuesByName: map[string]*enumValue{},
		valuesByGo:   map[any]*enumValue{},
		valuesByRaw:  map[int64]*enumValue{},
	}

	for valueName, goValue := range enum.Values() {
		rv := reflect.ValueOf(goValue)
		if rv.Type() != goType {
			return invalidArgument("enum value %s for enum %s has type %T, want %s", valueName, name, goValue, goType)
		}

		raw, err := rawEnumValue(rv)
		if err != nil {
			return err
		}

		if _, ok := et.valuesByName[valueName]; ok {
			return fmt.Errorf("enum value %s for enum %s was already registered", valueName, name)
		}

		ev := &enumValue{name: valueName, goValue: goValue, rawValue: raw}
		et.valuesByName[valueName] = ev
		et.valuesByGo[goValue] = ev
		et.valuesByRaw[raw] = ev
	}

	e.registeredEnums[name] = et
	e.registeredTypes[goType] = et
	delete(e.resolvedTypes, goType)

	return nil
}
