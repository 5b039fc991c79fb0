package dbgmodel

import (
	"context"
)

// NativeFunc is the uniform shape of a native call target. The binding layer
// prepends fixed leading arguments (the receiver for methods); a trailing
// variadic pair arrives as a count followed by the unconverted tail of the
// argument pack.
type NativeFunc func(ctx context.Context, this any, arguments ...any) (any, error)

// publicSymbolFn is a host-facing dispatch entry: dynamic receiver in,
// dynamic argument pack in, dynamic value out.
type publicSymbolFn func(ctx context.Context, this Value, arguments ...Value) (Value, error)

type baseType struct {
	name string
	kind ValueKind
}

func (bt *baseType) Name() string {
	return bt.name
}

func (bt *baseType) Kind() ValueKind {
	return bt.kind
}

func (bt *baseType) GoType() string {
	return ""
}

// registeredType converts between one native static type and a dynamic
// value, in both directions.
type registeredType interface {
	Name() string
	Kind() ValueKind
	// GoType is the Go source representation, used by the accessor
	// generator.
	GoType() string
	Box(ctx context.Context, e *engine, o any) (Value, error)
	Unbox(ctx context.Context, e *engine, v Value) (any, error)
}

type publicSymbol struct {
	name          string
	fn            publicSymbolFn
	signature     *Signature
	isOverload    bool
	overloadTable map[int32]*publicSymbol
}

type registeredConstant struct {
	name    string
	goValue any
	value   Value
}
