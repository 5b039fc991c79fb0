package dbgmodel

import (
	"context"
)

// anyType marshals untyped slots: boxing defers to the value's runtime type,
// unboxing to the handle's kind tag.
type anyType struct {
	baseType
}

func (at *anyType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	return e.Box(ctx, o)
}

func (at *anyType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	return e.ToGo(ctx, v)
}

func (at *anyType) GoType() string {
	return "any"
}
