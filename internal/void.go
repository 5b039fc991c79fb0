package dbgmodel

import (
	"context"
)

type voidType struct {
	baseType
}

func (vt *voidType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	return e.host.NoValue(), nil
}

func (vt *voidType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	return nil, nil
}

func (vt *voidType) GoType() string {
	return ""
}
