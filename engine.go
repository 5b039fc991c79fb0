package dbgmodel

import (
	"context"

	internal "github.com/microsoft/WinDbg-Libraries/internal"
)

// Engine is the binding layer between statically typed native code and the
// dynamic object graph of the host.
type Engine interface {
	internal.Engine
}

type IEngineConfig interface {
	internal.IEngineConfig
}

type EngineConfig = internal.EngineConfig

// EngineKey is the context key an engine travels under.
type EngineKey = internal.EngineKey

// CreateEngine returns a fresh engine. A nil config uses the in-process
// object graph with the default memory size.
func CreateEngine(config IEngineConfig) Engine {
	return internal.CreateEngine(config)
}

// GetEngineFromContext resolves the engine a context was attached to.
func GetEngineFromContext(ctx context.Context) (Engine, error) {
	e, err := internal.GetEngineFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// MustGetEngineFromContext is GetEngineFromContext for call sites that are
// only ever reached with an attached engine.
func MustGetEngineFromContext(ctx context.Context) Engine {
	return internal.MustGetEngineFromContext(ctx)
}
