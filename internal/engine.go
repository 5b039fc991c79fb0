package dbgmodel

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type IEngineConfig interface {
	HostMemorySize() uint32
}

type EngineConfig struct {
	// MemorySize is the size of the host's flat address space in bytes.
	MemorySize uint32

	// ExternalHost overrides the in-process object graph.
	ExternalHost Host
}

func (c *EngineConfig) HostMemorySize() uint32 {
	if c == nil || c.MemorySize == 0 {
		return 1 << 16
	}
	return c.MemorySize
}

type Engine interface {
	Attach(ctx context.Context) context.Context
	Host() Host

	RegisterTypeConverter(sample any, converter CustomConverter) error
	RegisterConstant(name string, val any) error
	RegisterEnum(name string, enum IEnum) error
	RegisterClass(name string, prototype any) error
	RegisterClassProperty(className, name, getterMethod, setterMethod string) error
	RegisterClassConstructor(className string, sig *Signature, fn NativeFunc) error
	ConstructClass(ctx context.Context, className string, arguments ...any) (*Binding, error)

	ExposeFunction(name string, signature *Signature, fn NativeFunc) error
	NewSignature(result any, params ...Param) (*Signature, error)

	CallPublicSymbol(ctx context.Context, name string, arguments ...any) (any, error)
	DispatchSymbol(ctx context.Context, name string, this Value, pack ArgumentPack) (Value, Status, Value)
	Invoke(ctx context.Context, fn Value, this Value, arguments ...Value) (Value, error)

	Box(ctx context.Context, o any) (Value, error)
	Unbox(ctx context.Context, v Value, sample any) (any, error)
	ToGo(ctx context.Context, v Value) (any, error)

	BindInstance(ctx context.Context, className string, native any) (*Binding, error)
	GetConstant(name string) (Value, error)

	NewSequenceValue(factory TraversalFactory, project Projection, setter SetterProjection, flag *LifetimeFlag, source any) (Value, error)
	Traverse(ctx context.Context, v Value) (*IterationState, error)
	IndexGet(ctx context.Context, v Value, index int) (Value, error)
	IndexSet(ctx context.Context, v Value, index int, val Value) error

	NewStridedView(base, stride, count uint32, tag WireTag, flag *LifetimeFlag) (*StridedView, error)
	NewStridedValue(view *StridedView) (Value, error)

	CountLiveHandles() int
	TypeNames() []string
}

// EngineKey is the context key the engine travels under:
// ctx = context.WithValue(ctx, dbgmodel.EngineKey{}, engine)
type EngineKey struct{}

func GetEngineFromContext(ctx context.Context) (Engine, error) {
	raw := ctx.Value(EngineKey{})
	if raw == nil {
		return nil, fmt.Errorf("dbgmodel engine not found in context")
	}

	value, ok := raw.(Engine)
	if !ok {
		return nil, fmt.Errorf("context value %v not of type %T", value, new(Engine))
	}

	return value, nil
}

func MustGetEngineFromContext(ctx context.Context) Engine {
	e, err := GetEngineFromContext(ctx)
	if err != nil {
		panic(fmt.Errorf("could not get dbgmodel engine from context: %w, make sure to create an engine with dbgmodel.CreateEngine() and to attach it with engine.Attach(ctx)", err))
	}

	return e
}

// boxingStrategy is one entry of the priority-ordered strategy registry that
// replaces compile-time trait dispatch: exact registration, then callable
// shape, then traversal shape, then the intrinsic table.
type boxingStrategy struct {
	name    string
	resolve func(e *engine, t reflect.Type) (registeredType, error)
}

type engine struct {
	config IEngineConfig
	host   Host

	registeredTypes     map[reflect.Type]registeredType
	resolvedTypes       map[reflect.Type]registeredType
	intrinsics          map[reflect.Kind]registeredType
	strategies          []boxingStrategy
	publicSymbols       map[string]*publicSymbol
	registeredConstants map[string]*registeredConstant
	registeredEnums     map[string]*enumType
	registeredClasses   map[string]*classType
	registeredClassType map[reflect.Type]*classType
}

func CreateEngine(config IEngineConfig) Engine {
	host := Host(nil)
	if cfg, ok := config.(*EngineConfig); ok && cfg != nil && cfg.ExternalHost != nil {
		host = cfg.ExternalHost
	}
	if host == nil {
		size := uint32(1 << 16)
		if config != nil {
			size = config.HostMemorySize()
		}
		host = NewHost(size)
	}

	e := &engine{
		config:              config,
		host:                host,
		registeredTypes:     map[reflect.Type]registeredType{},
		resolvedTypes:       map[reflect.Type]registeredType{},
		publicSymbols:       map[string]*publicSymbol{},
		registeredConstants: map[string]*registeredConstant{},
		registeredEnums:     map[string]*enumType{},
		registeredClasses:   map[string]*classType{},
		registeredClassType: map[reflect.Type]*classType{},
	}

	e.intrinsics = createIntrinsicTable()
	e.strategies = []boxingStrategy{
		{name: "registered", resolve: resolveRegistered},
		{name: "callable", resolve: resolveCallable},
		{name: "iterable", resolve: resolveIterable},
		{name: "intrinsic", resolve: resolveIntrinsic},
	}

	return e
}

func (e *engine) Attach(ctx context.Context) context.Context {
	return context.WithValue(ctx, EngineKey{}, e)
}

func (e *engine) Host() Host {
	return e.host
}

// typeFor selects the marshaler for a native static type. Selection happens
// when a binding is declared; an unsupported type is a declaration error,
// never a run time one.
func (e *engine) typeFor(t reflect.Type) (registeredType, error) {
	if t == nil {
		return nil, invalidArgument("cannot resolve a marshaler for an untyped nil")
	}

	if cached, ok := e.resolvedTypes[t]; ok {
		return cached, nil
	}

	for i := range e.strategies {
		rt, err := e.strategies[i].resolve(e, t)
		if err != nil {
			return nil, fmt.Errorf("strategy %s failed for type %s: %w", e.strategies[i].name, t, err)
		}
		if rt != nil {
			e.resolvedTypes[t] = rt
			return rt, nil
		}
	}

	return nil, invalidArgument("type %s is not supported for binding declaration", t)
}

func resolveRegistered(e *engine, t reflect.Type) (registeredType, error) {
	rt, ok := e.registeredTypes[t]
	if !ok {
		return nil, nil
	}
	return rt, nil
}

func resolveCallable(e *engine, t reflect.Type) (registeredType, error) {
	if t.Kind() != reflect.Func {
		return nil, nil
	}
	return newFuncType(e, t)
}

var sequenceProviderType = reflect.TypeOf((*SequenceProvider)(nil)).Elem()

func resolveIterable(e *engine, t reflect.Type) (registeredType, error) {
	if t.Implements(sequenceProviderType) {
		return &iterableType{baseType: baseType{name: t.String(), kind: KindIterable}, goType: t}, nil
	}
	return nil, nil
}

func resolveIntrinsic(e *engine, t reflect.Type) (registeredType, error) {
	switch t.Kind() {
	case reflect.Array, reflect.Slice:
		// Character arrays box as strings, everything else as an owning
		// container.
		if t.Elem().Kind() == reflect.Uint8 {
			return &charArrayType{baseType: baseType{name: t.String(), kind: KindString}, goType: t}, nil
		}
		return newArrayType(e, t)
	case reflect.Pointer:
		inner, err := e.typeFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &optionalType{
			baseType: baseType{name: "optional " + inner.Name(), kind: inner.Kind()},
			goType:   t,
			inner:    inner,
		}, nil
	case reflect.Interface:
		return &interfaceType{baseType: baseType{name: t.String(), kind: KindInterface}, goType: t}, nil
	}

	rt, ok := e.intrinsics[t.Kind()]
	if !ok {
		return nil, nil
	}

	// Named types over an intrinsic kind keep their underlying conversion
	// but must round-trip through their declared type.
	if t.String() != rt.GoType() {
		return &namedIntrinsicType{
			baseType: baseType{name: t.String(), kind: rt.Kind()},
			goType:   t,
			inner:    rt,
		}, nil
	}

	return rt, nil
}

// CustomConverter is the explicit per-type registration hook. A registered
// converter always wins over the structural strategies.
type CustomConverter interface {
	TypeName() string
	BoxNative(ctx context.Context, h Host, o any) (Value, error)
	UnboxNative(ctx context.Context, h Host, v Value) (any, error)
}

type customType struct {
	baseType
	goType    reflect.Type
	converter CustomConverter
}

func (ct *customType) GoType() string {
	return ct.goType.String()
}

func (ct *customType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	return ct.converter.BoxNative(ctx, e.host, o)
}

func (ct *customType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	return ct.converter.UnboxNative(ctx, e.host, v)
}

func (e *engine) RegisterTypeConverter(sample any, converter CustomConverter) error {
	t := reflect.TypeOf(sample)
	if t == nil {
		return invalidArgument("cannot register a converter for an untyped nil")
	}

	_, ok := e.registeredTypes[t]
	if ok {
		return fmt.Errorf("cannot register type %s twice", t)
	}

	e.registeredTypes[t] = &customType{
		baseType:  baseType{name: converter.TypeName(), kind: KindInterface},
		goType:    t,
		converter: converter,
	}
	delete(e.resolvedTypes, t)

	return nil
}

func (e *engine) RegisterConstant(name string, val any) error {
	_, ok := e.registeredConstants[name]
	if ok {
		return fmt.Errorf("constant %s is already registered", name)
	}

	boxed, err := e.Box(context.Background(), val)
	if err != nil {
		return fmt.Errorf("could not box constant %s: %w", name, err)
	}

	e.registeredConstants[name] = &registeredConstant{
		name:    name,
		goValue: val,
		value:   boxed,
	}

	return nil
}

func (e *engine) GetConstant(name string) (Value, error) {
	c, ok := e.registeredConstants[name]
	if !ok {
		return Value{}, notFound("constant %s is not registered", name)
	}
	return c.value, nil
}

// Box converts a native value of arbitrary static type into a dynamic value.
func (e *engine) Box(ctx context.Context, o any) (Value, error) {
	if o == nil {
		return e.host.Null(), nil
	}

	if v, ok := o.(Value); ok {
		return v, nil
	}

	rt, err := e.typeFor(reflect.TypeOf(o))
	if err != nil {
		return Value{}, err
	}

	return rt.Box(ctx, e, o)
}

// Unbox converts a dynamic value back to the native static type of sample.
func (e *engine) Unbox(ctx context.Context, v Value, sample any) (any, error) {
	rt, err := e.typeFor(reflect.TypeOf(sample))
	if err != nil {
		return nil, err
	}

	return rt.Unbox(ctx, e, v)
}

// ToGo converts a dynamic value to a Go value guided only by the value's own
// kind tag, for callers that have no static type to unbox into.
func (e *engine) ToGo(ctx context.Context, v Value) (any, error) {
	switch e.host.KindOf(v) {
	case KindNoValue:
		return nil, nil
	case KindScalar:
		return e.host.PayloadOf(v)
	case KindString:
		payload, err := e.host.PayloadOf(v)
		if err != nil {
			return nil, err
		}
		enc, ok := payload.(encodedString)
		if !ok {
			return nil, unexpected("string handle carries %T", payload)
		}
		return enc.decode()
	case KindInterface:
		payload, err := e.host.PayloadOf(v)
		if err != nil {
			return nil, err
		}
		if b, ok := payload.(*Binding); ok {
			return b.native, nil
		}
		return payload, nil
	case KindIterable:
		return e.drainIterable(ctx, v)
	case KindMethod:
		payload, err := e.host.PayloadOf(v)
		if err != nil {
			return nil, err
		}
		bm, ok := payload.(*boundMethod)
		if !ok {
			return nil, unexpected("method handle carries %T", payload)
		}
		return NativeFunc(func(ctx context.Context, this any, arguments ...any) (any, error) {
			return bm.callNative(ctx, arguments...)
		}), nil
	case KindPropertyAccessor:
		payload, err := e.host.PayloadOf(v)
		if err != nil {
			return nil, err
		}
		pa, ok := payload.(*PropertyAccessor)
		if !ok {
			return nil, unexpected("property accessor carries %T", payload)
		}
		res, err := pa.Get(ctx)
		if err != nil {
			return nil, err
		}
		return e.ToGo(ctx, res)
	case KindInvalid:
		return nil, invalidArgument("invalid handle")
	}

	return v, nil
}

func (e *engine) ensureOverloadTable(registry map[string]*publicSymbol, methodName, humanName string) {
	if registry[methodName].overloadTable == nil {
		prevFn := registry[methodName].fn
		prevSig := registry[methodName].signature

		registry[methodName].isOverload = true

		// Inject an overload resolver that routes on the number of incoming
		// dynamic arguments.
		registry[methodName].fn = func(ctx context.Context, this Value, arguments ...Value) (Value, error) {
			_, ok := registry[methodName].overloadTable[int32(len(arguments))]
			if !ok {
				possibleOverloads := make([]string, 0, len(registry[methodName].overloadTable))
				for i := range registry[methodName].overloadTable {
					possibleOverloads = append(possibleOverloads, strconv.Itoa(int(i)))
				}
				sort.Strings(possibleOverloads)
				return Value{}, invalidArgument("function '%s' called with an invalid number of arguments (%d) - expects one of (%s)", humanName, len(arguments), strings.Join(possibleOverloads, ", "))
			}

			return registry[methodName].overloadTable[int32(len(arguments))].fn(ctx, this, arguments...)
		}

		// Move the previous function into the overload table.
		registry[methodName].overloadTable = map[int32]*publicSymbol{}
		registry[methodName].overloadTable[int32(prevSig.MinArgs())] = &publicSymbol{
			name:       methodName,
			signature:  prevSig,
			fn:         prevFn,
			isOverload: true,
		}
	}
}

func (e *engine) exposePublicSymbol(name string, value publicSymbolFn, signature *Signature) error {
	_, ok := e.publicSymbols[name]
	if ok {
		if signature == nil || !signature.fixedArity() {
			return fmt.Errorf("cannot register public name '%s' twice", name)
		}

		_, ok = e.publicSymbols[name].overloadTable[int32(signature.MinArgs())]
		if ok {
			return fmt.Errorf("cannot register public name '%s' twice", name)
		}

		if e.publicSymbols[name].signature != nil && !e.publicSymbols[name].signature.fixedArity() {
			return fmt.Errorf("cannot overload '%s', the existing registration does not have a fixed argument count", name)
		}

		e.ensureOverloadTable(e.publicSymbols, name, name)

		e.publicSymbols[name].overloadTable[int32(signature.MinArgs())] = &publicSymbol{
			name:       name,
			signature:  signature,
			fn:         value,
			isOverload: true,
		}
	} else {
		e.publicSymbols[name] = &publicSymbol{
			name:      name,
			fn:        value,
			signature: signature,
		}
	}

	return nil
}

// ExposeFunction binds a native function under a public name. The signature
// is classified once, here; configuration errors surface now and never at
// call time.
func (e *engine) ExposeFunction(name string, signature *Signature, fn NativeFunc) error {
	if signature == nil {
		return invalidArgument("function %s needs a signature", name)
	}

	invoker := e.craftInvokerFunction(name, signature, nil, fn)
	return e.exposePublicSymbol(makeLegalFunctionName(name), invoker, signature)
}

func (e *engine) CallPublicSymbol(ctx context.Context, name string, arguments ...any) (any, error) {
	symbol, ok := e.publicSymbols[name]
	if !ok {
		return nil, notFound("could not find public symbol %s", name)
	}

	pack := make(ArgumentPack, len(arguments))
	for i := range arguments {
		boxed, err := e.Box(ctx, arguments[i])
		if err != nil {
			return nil, fmt.Errorf("could not box argument %d: %w", i, err)
		}
		pack[i] = boxed
	}

	res, err := symbol.fn(e.Attach(ctx), e.host.Null(), pack...)
	if err != nil {
		return nil, err
	}

	return e.ToGo(ctx, res)
}

// DispatchSymbol is the host-facing entry point. Any failure raised during
// unpacking or invocation is translated to the status-code-plus-error-object
// channel here; nothing propagates to the host unconverted.
func (e *engine) DispatchSymbol(ctx context.Context, name string, this Value, pack ArgumentPack) (Value, Status, Value) {
	symbol, ok := e.publicSymbols[name]
	if !ok {
		return e.convertError(notFound("could not find public symbol %s", name))
	}

	res, err := symbol.fn(e.Attach(ctx), this, pack...)
	if err != nil {
		return e.convertError(err)
	}

	return res, StatusOK, Value{}
}

func (e *engine) convertError(err error) (Value, Status, Value) {
	se := AsStatus(err)
	return Value{}, se.Code, e.host.NewError(se.Code, se.HostCode, se.Message)
}

func (e *engine) CountLiveHandles() int {
	return e.host.LiveHandles()
}

func (e *engine) TypeNames() []string {
	names := make([]string, 0, len(e.registeredTypes))
	for t := range e.registeredTypes {
		names = append(names, e.registeredTypes[t].Name())
	}
	sort.Strings(names)
	return names
}

var illegalCharsRegex = regexp.MustCompile(`[^a-zA-Z0-9_]`)

func makeLegalFunctionName(name string) string {
	name = illegalCharsRegex.ReplaceAllString(name, `_`)
	if name == "" {
		return "_"
	}

	// Prepend with underscore if it starts with a number.
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}

	return name
}
