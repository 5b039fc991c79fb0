package dbgmodel

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"unicode"
	"unicode/utf8"
)

// Optional interfaces a registered native type can implement to pick up the
// matching concept on every bound instance.
type DisplayStringer interface {
	ToDisplayString(ctx context.Context) (string, error)
}

type Equatable interface {
	EqualTo(ctx context.Context, other any) (bool, error)
}

type Comparable interface {
	CompareTo(ctx context.Context, other any) (int, error)
}

type classProperty struct {
	name   string
	index  []int // data member path, nil when accessor-backed
	getter *classMethod
	setter *classMethod
}

type classMethod struct {
	name   string
	index  int
	sig    *Signature
	method reflect.Method
}

// classType is the registration record of one native type exposed to the
// object graph: its prototype shape, its classified methods, its tagged
// properties and its constructor table.
type classType struct {
	baseType
	className    string
	goType       reflect.Type // pointer to struct
	methods      map[string]*classMethod
	properties   map[string]classProperty
	constructors map[int]*publicSymbol
	instances    map[any]*Binding
	classValue   Value
}

// RegisterClass registers a native prototype under a class name. The
// prototype must be a pointer to a struct; its exported methods become
// invocable members and fields tagged dbgmodel_property become readable and
// writable keys. Registering the same name or the same Go type twice is a
// configuration error.
func (e *engine) RegisterClass(name string, prototype any) error {
	t := reflect.TypeOf(prototype)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return invalidArgument("class prototype for %s must be a pointer to a struct, got %T", name, prototype)
	}

	if _, ok := e.registeredClasses[name]; ok {
		return illegalOperation("cannot register class %s twice", name)
	}
	if prev, ok := e.registeredClassType[t]; ok {
		return illegalOperation("type %s is already registered as class %s", t, prev.className)
	}

	ct := &classType{
		baseType:     baseType{name: name, kind: KindInterface},
		className:    name,
		goType:       t,
		methods:      map[string]*classMethod{},
		properties:   map[string]classProperty{},
		constructors: map[int]*publicSymbol{},
		instances:    map[any]*Binding{},
	}

	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		sig, err := e.signatureForFuncType(boundMethodType(m))
		if err != nil {
			return fmt.Errorf("method %s.%s: %w", name, m.Name, err)
		}
		ct.methods[m.Name] = &classMethod{name: m.Name, index: i, sig: sig, method: m}
	}

	st := t.Elem()
	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		tag, ok := field.Tag.Lookup("dbgmodel_property")
		if !ok {
			continue
		}
		if tag == "" {
			tag = field.Name
		}
		if !field.IsExported() {
			return invalidArgument("property field %s.%s must be exported", name, field.Name)
		}
		ct.properties[tag] = classProperty{name: tag, index: field.Index}
	}

	ct.classValue = e.host.Synthetic(KindInterface, ct)

	e.registeredClasses[name] = ct
	e.registeredClassType[t] = ct
	e.registeredTypes[t] = ct
	delete(e.resolvedTypes, t)

	return nil
}

// boundMethodType strips the receiver off a method's function type.
func boundMethodType(m reflect.Method) reflect.Type {
	t := m.Func.Type()
	in := make([]reflect.Type, 0, t.NumIn()-1)
	for i := 1; i < t.NumIn(); i++ {
		in = append(in, t.In(i))
	}
	out := make([]reflect.Type, 0, t.NumOut())
	for i := 0; i < t.NumOut(); i++ {
		out = append(out, t.Out(i))
	}
	return reflect.FuncOf(in, out, t.IsVariadic())
}

// RegisterClassProperty exposes a property backed by a getter and setter
// method pair instead of a tagged data member. The setter name may be empty
// for a read-only property; writing it then fails as not implemented.
// Properties registered after an instance was bound do not project onto the
// existing handle.
func (e *engine) RegisterClassProperty(className, name, getterMethod, setterMethod string) error {
	ct, ok := e.registeredClasses[className]
	if !ok {
		return notFound("could not find class %s", className)
	}
	if _, ok := ct.properties[name]; ok {
		return illegalOperation("class %s already has a property %s", className, name)
	}

	getter, ok := ct.methods[getterMethod]
	if !ok {
		return notFound("class %s has no method %s", className, getterMethod)
	}
	if getter.sig.MaxArgs() != 0 {
		return invalidArgument("getter %s.%s must not take arguments", className, getterMethod)
	}

	prop := classProperty{name: name, getter: getter}
	if setterMethod != "" {
		setter, ok := ct.methods[setterMethod]
		if !ok {
			return notFound("class %s has no method %s", className, setterMethod)
		}
		if setter.sig.MinArgs() != 1 || setter.sig.MaxArgs() != 1 {
			return invalidArgument("setter %s.%s must take exactly one argument", className, setterMethod)
		}
		prop.setter = setter
	}

	ct.properties[name] = prop
	return nil
}

// RegisterClassConstructor adds a constructor under the given fixed arity.
// The first registered constructor also makes the class object constructable
// from the host side.
func (e *engine) RegisterClassConstructor(className string, sig *Signature, fn NativeFunc) error {
	ct, ok := e.registeredClasses[className]
	if !ok {
		return notFound("could not find class %s", className)
	}
	if !sig.fixedArity() {
		return invalidArgument("constructor of %s must have a fixed arity", className)
	}

	arity := sig.MinArgs()
	if _, ok := ct.constructors[arity]; ok {
		return illegalOperation("class %s already has a constructor taking %d argument(s)", className, arity)
	}

	humanName := className + " constructor"
	ct.constructors[arity] = &publicSymbol{
		name:      humanName,
		fn:        e.craftInvokerFunction(humanName, sig, nil, fn),
		signature: sig,
	}

	if len(ct.constructors) == 1 {
		return e.host.Attach(ct.classValue, &ConstructableConcept{
			New: func(ctx context.Context, arguments ...any) (any, error) {
				b, err := e.ConstructClass(ctx, className, arguments...)
				if err != nil {
					return nil, err
				}
				return b.native, nil
			},
		})
	}
	return nil
}

// ConstructClass runs the constructor matching the argument count and binds
// the produced native instance.
func (e *engine) ConstructClass(ctx context.Context, className string, arguments ...any) (*Binding, error) {
	ct, ok := e.registeredClasses[className]
	if !ok {
		return nil, notFound("could not find class %s", className)
	}

	ctor, ok := ct.constructors[len(arguments)]
	if !ok {
		return nil, invalidArgument("class %s has no constructor taking %d argument(s)", className, len(arguments))
	}

	boxed := make([]Value, len(arguments))
	for i := range arguments {
		bv, err := e.Box(ctx, arguments[i])
		if err != nil {
			return nil, fmt.Errorf("constructor argument %d: %w", i, err)
		}
		boxed[i] = bv
	}

	res, err := ctor.fn(ctx, e.host.Null(), boxed...)
	if err != nil {
		return nil, err
	}

	native, err := e.ToGo(ctx, res)
	if err != nil {
		return nil, err
	}

	return e.BindInstance(ctx, className, native)
}

func (ct *classType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	if o == nil {
		return e.host.Null(), nil
	}

	rv := reflect.ValueOf(o)
	if !rv.Type().AssignableTo(ct.goType) {
		return Value{}, invalidArgument("cannot box %T as class %s", o, ct.className)
	}
	if rv.IsNil() {
		return e.host.Null(), nil
	}

	b, err := e.BindInstance(ctx, ct.className, o)
	if err != nil {
		return Value{}, err
	}
	return b.handle, nil
}

func (ct *classType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	if v == e.host.Null() || v == e.host.NoValue() {
		return reflect.Zero(ct.goType).Interface(), nil
	}

	payload, err := e.host.PayloadOf(v)
	if err != nil {
		return nil, err
	}

	b, ok := payload.(*Binding)
	if !ok {
		return nil, invalidArgument("handle is not an instance of class %s", ct.className)
	}
	if b.class != ct {
		return nil, invalidArgument("handle is an instance of class %s, not %s", b.class.className, ct.className)
	}
	if err := b.guard().check(); err != nil {
		return nil, err
	}

	return b.native, nil
}

func (ct *classType) GoType() string {
	return ct.goType.String()
}

// Binding ties one native instance to its object-graph projection. Every
// access to the native side runs through the lifetime flag, so a detached
// binding consistently reports the detachment instead of touching freed
// state.
type Binding struct {
	engine        *engine
	class         *classType
	native        any
	flag          *LifetimeFlag
	handle        Value
	dispatchDepth int
}

// BindInstance projects a native instance of a registered class into the
// object graph. Binding the same instance again returns the existing
// projection.
func (e *engine) BindInstance(ctx context.Context, className string, native any) (*Binding, error) {
	ct, ok := e.registeredClasses[className]
	if !ok {
		return nil, notFound("could not find class %s", className)
	}

	rv := reflect.ValueOf(native)
	if !rv.IsValid() || !rv.Type().AssignableTo(ct.goType) {
		return nil, invalidArgument("cannot bind %T as an instance of class %s", native, className)
	}
	if rv.IsNil() {
		return nil, invalidArgument("cannot bind a nil instance of class %s", className)
	}

	if existing, ok := ct.instances[native]; ok {
		return existing, nil
	}

	b := &Binding{
		engine: e,
		class:  ct,
		native: native,
		flag:   newLifetimeFlag(),
	}
	b.handle = e.host.Synthetic(KindInterface, b)

	for name, cm := range ct.methods {
		bm := &boundMethod{name: ct.className + "." + name, fn: rv.Method(cm.index), sig: cm.sig}
		bm.invoke = e.craftInvokerFunction(bm.name, cm.sig, b.flag, b.trackDispatch(bm.asNativeFunc(e)))
		mv := e.host.Synthetic(KindMethod, bm)
		if err := e.host.SetKey(b.handle, name, mv); err != nil {
			return nil, err
		}
		if err := e.host.Decref(mv); err != nil {
			return nil, err
		}
	}

	for name := range ct.properties {
		pv := e.host.Synthetic(KindPropertyAccessor, &PropertyAccessor{binding: b, name: name})
		if err := e.host.SetKey(b.handle, name, pv); err != nil {
			return nil, err
		}
		if err := e.host.Decref(pv); err != nil {
			return nil, err
		}
	}

	if err := b.attachConcepts(ctx); err != nil {
		return nil, err
	}

	ct.instances[native] = b
	return b, nil
}

func (b *Binding) attachConcepts(ctx context.Context) error {
	e := b.engine

	if ds, ok := b.native.(DisplayStringer); ok {
		err := e.host.Attach(b.handle, &StringConversionConcept{
			ToDisplayString: func(ctx context.Context, _ any) (string, error) {
				if err := b.guard().check(); err != nil {
					return "", err
				}
				return ds.ToDisplayString(ctx)
			},
		})
		if err != nil {
			return err
		}
	} else if s, ok := b.native.(fmt.Stringer); ok {
		err := e.host.Attach(b.handle, &StringConversionConcept{
			ToDisplayString: func(ctx context.Context, _ any) (string, error) {
				if err := b.guard().check(); err != nil {
					return "", err
				}
				return s.String(), nil
			},
		})
		if err != nil {
			return err
		}
	}

	if eq, ok := b.native.(Equatable); ok {
		err := e.host.Attach(b.handle, &EquatableConcept{
			Equals: func(ctx context.Context, _ any, other any) (bool, error) {
				if err := b.guard().check(); err != nil {
					return false, err
				}
				return eq.EqualTo(ctx, other)
			},
		})
		if err != nil {
			return err
		}
	}

	if cmp, ok := b.native.(Comparable); ok {
		err := e.host.Attach(b.handle, &ComparableConcept{
			Compare: func(ctx context.Context, _ any, other any) (int, error) {
				if err := b.guard().check(); err != nil {
					return 0, err
				}
				return cmp.CompareTo(ctx, other)
			},
		})
		if err != nil {
			return err
		}
	}

	if sp, ok := b.native.(SequenceProvider); ok {
		adapter := &sequenceAdapter{
			engine: e,
			factory: func(ctx context.Context) (Cursor, error) {
				return sp.Sequence(ctx)
			},
			guard:  lifetimeGuard{flag: b.flag, name: b.class.className},
			source: b.native,
		}
		if err := e.host.Attach(b.handle, &IterableConcept{adapter: adapter}); err != nil {
			return err
		}
	}

	return nil
}

func (b *Binding) guard() lifetimeGuard {
	return lifetimeGuard{flag: b.flag, name: b.class.className}
}

// trackDispatch counts calls that are currently on the stack, so a teardown
// initiated from inside a dispatched call can be refused instead of pulling
// the instance out from under itself.
func (b *Binding) trackDispatch(fn NativeFunc) NativeFunc {
	return func(ctx context.Context, this any, arguments ...any) (any, error) {
		b.dispatchDepth++
		defer func() { b.dispatchDepth-- }()
		return fn(ctx, this, arguments...)
	}
}

// Handle is the object-graph projection of the bound instance.
func (b *Binding) Handle() Value {
	return b.handle
}

// Native is the bound instance itself.
func (b *Binding) Native() any {
	return b.native
}

// Detached reports whether the binding has been torn down.
func (b *Binding) Detached() bool {
	return !b.flag.Alive()
}

// CallMethod invokes a member by name with native arguments. Lookup tries
// the name verbatim, then with its first rune upper-cased so host-style
// lowerCamel member names resolve to exported Go methods.
func (b *Binding) CallMethod(ctx context.Context, name string, arguments ...any) (any, error) {
	if err := b.guard().check(); err != nil {
		return nil, err
	}

	cm, err := b.class.lookupMethod(name)
	if err != nil {
		return nil, err
	}

	return b.callMember(ctx, cm, arguments...)
}

// callMember dispatches a classified member with plain native arguments,
// counting the call so a reentrant teardown can be refused.
func (b *Binding) callMember(ctx context.Context, cm *classMethod, arguments ...any) (any, error) {
	bm := &boundMethod{
		name: b.class.className + "." + cm.name,
		fn:   reflect.ValueOf(b.native).Method(cm.index),
		sig:  cm.sig,
	}

	b.dispatchDepth++
	defer func() { b.dispatchDepth-- }()
	return bm.callNative(ctx, arguments...)
}

func (ct *classType) lookupMethod(name string) (*classMethod, error) {
	if cm, ok := ct.methods[name]; ok {
		return cm, nil
	}
	if cm, ok := ct.methods[upperFirst(name)]; ok {
		return cm, nil
	}
	return nil, notFound("class %s has no method %s", ct.className, name)
}

// GetProperty reads a property of the bound instance, through the field for
// a tagged data member or through the getter for an accessor-backed one.
func (b *Binding) GetProperty(ctx context.Context, name string) (any, error) {
	if err := b.guard().check(); err != nil {
		return nil, err
	}

	prop, ok := b.class.properties[name]
	if !ok {
		return nil, notFound("class %s has no property %s", b.class.className, name)
	}

	if prop.index != nil {
		return reflect.ValueOf(b.native).Elem().FieldByIndex(prop.index).Interface(), nil
	}
	return b.callMember(ctx, prop.getter)
}

// SetProperty writes a property of the bound instance. Writing an
// accessor-backed property without a setter fails as not implemented.
func (b *Binding) SetProperty(ctx context.Context, name string, value any) error {
	if err := b.guard().check(); err != nil {
		return err
	}

	prop, ok := b.class.properties[name]
	if !ok {
		return notFound("class %s has no property %s", b.class.className, name)
	}

	if prop.index != nil {
		field := reflect.ValueOf(b.native).Elem().FieldByIndex(prop.index)
		rv, err := conformValue(value, field.Type())
		if err != nil {
			return fmt.Errorf("property %s.%s: %w", b.class.className, prop.name, err)
		}
		field.Set(rv)
		return nil
	}

	if prop.setter == nil {
		return notImplemented("property %s.%s is read-only", b.class.className, prop.name)
	}
	_, err := b.callMember(ctx, prop.setter, value)
	return err
}

// PropertyAccessor is the payload of a property value projected onto an
// instance handle, the host-side counterpart of GetProperty and SetProperty.
// Every access re-checks the binding's lifetime flag.
type PropertyAccessor struct {
	binding *Binding
	name    string
}

func (pa *PropertyAccessor) Name() string {
	return pa.name
}

func (pa *PropertyAccessor) Get(ctx context.Context) (Value, error) {
	native, err := pa.binding.GetProperty(ctx, pa.name)
	if err != nil {
		return Value{}, err
	}
	return pa.binding.engine.Box(ctx, native)
}

func (pa *PropertyAccessor) Set(ctx context.Context, v Value) error {
	native, err := pa.binding.engine.ToGo(ctx, v)
	if err != nil {
		return err
	}
	return pa.binding.SetProperty(ctx, pa.name, native)
}

// PropertyNames lists the exposed property names in sorted order.
func (b *Binding) PropertyNames() []string {
	names := make([]string, 0, len(b.class.properties))
	for name := range b.class.properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MethodNames lists the exposed method names.
func (b *Binding) MethodNames() []string {
	names := make([]string, 0, len(b.class.methods))
	for name := range b.class.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detach tears the binding down: the projection stays a valid handle, but
// every native access through it reports the detachment from then on.
// Tearing down while a dispatched call is still on the stack is refused.
func (b *Binding) Detach() error {
	if err := b.guard().check(); err != nil {
		return err
	}
	if b.dispatchDepth > 0 {
		return illegalOperation("cannot detach an instance of class %s during an active dispatch", b.class.className)
	}

	b.flag.clear()
	delete(b.class.instances, b.native)
	return nil
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
