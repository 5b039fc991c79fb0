package dbgmodel

import (
	"context"
	"fmt"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// funcType marshals Go functions as invocable method handles. The parameter
// list is classified once, when the function type is first seen: a leading
// context.Context is fed from the call context, a trailing run of pointer
// parameters becomes optional slots and a Go variadic parameter becomes the
// trailing capture pair.
type funcType struct {
	baseType
	goType reflect.Type
	sig    *Signature
}

func newFuncType(e *engine, t reflect.Type) (registeredType, error) {
	sig, err := e.signatureForFuncType(t)
	if err != nil {
		return nil, fmt.Errorf("could not classify %s: %w", t.String(), err)
	}

	return &funcType{
		baseType: baseType{name: t.String(), kind: KindMethod},
		goType:   t,
		sig:      sig,
	}, nil
}

// signatureForFuncType derives a Signature from a Go function type.
func (e *engine) signatureForFuncType(t reflect.Type) (*Signature, error) {
	if t.Kind() != reflect.Func {
		return nil, invalidArgument("%s is not a function type", t.String())
	}

	sig := &Signature{}

	numIn := t.NumIn()
	start := 0
	if numIn > 0 && t.In(0) == contextType {
		start = 1
	}

	fixedEnd := numIn
	if t.IsVariadic() {
		fixedEnd--
	}

	// Only the trailing run of pointer parameters is optional.
	firstOptional := fixedEnd
	for firstOptional > start && t.In(firstOptional-1).Kind() == reflect.Pointer {
		firstOptional--
	}

	for i := start; i < fixedEnd; i++ {
		typ, err := e.typeFor(t.In(i))
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i-start, err)
		}
		kind := SlotRequired
		if i >= firstOptional {
			kind = SlotOptional
		}
		sig.slots = append(sig.slots, slot{kind: kind, typ: typ})
	}

	if t.IsVariadic() {
		intHelper, err := e.typeFor(reflect.TypeOf(int(0)))
		if err != nil {
			return nil, err
		}
		sig.slots = append(sig.slots,
			slot{kind: SlotVariadicCount, typ: intHelper},
			slot{kind: SlotVariadicTail, typ: &anyType{baseType: baseType{name: "any"}}},
		)
		sig.variadic = true
	}

	sig.minArgs = firstOptional - start
	if sig.variadic {
		sig.maxArgs = -1
	} else {
		sig.maxArgs = fixedEnd - start
	}

	ret, err := e.resultTypeForFunc(t)
	if err != nil {
		return nil, err
	}
	sig.ret = ret

	return sig, nil
}

func (e *engine) resultTypeForFunc(t reflect.Type) (registeredType, error) {
	numOut := t.NumOut()
	if numOut > 0 && t.Out(numOut-1) == errorType {
		numOut--
	}

	switch numOut {
	case 0:
		return &voidType{baseType: baseType{name: "void", kind: KindNoValue}}, nil
	case 1:
		ret, err := e.typeFor(t.Out(0))
		if err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
		return ret, nil
	default:
		return nil, invalidArgument("%s returns %d values, at most one besides error is supported", t.String(), t.NumOut())
	}
}

func (ft *funcType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	rv := reflect.ValueOf(o)
	if rv.Kind() != reflect.Func {
		return Value{}, invalidArgument("cannot box %T as %s", o, ft.name)
	}
	if rv.IsNil() {
		return e.host.Null(), nil
	}

	bm := &boundMethod{name: ft.name, fn: rv, sig: ft.sig}
	bm.invoke = e.craftInvokerFunction(ft.name, ft.sig, nil, bm.asNativeFunc(e))
	return e.host.Synthetic(KindMethod, bm), nil
}

func (ft *funcType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	if v == e.host.Null() || v == e.host.NoValue() {
		return reflect.Zero(ft.goType).Interface(), nil
	}

	if kind := e.host.KindOf(v); kind != KindMethod {
		return nil, invalidArgument("cannot convert %s handle to %s", kind, ft.name)
	}

	payload, err := e.host.PayloadOf(v)
	if err != nil {
		return nil, err
	}
	bm, ok := payload.(*boundMethod)
	if !ok {
		return nil, unexpected("method handle carries %T", payload)
	}

	if bm.fn.Type().AssignableTo(ft.goType) {
		return bm.fn.Interface(), nil
	}

	return bm.bridge(ctx, e, ft.goType), nil
}

func (ft *funcType) GoType() string {
	return ft.goType.String()
}

// boundMethod is the payload of a method handle: the underlying Go function
// plus its classified signature and the host-facing invoker built from it.
type boundMethod struct {
	name   string
	fn     reflect.Value
	sig    *Signature
	invoke publicSymbolFn
}

// asNativeFunc adapts the underlying Go function to the invoker's call
// shape: fixed arguments arrive already unboxed per the classified slots and
// a variadic tail arrives as the trailing (count, pack) pair, converted
// element by element here.
func (bm *boundMethod) asNativeFunc(e *engine) NativeFunc {
	t := bm.fn.Type()

	return func(ctx context.Context, this any, arguments ...any) (any, error) {
		if !t.IsVariadic() {
			return bm.call(ctx, arguments, nil)
		}

		// The invoker appends the (count, pack) pair last, after however many
		// fixed arguments survived optional truncation.
		if len(arguments) < 2 {
			return nil, unexpected("variadic invoker for %s called without the capture pair", bm.name)
		}
		pack, ok := arguments[len(arguments)-1].(ArgumentPack)
		if !ok {
			return nil, unexpected("variadic tail of %s carries %T", bm.name, arguments[len(arguments)-1])
		}

		elem := t.In(t.NumIn() - 1).Elem()
		tail := make([]any, len(pack))
		for i, hv := range pack {
			got, err := e.Unbox(ctx, hv, reflect.Zero(elem).Interface())
			if err != nil {
				return nil, fmt.Errorf("variadic argument %d of %s: %w", i, bm.name, err)
			}
			tail[i] = got
		}

		return bm.call(ctx, arguments[:len(arguments)-2], tail)
	}
}

// callNative invokes the underlying function with plain native arguments,
// the shape CallMethod and unboxed method values use. Arguments beyond the
// fixed parameters feed the variadic tail.
func (bm *boundMethod) callNative(ctx context.Context, arguments ...any) (any, error) {
	t := bm.fn.Type()
	fixed := bm.fixedParams()

	if len(arguments) <= fixed {
		return bm.call(ctx, arguments, nil)
	}
	if !t.IsVariadic() {
		return nil, invalidArgument("illegal number of arguments: %s called with %d argument(s), expected at most %d", bm.name, len(arguments), fixed)
	}
	return bm.call(ctx, arguments[:fixed], arguments[fixed:])
}

// fixedParams counts the parameters of the underlying function besides a
// leading context and the variadic slice.
func (bm *boundMethod) fixedParams() int {
	t := bm.fn.Type()
	n := t.NumIn()
	if n > 0 && t.In(0) == contextType {
		n--
	}
	if t.IsVariadic() {
		n--
	}
	return n
}

// call conforms the fixed arguments and the native variadic tail to the
// underlying function's parameters and invokes it.
func (bm *boundMethod) call(ctx context.Context, fixedArgs []any, tail []any) (any, error) {
	t := bm.fn.Type()
	in := make([]reflect.Value, 0, t.NumIn()+len(tail))
	if t.NumIn() > 0 && t.In(0) == contextType {
		in = append(in, reflect.ValueOf(ctx))
	}

	fixed := t.NumIn() - len(in)
	if t.IsVariadic() {
		fixed--
	}

	for i := 0; i < fixed; i++ {
		pt := t.In(len(in))
		if i >= len(fixedArgs) {
			// Absent optionals become their zero value, nil for pointers.
			in = append(in, reflect.Zero(pt))
			continue
		}
		av, err := conformValue(fixedArgs[i], pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, bm.name, err)
		}
		in = append(in, av)
	}

	if t.IsVariadic() {
		elem := t.In(t.NumIn() - 1).Elem()
		for i := range tail {
			av, err := conformValue(tail[i], elem)
			if err != nil {
				return nil, fmt.Errorf("variadic argument %d of %s: %w", i, bm.name, err)
			}
			in = append(in, av)
		}
	}

	return splitResults(bm.fn.Call(in))
}

// bridge builds a function of the requested Go type that routes through the
// host-facing invoker, so a method handle can be unboxed into any compatible
// function shape.
func (bm *boundMethod) bridge(ctx context.Context, e *engine, t reflect.Type) any {
	return reflect.MakeFunc(t, func(args []reflect.Value) []reflect.Value {
		callCtx := ctx
		start := 0
		if t.NumIn() > 0 && t.In(0) == contextType {
			callCtx = args[0].Interface().(context.Context)
			start = 1
		}

		boxed := make([]Value, 0, len(args)-start)
		var callErr error
		for _, arg := range flattenVariadic(t, args[start:]) {
			bv, err := e.Box(callCtx, arg.Interface())
			if err != nil {
				callErr = err
				break
			}
			boxed = append(boxed, bv)
		}

		var res Value
		if callErr == nil {
			res, callErr = bm.invoke(callCtx, e.host.Null(), boxed...)
		}

		return deliverResults(callCtx, e, t, res, callErr)
	}).Interface()
}

// flattenVariadic expands the final slice argument of a variadic function
// value into individual arguments. MakeFunc always hands the tail as a slice.
func flattenVariadic(t reflect.Type, args []reflect.Value) []reflect.Value {
	if !t.IsVariadic() || len(args) == 0 {
		return args
	}
	tail := args[len(args)-1]
	out := append([]reflect.Value{}, args[:len(args)-1]...)
	for i := 0; i < tail.Len(); i++ {
		out = append(out, tail.Index(i))
	}
	return out
}

func deliverResults(ctx context.Context, e *engine, t reflect.Type, res Value, callErr error) []reflect.Value {
	hasErr := t.NumOut() > 0 && t.Out(t.NumOut()-1) == errorType

	out := make([]reflect.Value, t.NumOut())
	for i := range out {
		out[i] = reflect.Zero(t.Out(i))
	}

	if callErr == nil && t.NumOut() > 0 && (!hasErr || t.NumOut() > 1) {
		native, err := e.Unbox(ctx, res, reflect.Zero(t.Out(0)).Interface())
		if err != nil {
			callErr = err
		} else if native != nil {
			rv, err := conformValue(native, t.Out(0))
			if err != nil {
				callErr = err
			} else {
				out[0] = rv
			}
		}
	}

	if callErr != nil {
		if !hasErr {
			panic(callErr)
		}
		out[len(out)-1] = reflect.ValueOf(callErr)
	}

	return out
}

// conformValue fits a native value into the given parameter type.
func conformValue(o any, pt reflect.Type) (reflect.Value, error) {
	if o == nil {
		return reflect.Zero(pt), nil
	}

	rv := reflect.ValueOf(o)
	if rv.Type().AssignableTo(pt) {
		return rv, nil
	}
	if rv.Type().ConvertibleTo(pt) {
		return rv.Convert(pt), nil
	}

	return reflect.Value{}, invalidArgument("cannot use %T as %s", o, pt.String())
}

func splitResults(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}

	last := out[len(out)-1]
	if last.Type() == errorType {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		out = out[:len(out)-1]
	}

	if len(out) == 0 {
		return nil, nil
	}
	return out[0].Interface(), nil
}

// Invoke calls a method handle with already-boxed arguments. This is the
// host-side entry for callables obtained through boxing or property access.
func (e *engine) Invoke(ctx context.Context, fn Value, this Value, arguments ...Value) (Value, error) {
	if kind := e.host.KindOf(fn); kind != KindMethod {
		return Value{}, illegalOperation("handle of kind %s is not invocable", kind)
	}

	payload, err := e.host.PayloadOf(fn)
	if err != nil {
		return Value{}, err
	}
	bm, ok := payload.(*boundMethod)
	if !ok {
		return Value{}, unexpected("method handle carries %T", payload)
	}

	return bm.invoke(ctx, this, arguments...)
}
