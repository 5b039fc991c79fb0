package dbgmodel

import (
	"context"
	"fmt"
	"reflect"
)

// ArgumentPack is the fixed-length dynamic argument array of one call. It is
// ephemeral; packs are never retained past the call they belong to.
type ArgumentPack []Value

type SlotKind uint8

const (
	SlotRequired SlotKind = iota
	SlotOptional
	// A variadic capture is a trailing two-slot pair: the remaining argument
	// count and a zero-copy view into the tail of the pack.
	SlotVariadicCount
	SlotVariadicTail
)

type slot struct {
	kind SlotKind
	typ  registeredType
}

// Param declares one parameter of a native signature.
type Param struct {
	kind     SlotKind
	sample   any
	variadic bool
}

// Arg declares a required parameter of the sample's type.
func Arg(sample any) Param {
	return Param{kind: SlotRequired, sample: sample}
}

// OptionalArg declares an optional parameter of the sample's type. Optional
// parameters may only be followed by more optionals or a single trailing
// variadic capture.
func OptionalArg(sample any) Param {
	return Param{kind: SlotOptional, sample: sample}
}

// VariadicTail declares the trailing variadic capture pair. The native
// target receives the remaining count as an int and the unconverted tail as
// an ArgumentPack.
func VariadicTail() Param {
	return Param{variadic: true}
}

// Signature is the classification of a native parameter list, computed once
// when the binding is declared and consulted on every call.
type Signature struct {
	slots    []slot
	ret      registeredType
	minArgs  int
	maxArgs  int // -1 means unbounded
	variadic bool
}

func (s *Signature) MinArgs() int {
	return s.minArgs
}

func (s *Signature) MaxArgs() int {
	return s.maxArgs
}

func (s *Signature) fixedArity() bool {
	return s.maxArgs == s.minArgs
}

// base returns the number of positional (non variadic) slots.
func (s *Signature) base() int {
	if s.variadic {
		return len(s.slots) - 2
	}
	return len(s.slots)
}

// NewSignature classifies a parameter list. Ordering violations are
// configuration errors and surface here, at declaration time, never at call
// time.
func (e *engine) NewSignature(result any, params ...Param) (*Signature, error) {
	sig := &Signature{maxArgs: 0}

	if result == nil {
		sig.ret = &voidType{baseType: baseType{name: "void", kind: KindNoValue}}
	} else {
		ret, err := e.typeFor(typeOfSample(result))
		if err != nil {
			return nil, fmt.Errorf("could not classify result: %w", err)
		}
		sig.ret = ret
	}

	firstOptional := -1
	for i := range params {
		if sig.variadic {
			return nil, invalidArgument("parameter %d follows the variadic capture", i)
		}

		if params[i].variadic {
			intHelper, err := e.typeFor(typeOfSample(int(0)))
			if err != nil {
				return nil, err
			}
			sig.slots = append(sig.slots,
				slot{kind: SlotVariadicCount, typ: intHelper},
				slot{kind: SlotVariadicTail, typ: &anyType{baseType: baseType{name: "any"}}},
			)
			sig.variadic = true
			continue
		}

		typ, err := e.typeFor(typeOfSample(params[i].sample))
		if err != nil {
			return nil, fmt.Errorf("could not classify parameter %d: %w", i, err)
		}

		switch params[i].kind {
		case SlotRequired:
			if firstOptional != -1 {
				return nil, invalidArgument("required parameter %d follows optional parameter %d", i, firstOptional)
			}
		case SlotOptional:
			if firstOptional == -1 {
				firstOptional = i
			}
		default:
			return nil, invalidArgument("parameter %d has slot kind %d", i, params[i].kind)
		}

		sig.slots = append(sig.slots, slot{kind: params[i].kind, typ: typ})
	}

	total := len(sig.slots)
	switch {
	case firstOptional != -1:
		sig.minArgs = firstOptional
	case sig.variadic:
		sig.minArgs = total - 2
	default:
		sig.minArgs = total
	}

	if sig.variadic {
		sig.maxArgs = -1
	} else {
		sig.maxArgs = total
	}

	return sig, nil
}

// craftInvokerFunction wires a classified signature to a native call target.
// The returned function validates arity, unpacks each slot, invokes the
// target with the receiver prepended and boxes the result. Failures cross
// back converted at the dispatch boundary, never raw.
func (e *engine) craftInvokerFunction(humanName string, sig *Signature, flag *LifetimeFlag, fn NativeFunc) publicSymbolFn {
	guard := lifetimeGuard{flag: flag, name: humanName}
	base := sig.base()

	return func(ctx context.Context, this Value, arguments ...Value) (Value, error) {
		if len(arguments) < sig.minArgs || (sig.maxArgs >= 0 && len(arguments) > sig.maxArgs) {
			expected := fmt.Sprintf("%d", sig.minArgs)
			if sig.maxArgs < 0 {
				expected = fmt.Sprintf("at least %d", sig.minArgs)
			} else if sig.maxArgs != sig.minArgs {
				expected = fmt.Sprintf("%d to %d", sig.minArgs, sig.maxArgs)
			}
			return Value{}, invalidArgument("illegal number of arguments: function %s called with %d argument(s), expected %s", humanName, len(arguments), expected)
		}

		if err := guard.check(); err != nil {
			return Value{}, err
		}

		thisNative, err := e.ToGo(ctx, this)
		if err != nil {
			return Value{}, fmt.Errorf("could not resolve receiver of %s: %w", humanName, err)
		}

		callArgs := make([]any, 0, len(sig.slots))
		for i := 0; i < base; i++ {
			if i >= len(arguments) {
				// An absent optional slot stays absent.
				break
			}
			if sig.slots[i].kind == SlotOptional && e.host.KindOf(arguments[i]) == KindNoValue {
				// An explicit no-value in an optional slot counts as absent,
				// so callers can always pass a full argument list.
				break
			}

			arg, err := sig.slots[i].typ.Unbox(ctx, e, arguments[i])
			if err != nil {
				return Value{}, fmt.Errorf("could not convert argument %d (%s) of %s: %w", i, sig.slots[i].typ.Name(), humanName, err)
			}
			callArgs = append(callArgs, arg)
		}

		if sig.variadic {
			// With absent optionals the argument list can stop short of the
			// positional slots; the tail is then empty.
			tail := ArgumentPack{}
			if len(arguments) > base {
				tail = ArgumentPack(arguments[base:])
			}
			callArgs = append(callArgs, len(tail), tail)
		}

		res, err := fn(ctx, thisNative, callArgs...)
		if err != nil {
			return Value{}, err
		}

		if res == nil {
			return e.host.NoValue(), nil
		}

		boxed, err := sig.ret.Box(ctx, e, res)
		if err != nil {
			return Value{}, fmt.Errorf("could not convert return value (%s) of %s: %w", sig.ret.Name(), humanName, err)
		}

		return boxed, nil
	}
}

func typeOfSample(sample any) reflect.Type {
	return reflect.TypeOf(sample)
}
