package dbgmodel

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestDbgModel(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "DbgModel Suite")
}

var ctx = context.Background()

type severity int32

type severityEnum struct{}

func (severityEnum) Type() any {
	return severity(0)
}

func (severityEnum) Values() map[string]any {
	return map[string]any{
		"info":    severity(1),
		"warning": severity(2),
		"error":   severity(3),
	}
}

type vector struct {
	X float64 `dbgmodel_property:"x"`
	Y float64 `dbgmodel_property:"y"`
}

func (v *vector) Length() float64 {
	l := v.X*v.X + v.Y*v.Y
	// Integer-friendly square root keeps the expectations exact.
	for i := float64(0); i*i <= l; i++ {
		if i*i == l {
			return i
		}
	}
	return l
}

func (v *vector) Scale(f float64) {
	v.X *= f
	v.Y *= f
}

func (v *vector) ToDisplayString(ctx context.Context) (string, error) {
	return fmt.Sprintf("(%v, %v)", v.X, v.Y), nil
}

type selfDetacher struct {
	binding *Binding
}

func (s *selfDetacher) Bomb() error {
	return s.binding.Detach()
}

type countdown struct {
	from int32
}

func (c *countdown) Sequence(ctx context.Context) (Cursor, error) {
	values := make([]int32, 0, c.from)
	for i := c.from; i > 0; i-- {
		values = append(values, i)
	}
	return SliceCursor(values)
}

type accumulator struct {
	total int32
}

func (a *accumulator) Add(values ...int32) int32 {
	for _, v := range values {
		a.total += v
	}
	return a.total
}

type dial struct {
	setting float64
}

func (d *dial) Reading() float64 {
	return d.setting
}

func (d *dial) SetReading(v float64) {
	d.setting = v
}

func (d *dial) Serial() string {
	return "D-1"
}

type flakyCursor struct {
	pos int
}

func (c *flakyCursor) Done() bool {
	return c.pos >= 3
}

func (c *flakyCursor) Value() (any, error) {
	if c.pos == 1 {
		return nil, errors.New("element read failure")
	}
	return int32(c.pos), nil
}

func (c *flakyCursor) Advance() error {
	c.pos++
	return nil
}

var _ = Describe("Intrinsic round-trips", func() {
	var e Engine

	BeforeEach(func() {
		e = CreateEngine(nil)
	})

	roundTrip := func(o any, sample any) any {
		v, err := e.Box(ctx, o)
		Expect(err).To(BeNil())
		back, err := e.Unbox(ctx, v, sample)
		Expect(err).To(BeNil())
		return back
	}

	It("keeps signed integers exact at the edges", func() {
		Expect(roundTrip(int8(-128), int8(0))).To(Equal(int8(-128)))
		Expect(roundTrip(int8(127), int8(0))).To(Equal(int8(127)))
		Expect(roundTrip(int16(-1), int16(0))).To(Equal(int16(-1)))
		Expect(roundTrip(int32(0), int32(0))).To(Equal(int32(0)))
		Expect(roundTrip(int32(-2147483648), int32(0))).To(Equal(int32(-2147483648)))
		Expect(roundTrip(int64(-9223372036854775808), int64(0))).To(Equal(int64(-9223372036854775808)))
		Expect(roundTrip(int(-42), int(0))).To(Equal(int(-42)))
	})

	It("keeps unsigned integers exact at the edges", func() {
		Expect(roundTrip(uint8(255), uint8(0))).To(Equal(uint8(255)))
		Expect(roundTrip(uint16(65535), uint16(0))).To(Equal(uint16(65535)))
		Expect(roundTrip(uint32(4294967295), uint32(0))).To(Equal(uint32(4294967295)))
		Expect(roundTrip(uint64(18446744073709551615), uint64(0))).To(Equal(uint64(18446744073709551615)))
	})

	It("keeps floats exact", func() {
		Expect(roundTrip(float32(1.5), float32(0))).To(Equal(float32(1.5)))
		Expect(roundTrip(float64(-2.25), float64(0))).To(Equal(float64(-2.25)))
	})

	It("keeps booleans", func() {
		Expect(roundTrip(true, false)).To(Equal(true))
		Expect(roundTrip(false, false)).To(Equal(false))
	})

	It("keeps strings including non-ASCII text", func() {
		Expect(roundTrip("héllo wörld", "")).To(Equal("héllo wörld"))
		Expect(roundTrip("", "")).To(Equal(""))
	})

	It("boxes byte slices as strings and back", func() {
		Expect(roundTrip([]byte("abc"), []byte(nil))).To(Equal([]byte("abc")))
	})

	It("round-trips named types over an intrinsic kind", func() {
		type port uint16
		Expect(roundTrip(port(443), port(0))).To(Equal(port(443)))
	})

	It("rejects unboxing a handle of the wrong kind", func() {
		v, err := e.Box(ctx, "not a number")
		Expect(err).To(BeNil())
		_, err = e.Unbox(ctx, v, int32(0))
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusInvalidArgument))
	})

	It("treats a nil pointer as the no-value handle", func() {
		v, err := e.Box(ctx, (*int32)(nil))
		Expect(err).To(BeNil())
		Expect(e.Host().KindOf(v)).To(Equal(KindNoValue))

		back, err := e.Unbox(ctx, v, (*int32)(nil))
		Expect(err).To(BeNil())
		Expect(back).To(Equal((*int32)(nil)))
	})

	It("round-trips a present optional through its pointee", func() {
		val := int32(7)
		v, err := e.Box(ctx, &val)
		Expect(err).To(BeNil())

		back, err := e.Unbox(ctx, v, (*int32)(nil))
		Expect(err).To(BeNil())
		Expect(*back.(*int32)).To(Equal(int32(7)))
	})
})

var _ = Describe("Enums", func() {
	var e Engine

	BeforeEach(func() {
		e = CreateEngine(nil)
		Expect(e.RegisterEnum("severity", severityEnum{})).To(BeNil())
	})

	It("round-trips registered enumerators", func() {
		v, err := e.Box(ctx, severity(2))
		Expect(err).To(BeNil())

		back, err := e.Unbox(ctx, v, severity(0))
		Expect(err).To(BeNil())
		Expect(back).To(Equal(severity(2)))
	})

	It("accepts the raw underlying integer when unboxing", func() {
		v, err := e.Box(ctx, int32(3))
		Expect(err).To(BeNil())

		back, err := e.Unbox(ctx, v, severity(0))
		Expect(err).To(BeNil())
		Expect(back).To(Equal(severity(3)))
	})

	It("unboxes unregistered enumerators into the declared type", func() {
		v, err := e.Box(ctx, severity(9))
		Expect(err).To(BeNil())

		back, err := e.Unbox(ctx, v, severity(0))
		Expect(err).To(BeNil())
		Expect(back).To(Equal(severity(9)))
	})

	It("rejects registering the same enum twice", func() {
		Expect(e.RegisterEnum("severity", severityEnum{})).ToNot(BeNil())
	})
})

var _ = Describe("Signatures and invocation", func() {
	var e Engine

	BeforeEach(func() {
		e = CreateEngine(nil)
	})

	It("rejects a required parameter after an optional one at declaration time", func() {
		_, err := e.NewSignature(nil, OptionalArg(int32(0)), Arg(int32(0)))
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusInvalidArgument))
	})

	It("rejects parameters after the variadic capture at declaration time", func() {
		_, err := e.NewSignature(nil, VariadicTail(), Arg(int32(0)))
		Expect(err).ToNot(BeNil())
	})

	It("rejects unsupported parameter types at declaration time", func() {
		_, err := e.NewSignature(nil, Arg(make(chan int)))
		Expect(err).ToNot(BeNil())
	})

	It("enforces the arity acceptance window", func() {
		sig, err := e.NewSignature("", Arg("name"), OptionalArg(int32(0)))
		Expect(err).To(BeNil())
		Expect(sig.MinArgs()).To(Equal(1))
		Expect(sig.MaxArgs()).To(Equal(2))

		Expect(e.ExposeFunction("greet", sig, func(ctx context.Context, this any, arguments ...any) (any, error) {
			name := arguments[0].(string)
			if len(arguments) == 2 {
				return fmt.Sprintf("%s x%d", name, arguments[1].(int32)), nil
			}
			return name, nil
		})).To(BeNil())

		_, err = e.CallPublicSymbol(ctx, "greet")
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusInvalidArgument))
		Expect(err.Error()).To(ContainSubstring("illegal number of arguments"))

		res, err := e.CallPublicSymbol(ctx, "greet", "ada")
		Expect(err).To(BeNil())
		Expect(res).To(Equal("ada"))

		res, err = e.CallPublicSymbol(ctx, "greet", "ada", int32(3))
		Expect(err).To(BeNil())
		Expect(res).To(Equal("ada x3"))

		_, err = e.CallPublicSymbol(ctx, "greet", "ada", int32(3), int32(4))
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusInvalidArgument))
	})

	It("delivers the variadic tail as a count and a pack", func() {
		sig, err := e.NewSignature(int32(0), Arg(int32(0)), VariadicTail())
		Expect(err).To(BeNil())
		Expect(sig.MinArgs()).To(Equal(1))
		Expect(sig.MaxArgs()).To(Equal(-1))

		var observedCount int
		Expect(e.ExposeFunction("sum", sig, func(callCtx context.Context, this any, arguments ...any) (any, error) {
			total := arguments[0].(int32)
			observedCount = arguments[1].(int)
			tail := arguments[2].(ArgumentPack)
			for _, v := range tail {
				n, err := e.Unbox(callCtx, v, int32(0))
				if err != nil {
					return nil, err
				}
				total += n.(int32)
			}
			return total, nil
		})).To(BeNil())

		res, err := e.CallPublicSymbol(ctx, "sum", int32(1))
		Expect(err).To(BeNil())
		Expect(res).To(Equal(int32(1)))
		Expect(observedCount).To(Equal(0))

		res, err = e.CallPublicSymbol(ctx, "sum", int32(1), int32(2), int32(3))
		Expect(err).To(BeNil())
		Expect(res).To(Equal(int32(6)))
		Expect(observedCount).To(Equal(2))
	})

	It("routes overloads on the argument count", func() {
		one, err := e.NewSignature(int32(0), Arg(int32(0)))
		Expect(err).To(BeNil())
		two, err := e.NewSignature(int32(0), Arg(int32(0)), Arg(int32(0)))
		Expect(err).To(BeNil())

		Expect(e.ExposeFunction("pick", one, func(ctx context.Context, this any, arguments ...any) (any, error) {
			return arguments[0].(int32), nil
		})).To(BeNil())
		Expect(e.ExposeFunction("pick", two, func(ctx context.Context, this any, arguments ...any) (any, error) {
			return arguments[0].(int32) + arguments[1].(int32), nil
		})).To(BeNil())

		res, err := e.CallPublicSymbol(ctx, "pick", int32(5))
		Expect(err).To(BeNil())
		Expect(res).To(Equal(int32(5)))

		res, err = e.CallPublicSymbol(ctx, "pick", int32(5), int32(6))
		Expect(err).To(BeNil())
		Expect(res).To(Equal(int32(11)))

		_, err = e.CallPublicSymbol(ctx, "pick", int32(5), int32(6), int32(7))
		Expect(err).ToNot(BeNil())
		Expect(err.Error()).To(ContainSubstring("invalid number of arguments"))
	})

	It("converts every failure at the dispatch boundary", func() {
		sig, err := e.NewSignature(nil)
		Expect(err).To(BeNil())
		Expect(e.ExposeFunction("boom", sig, func(ctx context.Context, this any, arguments ...any) (any, error) {
			return nil, errors.New("native trouble")
		})).To(BeNil())

		_, status, errObj := e.DispatchSymbol(ctx, "boom", e.Host().Null(), nil)
		Expect(status).To(Equal(StatusPassthrough))

		payload, err := e.Host().PayloadOf(errObj)
		Expect(err).To(BeNil())
		se, ok := payload.(*StatusError)
		Expect(ok).To(BeTrue())
		Expect(se.Message).To(ContainSubstring("native trouble"))

		_, status, errObj = e.DispatchSymbol(ctx, "missing", e.Host().Null(), nil)
		Expect(status).To(Equal(StatusNotFound))
		Expect(errObj.Valid()).To(BeTrue())
	})

	It("exposes constants", func() {
		Expect(e.RegisterConstant("MaxDepth", int32(64))).To(BeNil())
		v, err := e.GetConstant("MaxDepth")
		Expect(err).To(BeNil())

		val, err := e.ToGo(ctx, v)
		Expect(err).To(BeNil())
		Expect(val).To(Equal(int32(64)))

		_, err = e.GetConstant("Unknown")
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusNotFound))
	})
})

var _ = Describe("Classes and lifetime", func() {
	var e Engine

	BeforeEach(func() {
		e = CreateEngine(nil)
		Expect(e.RegisterClass("Vector", (*vector)(nil))).To(BeNil())
	})

	It("invokes methods with the verbatim and lowerCamel name", func() {
		b, err := e.BindInstance(ctx, "Vector", &vector{X: 3, Y: 4})
		Expect(err).To(BeNil())

		res, err := b.CallMethod(ctx, "Length")
		Expect(err).To(BeNil())
		Expect(res).To(Equal(float64(5)))

		res, err = b.CallMethod(ctx, "length")
		Expect(err).To(BeNil())
		Expect(res).To(Equal(float64(5)))

		_, err = b.CallMethod(ctx, "missing")
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusNotFound))
	})

	It("reads and writes tagged properties", func() {
		b, err := e.BindInstance(ctx, "Vector", &vector{X: 3, Y: 4})
		Expect(err).To(BeNil())

		x, err := b.GetProperty(ctx, "x")
		Expect(err).To(BeNil())
		Expect(x).To(Equal(float64(3)))

		Expect(b.SetProperty(ctx, "y", float64(8))).To(BeNil())
		y, err := b.GetProperty(ctx, "y")
		Expect(err).To(BeNil())
		Expect(y).To(Equal(float64(8)))

		Expect(b.PropertyNames()).To(Equal([]string{"x", "y"}))
	})

	It("exposes methods as invocable values on the handle", func() {
		native := &vector{X: 3, Y: 4}
		b, err := e.BindInstance(ctx, "Vector", native)
		Expect(err).To(BeNil())

		mv, err := e.Host().GetKey(b.Handle(), "Scale")
		Expect(err).To(BeNil())

		factor, err := e.Box(ctx, float64(2))
		Expect(err).To(BeNil())

		_, err = e.Invoke(ctx, mv, b.Handle(), factor)
		Expect(err).To(BeNil())
		Expect(native.X).To(Equal(float64(6)))
		Expect(native.Y).To(Equal(float64(8)))
	})

	It("binds the same instance to the same projection", func() {
		native := &vector{X: 1, Y: 2}
		first, err := e.BindInstance(ctx, "Vector", native)
		Expect(err).To(BeNil())
		second, err := e.BindInstance(ctx, "Vector", native)
		Expect(err).To(BeNil())
		Expect(second).To(BeIdenticalTo(first))

		boxed, err := e.Box(ctx, native)
		Expect(err).To(BeNil())
		Expect(boxed).To(Equal(first.Handle()))
	})

	It("reports detachment consistently on every surviving path", func() {
		b, err := e.BindInstance(ctx, "Vector", &vector{X: 3, Y: 4})
		Expect(err).To(BeNil())

		mv, err := e.Host().GetKey(b.Handle(), "Length")
		Expect(err).To(BeNil())

		Expect(b.Detach()).To(BeNil())
		Expect(b.Detached()).To(BeTrue())

		_, err = b.CallMethod(ctx, "Length")
		Expect(AsStatus(err).Code).To(Equal(StatusDetachedObject))

		_, err = b.GetProperty(ctx, "x")
		Expect(AsStatus(err).Code).To(Equal(StatusDetachedObject))

		_, err = e.Invoke(ctx, mv, b.Handle())
		Expect(AsStatus(err).Code).To(Equal(StatusDetachedObject))

		// The projection itself stays a valid handle.
		Expect(e.Host().KindOf(b.Handle())).To(Equal(KindInterface))

		Expect(AsStatus(b.Detach()).Code).To(Equal(StatusDetachedObject))
	})

	It("refuses teardown from inside a dispatched call", func() {
		Expect(e.RegisterClass("SelfDetacher", (*selfDetacher)(nil))).To(BeNil())

		native := &selfDetacher{}
		b, err := e.BindInstance(ctx, "SelfDetacher", native)
		Expect(err).To(BeNil())
		native.binding = b

		_, err = b.CallMethod(ctx, "Bomb")
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusIllegalOperation))

		// The refused teardown leaves the binding fully usable.
		Expect(b.Detached()).To(BeFalse())
		Expect(b.Detach()).To(BeNil())
	})

	It("rejects double class registration", func() {
		Expect(e.RegisterClass("Vector", (*vector)(nil))).ToNot(BeNil())
	})

	It("constructs instances through registered constructors", func() {
		sig, err := e.NewSignature((*vector)(nil), Arg(float64(0)), Arg(float64(0)))
		Expect(err).To(BeNil())
		Expect(e.RegisterClassConstructor("Vector", sig, func(ctx context.Context, this any, arguments ...any) (any, error) {
			return &vector{X: arguments[0].(float64), Y: arguments[1].(float64)}, nil
		})).To(BeNil())

		b, err := e.ConstructClass(ctx, "Vector", float64(3), float64(4))
		Expect(err).To(BeNil())

		res, err := b.CallMethod(ctx, "Length")
		Expect(err).To(BeNil())
		Expect(res).To(Equal(float64(5)))

		_, err = e.ConstructClass(ctx, "Vector", float64(1))
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusInvalidArgument))
	})

	It("dispatches variadic methods with and without a tail", func() {
		Expect(e.RegisterClass("Accumulator", (*accumulator)(nil))).To(BeNil())
		native := &accumulator{}
		b, err := e.BindInstance(ctx, "Accumulator", native)
		Expect(err).To(BeNil())

		res, err := b.CallMethod(ctx, "Add")
		Expect(err).To(BeNil())
		Expect(res).To(Equal(int32(0)))

		res, err = b.CallMethod(ctx, "Add", int32(1), int32(2))
		Expect(err).To(BeNil())
		Expect(res).To(Equal(int32(3)))

		mv, err := e.Host().GetKey(b.Handle(), "Add")
		Expect(err).To(BeNil())
		four, err := e.Box(ctx, int32(4))
		Expect(err).To(BeNil())

		got, err := e.Invoke(ctx, mv, b.Handle(), four)
		Expect(err).To(BeNil())
		sum, err := e.ToGo(ctx, got)
		Expect(err).To(BeNil())
		Expect(sum).To(Equal(int32(7)))
	})

	It("projects properties as accessors on the handle", func() {
		native := &vector{X: 3, Y: 4}
		b, err := e.BindInstance(ctx, "Vector", native)
		Expect(err).To(BeNil())

		pv, err := e.Host().GetKey(b.Handle(), "x")
		Expect(err).To(BeNil())
		Expect(e.Host().KindOf(pv)).To(Equal(KindPropertyAccessor))

		payload, err := e.Host().PayloadOf(pv)
		Expect(err).To(BeNil())
		pa, ok := payload.(*PropertyAccessor)
		Expect(ok).To(BeTrue())
		Expect(pa.Name()).To(Equal("x"))

		got, err := pa.Get(ctx)
		Expect(err).To(BeNil())
		x, err := e.ToGo(ctx, got)
		Expect(err).To(BeNil())
		Expect(x).To(Equal(float64(3)))

		boxed, err := e.Box(ctx, float64(7))
		Expect(err).To(BeNil())
		Expect(pa.Set(ctx, boxed)).To(BeNil())
		Expect(native.X).To(Equal(float64(7)))

		// Unboxing the accessor value reads through it.
		cur, err := e.ToGo(ctx, pv)
		Expect(err).To(BeNil())
		Expect(cur).To(Equal(float64(7)))

		Expect(b.Detach()).To(BeNil())
		_, err = pa.Get(ctx)
		Expect(AsStatus(err).Code).To(Equal(StatusDetachedObject))
	})

	It("supports getter and setter backed properties", func() {
		Expect(e.RegisterClass("Dial", (*dial)(nil))).To(BeNil())
		Expect(e.RegisterClassProperty("Dial", "reading", "Reading", "SetReading")).To(BeNil())
		Expect(e.RegisterClassProperty("Dial", "serial", "Serial", "")).To(BeNil())

		native := &dial{setting: 1.5}
		b, err := e.BindInstance(ctx, "Dial", native)
		Expect(err).To(BeNil())

		got, err := b.GetProperty(ctx, "reading")
		Expect(err).To(BeNil())
		Expect(got).To(Equal(float64(1.5)))

		Expect(b.SetProperty(ctx, "reading", float64(2.5))).To(BeNil())
		Expect(native.setting).To(Equal(float64(2.5)))

		err = b.SetProperty(ctx, "serial", "D-2")
		Expect(AsStatus(err).Code).To(Equal(StatusNotImplemented))

		Expect(b.PropertyNames()).To(Equal([]string{"reading", "serial"}))

		// The accessor projection covers registered properties too.
		pv, err := e.Host().GetKey(b.Handle(), "serial")
		Expect(err).To(BeNil())
		serial, err := e.ToGo(ctx, pv)
		Expect(err).To(BeNil())
		Expect(serial).To(Equal("D-1"))
	})

	It("validates getter and setter registrations", func() {
		Expect(e.RegisterClassProperty("Unknown", "p", "Get", "")).ToNot(BeNil())

		err := e.RegisterClassProperty("Vector", "len", "Missing", "")
		Expect(AsStatus(err).Code).To(Equal(StatusNotFound))

		err = e.RegisterClassProperty("Vector", "x", "Length", "")
		Expect(AsStatus(err).Code).To(Equal(StatusIllegalOperation))

		err = e.RegisterClassProperty("Vector", "scaled", "Scale", "")
		Expect(AsStatus(err).Code).To(Equal(StatusInvalidArgument))
	})
})

var _ = Describe("Iteration and indexing", func() {
	var e Engine

	BeforeEach(func() {
		e = CreateEngine(nil)
	})

	stepAll := func(v Value) ([]int32, [][]int) {
		state, err := e.Traverse(ctx, v)
		Expect(err).To(BeNil())

		values := []int32{}
		indices := [][]int{}
		for {
			element, idx, done, err := state.Step(ctx)
			Expect(err).To(BeNil())
			if done {
				return values, indices
			}
			native, err := e.ToGo(ctx, element)
			Expect(err).To(BeNil())
			values = append(values, native.(int32))
			indices = append(indices, idx)
		}
	}

	It("walks an owned container in order with synthetic indices", func() {
		v, err := e.Box(ctx, []int32{10, 20, 30})
		Expect(err).To(BeNil())

		values, indices := stepAll(v)
		Expect(values).To(Equal([]int32{10, 20, 30}))
		Expect(indices).To(Equal([][]int{{0}, {1}, {2}}))
	})

	It("reproduces the full sequence on every new traversal", func() {
		v, err := e.Box(ctx, []int32{10, 20, 30})
		Expect(err).To(BeNil())

		first, _ := stepAll(v)
		second, _ := stepAll(v)
		Expect(second).To(Equal(first))
	})

	It("keeps reporting the end after exhaustion", func() {
		v, err := e.Box(ctx, []int32{10})
		Expect(err).To(BeNil())

		state, err := e.Traverse(ctx, v)
		Expect(err).To(BeNil())

		_, _, done, err := state.Step(ctx)
		Expect(err).To(BeNil())
		Expect(done).To(BeFalse())

		for i := 0; i < 3; i++ {
			_, _, done, err = state.Step(ctx)
			Expect(err).To(BeNil())
			Expect(done).To(BeTrue())
		}
	})

	It("bounds-checks direct lookup and writes through the setter", func() {
		v, err := e.Box(ctx, []int32{10, 20, 30})
		Expect(err).To(BeNil())

		element, err := e.IndexGet(ctx, v, 1)
		Expect(err).To(BeNil())
		native, err := e.ToGo(ctx, element)
		Expect(err).To(BeNil())
		Expect(native).To(Equal(int32(20)))

		_, err = e.IndexGet(ctx, v, 3)
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusInvalidArgument))

		replacement, err := e.Box(ctx, int32(25))
		Expect(err).To(BeNil())
		Expect(e.IndexSet(ctx, v, 1, replacement)).To(BeNil())

		back, err := e.Unbox(ctx, v, []int32(nil))
		Expect(err).To(BeNil())
		Expect(back).To(Equal([]int32{10, 25, 30}))
	})

	It("owns a private copy of the boxed container", func() {
		source := []int32{10, 20, 30}
		v, err := e.Box(ctx, source)
		Expect(err).To(BeNil())

		replacement, err := e.Box(ctx, int32(99))
		Expect(err).To(BeNil())
		Expect(e.IndexSet(ctx, v, 0, replacement)).To(BeNil())

		Expect(source).To(Equal([]int32{10, 20, 30}))
	})

	It("rejects write-through without a setter projection", func() {
		v, err := e.Box(ctx, &countdown{from: 3})
		Expect(err).To(BeNil())

		replacement, err := e.Box(ctx, int32(1))
		Expect(err).To(BeNil())
		err = e.IndexSet(ctx, v, 0, replacement)
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusNotImplemented))
	})

	It("boxes sequence providers and walks their traversal", func() {
		v, err := e.Box(ctx, &countdown{from: 3})
		Expect(err).To(BeNil())

		values, _ := stepAll(v)
		Expect(values).To(Equal([]int32{3, 2, 1}))

		back, err := e.Unbox(ctx, v, (*countdown)(nil))
		Expect(err).To(BeNil())
		Expect(back.(*countdown).from).To(Equal(int32(3)))
	})

	It("keeps a failed traversal failed with the identical failure", func() {
		v, err := e.NewSequenceValue(func(ctx context.Context) (Cursor, error) {
			return &flakyCursor{}, nil
		}, nil, nil, nil, nil)
		Expect(err).To(BeNil())

		state, err := e.Traverse(ctx, v)
		Expect(err).To(BeNil())

		_, _, done, err := state.Step(ctx)
		Expect(err).To(BeNil())
		Expect(done).To(BeFalse())

		_, _, _, firstErr := state.Step(ctx)
		Expect(firstErr).ToNot(BeNil())

		_, _, _, secondErr := state.Step(ctx)
		Expect(secondErr).To(BeIdenticalTo(firstErr))
	})

	It("reports traversal detachment on every later step", func() {
		flag := NewLifetimeFlag()
		data := []int32{1, 2, 3}
		v, err := e.NewSequenceValue(func(ctx context.Context) (Cursor, error) {
			return SliceCursor(data)
		}, nil, nil, flag, nil)
		Expect(err).To(BeNil())

		state, err := e.Traverse(ctx, v)
		Expect(err).To(BeNil())

		_, _, _, err = state.Step(ctx)
		Expect(err).To(BeNil())

		flag.Clear()

		_, _, _, err = state.Step(ctx)
		Expect(AsStatus(err).Code).To(Equal(StatusDetachedObject))

		_, err = e.Traverse(ctx, v)
		Expect(AsStatus(err).Code).To(Equal(StatusDetachedObject))
	})
})

var _ = Describe("Strided views", func() {
	var e Engine

	BeforeEach(func() {
		e = CreateEngine(&EngineConfig{MemorySize: 4096})
	})

	It("reads and writes elements by address arithmetic", func() {
		view, err := e.NewStridedView(16, 8, 4, WireU32, nil)
		Expect(err).To(BeNil())

		Expect(view.WriteAt(0, uint32(7))).To(BeNil())
		Expect(view.WriteAt(3, uint32(9))).To(BeNil())

		got, err := view.ReadAt(0)
		Expect(err).To(BeNil())
		Expect(got).To(Equal(uint32(7)))

		got, err = view.ReadAt(3)
		Expect(err).To(BeNil())
		Expect(got).To(Equal(uint32(9)))

		_, err = view.ReadAt(4)
		Expect(AsStatus(err).Code).To(Equal(StatusInvalidArgument))
	})

	It("rejects windows that escape the address space", func() {
		_, err := e.NewStridedView(4090, 4, 4, WireU32, nil)
		Expect(err).ToNot(BeNil())
		Expect(AsStatus(err).Code).To(Equal(StatusInvalidArgument))
	})

	It("projects as an indexable, iterable container", func() {
		view, err := e.NewStridedView(0, 4, 3, WireI32, nil)
		Expect(err).To(BeNil())
		for i := 0; i < 3; i++ {
			Expect(view.WriteAt(i, int32(i*10))).To(BeNil())
		}

		v, err := e.NewStridedValue(view)
		Expect(err).To(BeNil())

		element, err := e.IndexGet(ctx, v, 2)
		Expect(err).To(BeNil())
		native, err := e.ToGo(ctx, element)
		Expect(err).To(BeNil())
		Expect(native).To(Equal(int32(20)))

		replacement, err := e.Box(ctx, int32(-5))
		Expect(err).To(BeNil())
		Expect(e.IndexSet(ctx, v, 1, replacement)).To(BeNil())

		got, err := view.ReadAt(1)
		Expect(err).To(BeNil())
		Expect(got).To(Equal(int32(-5)))
	})

	It("assigns through key references via the host", func() {
		view, err := e.NewStridedView(64, 4, 2, WireU32, nil)
		Expect(err).To(BeNil())

		ref, err := view.RefAt(1)
		Expect(err).To(BeNil())

		src, err := e.Box(ctx, uint32(99))
		Expect(err).To(BeNil())
		Expect(e.Host().Assign(ref, src)).To(BeNil())

		got, err := view.ReadAt(1)
		Expect(err).To(BeNil())
		Expect(got).To(Equal(uint32(99)))
	})

	It("refuses dereferences after the backing lifetime ends", func() {
		flag := NewLifetimeFlag()
		view, err := e.NewStridedView(0, 4, 2, WireU32, flag)
		Expect(err).To(BeNil())

		flag.Clear()
		_, err = view.ReadAt(0)
		Expect(AsStatus(err).Code).To(Equal(StatusDetachedObject))
	})
})

var _ = Describe("Concepts", func() {
	var e Engine

	BeforeEach(func() {
		e = CreateEngine(nil)
		Expect(e.RegisterClass("Vector", (*vector)(nil))).To(BeNil())
	})

	It("routes display string conversion through the native instance", func() {
		b, err := e.BindInstance(ctx, "Vector", &vector{X: 3, Y: 4})
		Expect(err).To(BeNil())

		res, err := b.CallMethod(ctx, "ToDisplayString")
		Expect(err).To(BeNil())
		Expect(res).To(Equal("(3, 4)"))
	})

	It("counts live handles past the reserved ones", func() {
		before := e.CountLiveHandles()

		v, err := e.Box(ctx, int32(5))
		Expect(err).To(BeNil())
		Expect(e.CountLiveHandles()).To(Equal(before + 1))

		Expect(e.Host().Decref(v)).To(BeNil())
		Expect(e.CountLiveHandles()).To(Equal(before))
	})
})
