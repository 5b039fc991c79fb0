package dbgmodel

import (
	"context"
	"fmt"
	"reflect"
)

// Cursor is one traversal over a native sequence, from begin to end.
type Cursor interface {
	Done() bool
	Value() (any, error)
	Advance() error
}

// RandomAccessCursor additionally supports direct positioning, which is what
// enables index lookup and synthetic linear indices.
type RandomAccessCursor interface {
	Cursor
	Len() int
	At(index int) (any, error)
}

// IndexedElement is a sequence element that carries its own, possibly
// multi-dimensional, logical indices. These are surfaced directly instead of
// a synthetic offset.
type IndexedElement interface {
	Indices() []int
	Unwrap() any
}

// TraversalFactory produces a fresh begin/end cursor pair per request. The
// host iteration protocol requires repeated requests to reproduce the full
// logical sequence, so a single consumable iterator is not enough.
type TraversalFactory func(ctx context.Context) (Cursor, error)

// SequenceProvider is the structural capability test of the boxing strategy:
// anything exposing a traversal boxes as an iterable container.
type SequenceProvider interface {
	Sequence(ctx context.Context) (Cursor, error)
}

// Projection maps the current cursor value before it is boxed.
type Projection func(ctx context.Context, element any) (any, error)

// SetterProjection performs write-through at an index. Without one, indexed
// assignment is rejected as not implemented.
type SetterProjection func(ctx context.Context, index int, element any) error

// sequenceAdapter bridges one native sequence to the host iteration and
// indexing protocol. All paths re-check the lifetime guard before touching
// the native sequence.
type sequenceAdapter struct {
	engine  *engine
	factory TraversalFactory
	project Projection
	setter  SetterProjection
	guard   lifetimeGuard
	// source is the native value this adapter was built from, kept so the
	// container can unbox back to it.
	source any
}

func (sa *sequenceAdapter) projectElement(ctx context.Context, element any) (any, error) {
	if sa.project == nil {
		return element, nil
	}
	return sa.project(ctx, element)
}

// NewTraversal starts one independent traversal. Each call re-acquires the
// native sequence through the factory.
func (sa *sequenceAdapter) NewTraversal(ctx context.Context) (*IterationState, error) {
	if err := sa.guard.check(); err != nil {
		return nil, err
	}

	cursor, err := sa.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not acquire traversal: %w", err)
	}

	return &IterationState{adapter: sa, cursor: cursor}, nil
}

func (sa *sequenceAdapter) randomAccess(ctx context.Context) (RandomAccessCursor, error) {
	if err := sa.guard.check(); err != nil {
		return nil, err
	}

	cursor, err := sa.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not acquire traversal: %w", err)
	}

	rac, ok := cursor.(RandomAccessCursor)
	if !ok {
		return nil, illegalOperation("sequence does not support random access")
	}

	return rac, nil
}

// GetAt is direct index lookup, bounds-checked against the distance between
// the start and end cursors.
func (sa *sequenceAdapter) GetAt(ctx context.Context, index int) (Value, error) {
	rac, err := sa.randomAccess(ctx)
	if err != nil {
		return Value{}, err
	}

	if index < 0 || index >= rac.Len() {
		return Value{}, invalidArgument("index %d out of range [0, %d)", index, rac.Len())
	}

	element, err := rac.At(index)
	if err != nil {
		return Value{}, err
	}

	projected, err := sa.projectElement(ctx, element)
	if err != nil {
		return Value{}, err
	}

	return sa.engine.Box(ctx, projected)
}

func (sa *sequenceAdapter) SetAt(ctx context.Context, index int, v Value) error {
	if sa.setter == nil {
		return notImplemented("sequence does not support write-through at an index")
	}

	rac, err := sa.randomAccess(ctx)
	if err != nil {
		return err
	}

	if index < 0 || index >= rac.Len() {
		return invalidArgument("index %d out of range [0, %d)", index, rac.Len())
	}

	element, err := sa.engine.ToGo(ctx, v)
	if err != nil {
		return err
	}

	return sa.setter(ctx, index, element)
}

// IterationState is one in-flight traversal: a cursor plus a sticky failure
// slot. Once a step fails, every later step re-raises the identical failure;
// once the end is reached, every later step reports the end again. Steps on
// one state must come from a single logical caller.
type IterationState struct {
	adapter   *sequenceAdapter
	cursor    Cursor
	offset    int
	exhausted bool
	failure   error
}

func (s *IterationState) fail(err error) error {
	s.failure = err
	return err
}

// Step produces the next element, its logical indices (nil when the cursor
// cannot report any) and whether the traversal has ended.
func (s *IterationState) Step(ctx context.Context) (Value, []int, bool, error) {
	if s.failure != nil {
		return Value{}, nil, false, s.failure
	}
	if s.exhausted {
		return s.adapter.engine.host.NoValue(), nil, true, nil
	}

	if err := s.adapter.guard.check(); err != nil {
		return Value{}, nil, false, s.fail(err)
	}

	if s.cursor.Done() {
		s.exhausted = true
		return s.adapter.engine.host.NoValue(), nil, true, nil
	}

	element, err := s.cursor.Value()
	if err != nil {
		if IsEndOfSequence(err) {
			// Running off the end during enumeration is the benign way of
			// signalling exhaustion, not a failure.
			s.exhausted = true
			return s.adapter.engine.host.NoValue(), nil, true, nil
		}
		return Value{}, nil, false, s.fail(err)
	}

	var indices []int
	if indexed, ok := element.(IndexedElement); ok {
		indices = indexed.Indices()
		element = indexed.Unwrap()
	} else if _, ok := s.cursor.(RandomAccessCursor); ok {
		// Synthetic linear index: offset from the start cursor.
		indices = []int{s.offset}
	}

	projected, err := s.adapter.projectElement(ctx, element)
	if err != nil {
		return Value{}, nil, false, s.fail(err)
	}

	boxed, err := s.adapter.engine.Box(ctx, projected)
	if err != nil {
		return Value{}, nil, false, s.fail(err)
	}

	if err := s.cursor.Advance(); err != nil && !IsEndOfSequence(err) {
		return Value{}, nil, false, s.fail(err)
	}
	s.offset++

	return boxed, indices, false, nil
}

// sliceCursor traverses a Go slice or array value. It is the default cursor
// for owned containers and is random access.
type sliceCursor struct {
	v   reflect.Value
	pos int
}

// SliceCursor returns a random access cursor over a slice or array.
func SliceCursor(sequence any) (Cursor, error) {
	rv := reflect.ValueOf(sequence)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, invalidArgument("sequence must be a slice or array, is %T", sequence)
	}
	return &sliceCursor{v: rv}, nil
}

func (c *sliceCursor) Done() bool {
	return c.pos >= c.v.Len()
}

func (c *sliceCursor) Value() (any, error) {
	if c.Done() {
		return nil, errEndOfSequence
	}
	return c.v.Index(c.pos).Interface(), nil
}

func (c *sliceCursor) Advance() error {
	if c.Done() {
		return errEndOfSequence
	}
	c.pos++
	return nil
}

func (c *sliceCursor) Len() int {
	return c.v.Len()
}

func (c *sliceCursor) At(index int) (any, error) {
	if index < 0 || index >= c.v.Len() {
		return nil, invalidArgument("index %d out of range [0, %d)", index, c.v.Len())
	}
	return c.v.Index(index).Interface(), nil
}

// NewSequenceValue projects a native sequence into the object graph as an
// iterable, indexable container.
func (e *engine) NewSequenceValue(factory TraversalFactory, project Projection, setter SetterProjection, flag *LifetimeFlag, source any) (Value, error) {
	adapter := &sequenceAdapter{
		engine:  e,
		factory: factory,
		project: project,
		setter:  setter,
		guard:   lifetimeGuard{flag: flag, name: "sequence"},
		source:  source,
	}

	v := e.host.Synthetic(KindIterable, adapter)
	if err := e.host.Attach(v, &IterableConcept{adapter: adapter}); err != nil {
		return Value{}, err
	}
	if err := e.host.Attach(v, &IndexableConcept{adapter: adapter}); err != nil {
		return Value{}, err
	}

	return v, nil
}

// Traverse starts a traversal over an iterable dynamic value.
func (e *engine) Traverse(ctx context.Context, v Value) (*IterationState, error) {
	cs, err := e.host.concepts(v)
	if err != nil {
		return nil, err
	}
	if cs.iterable == nil {
		return nil, illegalOperation("value of kind %s is not iterable", e.host.KindOf(v))
	}
	return cs.iterable.adapter.NewTraversal(ctx)
}

// IndexGet performs direct index lookup on an indexable dynamic value.
func (e *engine) IndexGet(ctx context.Context, v Value, index int) (Value, error) {
	cs, err := e.host.concepts(v)
	if err != nil {
		return Value{}, err
	}
	if cs.indexable == nil {
		return Value{}, illegalOperation("value of kind %s is not indexable", e.host.KindOf(v))
	}
	return cs.indexable.adapter.GetAt(ctx, index)
}

// IndexSet writes through an indexable dynamic value.
func (e *engine) IndexSet(ctx context.Context, v Value, index int, val Value) error {
	cs, err := e.host.concepts(v)
	if err != nil {
		return err
	}
	if cs.indexable == nil {
		return illegalOperation("value of kind %s is not indexable", e.host.KindOf(v))
	}
	return cs.indexable.adapter.SetAt(ctx, index, val)
}

func (e *engine) drainIterable(ctx context.Context, v Value) ([]any, error) {
	state, err := e.Traverse(ctx, v)
	if err != nil {
		return nil, err
	}

	out := []any{}
	for {
		element, _, done, err := state.Step(ctx)
		if err != nil {
			return nil, err
		}
		if done {
			return out, nil
		}

		native, err := e.ToGo(ctx, element)
		if err != nil {
			return nil, err
		}
		out = append(out, native)
	}
}

// iterableType boxes native values that expose a traversal themselves.
type iterableType struct {
	baseType
	goType reflect.Type
}

func (it *iterableType) Box(ctx context.Context, e *engine, o any) (Value, error) {
	provider, ok := o.(SequenceProvider)
	if !ok {
		return Value{}, invalidArgument("value of type %T does not provide a sequence", o)
	}

	return e.NewSequenceValue(provider.Sequence, nil, nil, nil, o)
}

func (it *iterableType) Unbox(ctx context.Context, e *engine, v Value) (any, error) {
	if e.host.KindOf(v) != KindIterable {
		return nil, invalidArgument("cannot unbox %s value as %s", e.host.KindOf(v), it.goType)
	}

	payload, err := e.host.PayloadOf(v)
	if err != nil {
		return nil, err
	}

	adapter, ok := payload.(*sequenceAdapter)
	if !ok || adapter.source == nil {
		return nil, invalidArgument("iterable value does not wrap a native sequence")
	}

	if reflect.TypeOf(adapter.source) != it.goType {
		return nil, invalidArgument("iterable value wraps %T, want %s", adapter.source, it.goType)
	}

	return adapter.source, nil
}

func (it *iterableType) GoType() string {
	return it.goType.String()
}
