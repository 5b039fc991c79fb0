package dbgmodel

import "context"

// A Concept is a named capability attached to a dynamic value. Ownership is
// shared: the capability lives as long as the value it is attached to.
type Concept interface {
	attach(cs *conceptSet) error
}

type conceptSet struct {
	iterable      *IterableConcept
	indexable     *IndexableConcept
	equatable     *EquatableConcept
	comparable    *ComparableConcept
	stringable    *StringConversionConcept
	constructable *ConstructableConcept
}

// IterableConcept makes a dynamic value traversable through the host
// iteration protocol. The factory is consulted for every requested
// traversal, which is what makes traversals regenerable rather than a single
// consumable pass.
type IterableConcept struct {
	adapter *sequenceAdapter
}

func (c *IterableConcept) attach(cs *conceptSet) error {
	if cs.iterable != nil {
		return illegalOperation("iterable concept already attached")
	}
	cs.iterable = c
	return nil
}

// IndexableConcept exposes direct index lookup, and write-through when the
// adapter carries a setter projection.
type IndexableConcept struct {
	adapter *sequenceAdapter
}

func (c *IndexableConcept) attach(cs *conceptSet) error {
	if cs.indexable != nil {
		return illegalOperation("indexable concept already attached")
	}
	cs.indexable = c
	return nil
}

type EquatableConcept struct {
	Equals func(ctx context.Context, native any, other any) (bool, error)
}

func (c *EquatableConcept) attach(cs *conceptSet) error {
	if cs.equatable != nil {
		return illegalOperation("equatable concept already attached")
	}
	cs.equatable = c
	return nil
}

// ComparableConcept orders a native value against another one. Compare
// returns <0, 0 or >0.
type ComparableConcept struct {
	Compare func(ctx context.Context, native any, other any) (int, error)
}

func (c *ComparableConcept) attach(cs *conceptSet) error {
	if cs.comparable != nil {
		return illegalOperation("comparable concept already attached")
	}
	cs.comparable = c
	return nil
}

type StringConversionConcept struct {
	ToDisplayString func(ctx context.Context, native any) (string, error)
}

func (c *StringConversionConcept) attach(cs *conceptSet) error {
	if cs.stringable != nil {
		return illegalOperation("string conversion concept already attached")
	}
	cs.stringable = c
	return nil
}

type ConstructableConcept struct {
	New func(ctx context.Context, arguments ...any) (any, error)
}

func (c *ConstructableConcept) attach(cs *conceptSet) error {
	if cs.constructable != nil {
		return illegalOperation("constructable concept already attached")
	}
	cs.constructable = c
	return nil
}
