package dbgmodel

import (
	internal "github.com/microsoft/WinDbg-Libraries/internal"
)

// Value is an opaque, refcounted handle into the dynamic object graph.
type Value = internal.Value

type ValueKind = internal.ValueKind

const (
	KindInvalid          = internal.KindInvalid
	KindScalar           = internal.KindScalar
	KindString           = internal.KindString
	KindMethod           = internal.KindMethod
	KindPropertyAccessor = internal.KindPropertyAccessor
	KindInterface        = internal.KindInterface
	KindNoValue          = internal.KindNoValue
	KindIterable         = internal.KindIterable
	KindKeyReference     = internal.KindKeyReference
)

type Status = internal.Status

const (
	StatusOK               = internal.StatusOK
	StatusInvalidArgument  = internal.StatusInvalidArgument
	StatusNotFound         = internal.StatusNotFound
	StatusIllegalOperation = internal.StatusIllegalOperation
	StatusNotImplemented   = internal.StatusNotImplemented
	StatusUnexpected       = internal.StatusUnexpected
	StatusOutOfMemory      = internal.StatusOutOfMemory
	StatusDetachedObject   = internal.StatusDetachedObject
	StatusPassthrough      = internal.StatusPassthrough
)

type StatusError = internal.StatusError

// AsStatus maps any error to the status taxonomy; unknown errors pass
// through under StatusPassthrough.
func AsStatus(err error) *StatusError {
	return internal.AsStatus(err)
}

// IsEndOfSequence reports whether an error is the benign traversal
// terminator rather than a real failure.
func IsEndOfSequence(err error) bool {
	return internal.IsEndOfSequence(err)
}

type Host = internal.Host

type Memory = internal.Memory

// NewHost returns the in-process dynamic object graph with memorySize bytes
// of addressable memory.
func NewHost(memorySize uint32) Host {
	return internal.NewHost(memorySize)
}

type Concept = internal.Concept

type IterableConcept = internal.IterableConcept
type IndexableConcept = internal.IndexableConcept
type EquatableConcept = internal.EquatableConcept
type ComparableConcept = internal.ComparableConcept
type StringConversionConcept = internal.StringConversionConcept
type ConstructableConcept = internal.ConstructableConcept

// Optional interfaces a registered native type can implement to pick up the
// matching concept on every bound instance.
type DisplayStringer = internal.DisplayStringer
type Equatable = internal.Equatable
type Comparable = internal.Comparable

type Cursor = internal.Cursor
type RandomAccessCursor = internal.RandomAccessCursor
type IndexedElement = internal.IndexedElement
type TraversalFactory = internal.TraversalFactory
type SequenceProvider = internal.SequenceProvider
type Projection = internal.Projection
type SetterProjection = internal.SetterProjection
type IterationState = internal.IterationState

// SliceCursor adapts a Go slice or array into a random access traversal.
func SliceCursor(sequence any) (Cursor, error) {
	return internal.SliceCursor(sequence)
}

type Binding = internal.Binding
type PropertyAccessor = internal.PropertyAccessor
type LifetimeFlag = internal.LifetimeFlag

// NewLifetimeFlag returns a live flag to share between a native instance
// and the adapters projected from it.
func NewLifetimeFlag() *LifetimeFlag {
	return internal.NewLifetimeFlag()
}

type StridedView = internal.StridedView

type NativeFunc = internal.NativeFunc
type ArgumentPack = internal.ArgumentPack
type Signature = internal.Signature
type Param = internal.Param

// Arg declares a required parameter of the sample's type.
func Arg(sample any) Param {
	return internal.Arg(sample)
}

// OptionalArg declares an optional parameter of the sample's type.
func OptionalArg(sample any) Param {
	return internal.OptionalArg(sample)
}

// VariadicTail declares the trailing variadic capture pair.
func VariadicTail() Param {
	return internal.VariadicTail()
}

type IEnum = internal.IEnum

type CustomConverter = internal.CustomConverter

type WireTag = internal.WireTag

const (
	WireI8      = internal.WireI8
	WireU8      = internal.WireU8
	WireI16     = internal.WireI16
	WireU16     = internal.WireU16
	WireI32     = internal.WireI32
	WireU32     = internal.WireU32
	WireI64     = internal.WireI64
	WireU64     = internal.WireU64
	WireF32     = internal.WireF32
	WireF64     = internal.WireF64
	WireBool    = internal.WireBool
	WireWString = internal.WireWString
)

type CodePage = internal.CodePage

const (
	CodePageUTF16LE     = internal.CodePageUTF16LE
	CodePageWindows1252 = internal.CodePageWindows1252
	CodePageLatin1      = internal.CodePageLatin1
	CodePageUTF8        = internal.CodePageUTF8
)
