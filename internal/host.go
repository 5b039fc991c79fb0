package dbgmodel

import (
	"fmt"
	"reflect"
)

// Memory is the host-owned flat address space that strided views index into.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, bool)
	Write(offset uint32, data []byte) bool
	Size() uint32
}

// Host is the upstream boundary of the binding layer: the dynamic object
// graph itself. It creates values, tags them with a kind, attaches concepts,
// keeps the per-value key/value store and performs generic assignment. The
// engine never reaches around this interface.
type Host interface {
	// Intrinsic boxes a scalar, boolean or transcoded string payload.
	Intrinsic(kind ValueKind, payload any) (Value, error)
	// Synthetic wraps an arbitrary payload under the given kind tag.
	Synthetic(kind ValueKind, payload any) Value
	NoValue() Value
	Null() Value
	Boolean(b bool) Value

	KindOf(v Value) ValueKind
	PayloadOf(v Value) (any, error)
	// Convert returns the boundary representation of an intrinsic value in
	// the requested form.
	Convert(v Value, tag WireTag) (Wire, error)

	Attach(v Value, c Concept) error
	concepts(v Value) (*conceptSet, error)

	GetKey(v Value, key string) (Value, error)
	SetKey(v Value, key string, val Value) error

	// Assign is the host-aware generic assignment operation. Assigning
	// through a key reference writes at the referenced location, anything
	// else replaces the destination payload.
	Assign(dst Value, src Value) error

	// NewError builds the host error object for a status code and message.
	NewError(status Status, hostCode int32, message string) Value

	Incref(v Value) error
	Decref(v Value) error
	LiveHandles() int

	Memory() Memory
}

// assignable is implemented by payloads that resolve an assignment
// themselves, e.g. key references into a strided view.
type assignable interface {
	assignFrom(h Host, src Value) error
}

type hostMemory struct {
	data []byte
}

func (m *hostMemory) Read(offset uint32, length uint32) ([]byte, bool) {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return nil, false
	}
	return m.data[offset : offset+length], true
}

func (m *hostMemory) Write(offset uint32, data []byte) bool {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], data)
	return true
}

func (m *hostMemory) Size() uint32 {
	return uint32(len(m.data))
}

// graphHost is the in-process reference implementation of Host, backed by
// the refcounted handle allocator.
type graphHost struct {
	allocator *handleAllocator
	memory    *hostMemory
}

// NewHost returns an in-process dynamic object graph with memorySize bytes
// of addressable memory.
func NewHost(memorySize uint32) Host {
	return &graphHost{
		allocator: newHandleAllocator(),
		memory:    &hostMemory{data: make([]byte, memorySize)},
	}
}

func (h *graphHost) Intrinsic(kind ValueKind, payload any) (Value, error) {
	switch kind {
	case KindScalar:
		if payload == nil {
			return Value{id: handleNull}, nil
		}
		if b, ok := payload.(bool); ok {
			return h.Boolean(b), nil
		}
		if _, err := packScalar(payload); err != nil {
			return Value{}, err
		}
	case KindString:
		if _, ok := payload.(encodedString); !ok {
			return Value{}, invalidArgument("string payload must be transcoded, got %T", payload)
		}
	default:
		return Value{}, invalidArgument("kind %s is not intrinsic", kind)
	}

	return Value{id: h.allocator.allocate(&dynHandle{value: payload, kind: kind, refCount: 1})}, nil
}

func (h *graphHost) Synthetic(kind ValueKind, payload any) Value {
	return Value{id: h.allocator.allocate(&dynHandle{value: payload, kind: kind, refCount: 1})}
}

func (h *graphHost) NoValue() Value {
	return Value{id: handleNoValue}
}

func (h *graphHost) Null() Value {
	return Value{id: handleNull}
}

func (h *graphHost) Boolean(b bool) Value {
	if b {
		return Value{id: handleTrue}
	}
	return Value{id: handleFalse}
}

func (h *graphHost) KindOf(v Value) ValueKind {
	handle, err := h.allocator.get(v.id)
	if err != nil {
		return KindInvalid
	}
	return handle.kind
}

func (h *graphHost) PayloadOf(v Value) (any, error) {
	handle, err := h.allocator.get(v.id)
	if err != nil {
		return nil, err
	}
	return handle.value, nil
}

func (h *graphHost) Convert(v Value, tag WireTag) (Wire, error) {
	handle, err := h.allocator.get(v.id)
	if err != nil {
		return Wire{}, err
	}

	if tag == WireHandle {
		return Wire{Tag: WireHandle, Bits: uint64(uint32(v.id))}, nil
	}

	switch handle.kind {
	case KindScalar:
		w, err := packScalar(handle.value)
		if err != nil {
			return Wire{}, err
		}
		if w.Tag == tag {
			return w, nil
		}
		return coerceScalar(handle.value, tag)
	case KindString:
		if tag != WireWString {
			return Wire{}, invalidArgument("string value cannot convert to wire tag %d", tag)
		}
		return Wire{Tag: WireWString, Bits: uint64(uint32(v.id))}, nil
	case KindInterface:
		if tag != WireInterface {
			return Wire{}, invalidArgument("interface value cannot convert to wire tag %d", tag)
		}
		return Wire{Tag: WireInterface, Bits: uint64(uint32(v.id))}, nil
	}

	return Wire{}, illegalOperation("value of kind %s has no intrinsic representation", handle.kind)
}

// coerceScalar re-expresses a scalar payload in the requested wire form.
func coerceScalar(payload any, tag WireTag) (Wire, error) {
	rv := reflect.ValueOf(payload)
	switch tag {
	case WireI8, WireI16, WireI32, WireI64:
		if !rv.CanInt() && !rv.CanUint() && !rv.CanFloat() {
			return Wire{}, invalidArgument("cannot convert %T to a signed integer", payload)
		}
		var i int64
		switch {
		case rv.CanInt():
			i = rv.Int()
		case rv.CanUint():
			i = int64(rv.Uint())
		default:
			i = int64(rv.Float())
		}
		return Wire{Tag: tag, Bits: uint64(i)}, nil
	case WireU8, WireU16, WireU32, WireU64:
		var u uint64
		switch {
		case rv.CanUint():
			u = rv.Uint()
		case rv.CanInt():
			u = uint64(rv.Int())
		case rv.CanFloat():
			u = uint64(rv.Float())
		default:
			return Wire{}, invalidArgument("cannot convert %T to an unsigned integer", payload)
		}
		return Wire{Tag: tag, Bits: u}, nil
	case WireF32:
		f, err := scalarAsFloat(rv, payload)
		if err != nil {
			return Wire{}, err
		}
		return Wire{Tag: WireF32, Bits: encodeF32(float32(f))}, nil
	case WireF64:
		f, err := scalarAsFloat(rv, payload)
		if err != nil {
			return Wire{}, err
		}
		return Wire{Tag: WireF64, Bits: encodeF64(f)}, nil
	case WireBool:
		// Numbers convert on their truthiness.
		w, err := packScalar(payload)
		if err != nil {
			return Wire{}, invalidArgument("cannot convert %T to a boolean", payload)
		}
		if w.Bits != 0 {
			return Wire{Tag: WireBool, Bits: 1}, nil
		}
		return Wire{Tag: WireBool, Bits: 0}, nil
	}
	return Wire{}, invalidArgument("unsupported conversion target %d", tag)
}

func scalarAsFloat(rv reflect.Value, payload any) (float64, error) {
	switch {
	case rv.CanFloat():
		return rv.Float(), nil
	case rv.CanInt():
		return float64(rv.Int()), nil
	case rv.CanUint():
		return float64(rv.Uint()), nil
	}
	return 0, invalidArgument("cannot convert %T to a float", payload)
}

func (h *graphHost) Attach(v Value, c Concept) error {
	handle, err := h.allocator.get(v.id)
	if err != nil {
		return err
	}
	return c.attach(&handle.concepts)
}

func (h *graphHost) concepts(v Value) (*conceptSet, error) {
	handle, err := h.allocator.get(v.id)
	if err != nil {
		return nil, err
	}
	return &handle.concepts, nil
}

func (h *graphHost) GetKey(v Value, key string) (Value, error) {
	handle, err := h.allocator.get(v.id)
	if err != nil {
		return Value{}, err
	}
	val, ok := handle.props[key]
	if !ok {
		return Value{}, notFound("key %q is not set", key)
	}
	return val, nil
}

func (h *graphHost) SetKey(v Value, key string, val Value) error {
	handle, err := h.allocator.get(v.id)
	if err != nil {
		return err
	}
	if handle.props == nil {
		handle.props = map[string]Value{}
	}
	if prev, ok := handle.props[key]; ok {
		if err := h.Decref(prev); err != nil {
			return err
		}
	}
	if err := h.Incref(val); err != nil {
		return err
	}
	handle.props[key] = val
	return nil
}

func (h *graphHost) Assign(dst Value, src Value) error {
	dstHandle, err := h.allocator.get(dst.id)
	if err != nil {
		return err
	}

	if ref, ok := dstHandle.value.(assignable); ok && dstHandle.kind == KindKeyReference {
		return ref.assignFrom(h, src)
	}

	if dst.id < int32(h.allocator.reserved) {
		return illegalOperation("cannot assign to reserved handle %d", dst.id)
	}

	srcHandle, err := h.allocator.get(src.id)
	if err != nil {
		return err
	}

	dstHandle.value = srcHandle.value
	dstHandle.kind = srcHandle.kind
	return nil
}

func (h *graphHost) NewError(status Status, hostCode int32, message string) Value {
	errValue := h.Synthetic(KindInterface, &StatusError{Code: status, HostCode: hostCode, Message: message})
	// The message is also exposed through the key/value store so host code
	// can read it without understanding the payload type.
	_ = h.SetKey(errValue, "message", h.Synthetic(KindString, encodedString{text: message}))
	return errValue
}

func (h *graphHost) Incref(v Value) error {
	return h.allocator.incref(v.id)
}

func (h *graphHost) Decref(v Value) error {
	handle, err := h.allocator.get(v.id)
	if err != nil {
		return err
	}
	// Releasing the last reference also releases the property store.
	if handle.refCount == 1 && int(v.id) >= h.allocator.reserved {
		for key := range handle.props {
			if err := h.Decref(handle.props[key]); err != nil {
				return fmt.Errorf("could not release key %q: %w", key, err)
			}
		}
	}
	return h.allocator.decref(v.id)
}

func (h *graphHost) LiveHandles() int {
	return h.allocator.live()
}

func (h *graphHost) Memory() Memory {
	return h.memory
}
