package dbgmodel

// ValueKind is the runtime type tag a dynamic value carries in the host
// object graph.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindScalar
	KindString
	KindMethod
	KindPropertyAccessor
	KindInterface
	KindNoValue
	KindIterable
	KindKeyReference
)

func (k ValueKind) String() string {
	switch k {
	case KindScalar:
		return "intrinsic"
	case KindString:
		return "string"
	case KindMethod:
		return "method"
	case KindPropertyAccessor:
		return "property accessor"
	case KindInterface:
		return "interface"
	case KindNoValue:
		return "no value"
	case KindIterable:
		return "iterable"
	case KindKeyReference:
		return "key reference"
	}
	return "invalid"
}

// Value is an opaque reference-counted handle into the host's object graph.
// Handle 0 is never valid; the no-value handle represents "no value"
// explicitly, a Value is otherwise never null.
type Value struct {
	id int32
}

// Valid reports whether the handle references a slot at all. The zero Value
// is invalid.
func (v Value) Valid() bool {
	return v.id != 0
}

// dynHandle is one slot in the object graph: the boxed payload, its kind
// tag, the attached capability set and the per-value key/value store.
type dynHandle struct {
	value    any
	kind     ValueKind
	refCount int
	concepts conceptSet
	props    map[string]Value
}

type handleAllocator struct {
	allocated []*dynHandle
	freelist  []int32
	reserved  int
}

func newHandleAllocator() *handleAllocator {
	return &handleAllocator{
		allocated: []*dynHandle{
			nil, // Reserve slot 0 so that 0 is always an invalid handle.
			{value: nil, kind: KindNoValue},
			{value: nil, kind: KindScalar},
			{value: true, kind: KindScalar},
			{value: false, kind: KindScalar},
		},
		freelist: []int32{},
		reserved: 5,
	}
}

const (
	handleNoValue = 1
	handleNull    = 2
	handleTrue    = 3
	handleFalse   = 4
)

func (ha *handleAllocator) get(id int32) (*dynHandle, error) {
	if id < 1 || int(id) > len(ha.allocated)-1 {
		return nil, invalidArgument("invalid handle id: %d", id)
	}
	h := ha.allocated[int(id)]
	if h == nil {
		return nil, invalidArgument("handle id %d was already released", id)
	}
	return h, nil
}

func (ha *handleAllocator) allocate(handle *dynHandle) int32 {
	var id int32

	// Reuse freed slots when available.
	if len(ha.freelist) > 0 {
		id = ha.freelist[len(ha.freelist)-1]
		ha.freelist = ha.freelist[:len(ha.freelist)-1]
		ha.allocated[id] = handle
	} else {
		id = int32(len(ha.allocated))
		ha.allocated = append(ha.allocated, handle)
	}

	return id
}

func (ha *handleAllocator) free(id int32) error {
	if int(id) < ha.reserved || int(id) > len(ha.allocated)-1 {
		return invalidArgument("invalid handle id: %d", id)
	}

	ha.allocated[id] = nil
	ha.freelist = append(ha.freelist, id)

	return nil
}

func (ha *handleAllocator) incref(id int32) error {
	if int(id) >= ha.reserved {
		handle, err := ha.get(id)
		if err != nil {
			return err
		}
		handle.refCount++
	}

	return nil
}

func (ha *handleAllocator) decref(id int32) error {
	if int(id) >= ha.reserved {
		handle, err := ha.get(id)
		if err != nil {
			return err
		}

		handle.refCount--
		if handle.refCount == 0 {
			err = ha.free(id)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// live returns the number of non-reserved handles currently allocated.
func (ha *handleAllocator) live() int {
	return len(ha.allocated) - len(ha.freelist) - ha.reserved
}
