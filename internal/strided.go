package dbgmodel

import (
	"context"
	"encoding/binary"
)

// StridedView is a typed window over host memory: count elements of one
// scalar wire form starting at base, stride bytes apart. Element access is
// pure address arithmetic, so views stay cheap to create and never own the
// memory they index.
type StridedView struct {
	engine *engine
	mem    Memory
	base   uint32
	stride uint32
	count  uint32
	tag    WireTag
	guard  lifetimeGuard
}

// NewStridedView validates the window against the host memory once, at
// creation. A flag of nil means the view outlives nothing and is never
// detached.
func (e *engine) NewStridedView(base, stride, count uint32, tag WireTag, flag *LifetimeFlag) (*StridedView, error) {
	size, err := wireSize(tag)
	if err != nil {
		return nil, err
	}
	if tag == WireWString || tag == WireInterface || tag == WireHandle {
		return nil, invalidArgument("strided views carry scalar elements, not %d", tag)
	}
	if stride < size {
		return nil, invalidArgument("stride %d is smaller than the element size %d", stride, size)
	}

	mem := e.host.Memory()
	if count > 0 {
		last := uint64(base) + uint64(count-1)*uint64(stride) + uint64(size)
		if last > uint64(mem.Size()) {
			return nil, invalidArgument("view of %d element(s) at %d with stride %d exceeds the %d byte address space", count, base, stride, mem.Size())
		}
	}

	return &StridedView{
		engine: e,
		mem:    mem,
		base:   base,
		stride: stride,
		count:  count,
		tag:    tag,
		guard:  lifetimeGuard{flag: flag, name: "strided view"},
	}, nil
}

func (v *StridedView) Len() int {
	return int(v.count)
}

func (v *StridedView) addr(index uint32) uint32 {
	return v.base + index*v.stride
}

func (v *StridedView) checkIndex(index int) error {
	if err := v.guard.check(); err != nil {
		return err
	}
	if index < 0 || uint32(index) >= v.count {
		return invalidArgument("index %d out of range [0, %d)", index, v.count)
	}
	return nil
}

// ReadAt decodes the element at index into its native scalar form.
func (v *StridedView) ReadAt(index int) (any, error) {
	if err := v.checkIndex(index); err != nil {
		return nil, err
	}

	w, err := v.readWire(uint32(index))
	if err != nil {
		return nil, err
	}
	return unpackScalar(w)
}

// WriteAt stores a native scalar at index, converting it to the element
// form first.
func (v *StridedView) WriteAt(index int, o any) error {
	if err := v.checkIndex(index); err != nil {
		return err
	}

	w, err := coerceScalar(o, v.tag)
	if err != nil {
		return err
	}
	return v.writeWire(uint32(index), w)
}

func (v *StridedView) readWire(index uint32) (Wire, error) {
	size, err := wireSize(v.tag)
	if err != nil {
		return Wire{}, err
	}

	data, ok := v.mem.Read(v.addr(index), size)
	if !ok {
		return Wire{}, unexpected("read of %d byte(s) at %d escapes the address space", size, v.addr(index))
	}

	var bits uint64
	switch size {
	case 1:
		bits = uint64(data[0])
	case 2:
		bits = uint64(binary.LittleEndian.Uint16(data))
	case 4:
		bits = uint64(binary.LittleEndian.Uint32(data))
	case 8:
		bits = binary.LittleEndian.Uint64(data)
	}

	return Wire{Tag: v.tag, Bits: bits}, nil
}

func (v *StridedView) writeWire(index uint32, w Wire) error {
	size, err := wireSize(v.tag)
	if err != nil {
		return err
	}

	data := make([]byte, size)
	switch size {
	case 1:
		data[0] = byte(w.Bits)
	case 2:
		binary.LittleEndian.PutUint16(data, uint16(w.Bits))
	case 4:
		binary.LittleEndian.PutUint32(data, uint32(w.Bits))
	case 8:
		binary.LittleEndian.PutUint64(data, w.Bits)
	}

	if !v.mem.Write(v.addr(index), data) {
		return unexpected("write of %d byte(s) at %d escapes the address space", size, v.addr(index))
	}
	return nil
}

// RefAt returns a key reference to the element at index. Assigning to the
// reference writes through to the underlying memory.
func (v *StridedView) RefAt(index int) (Value, error) {
	if err := v.checkIndex(index); err != nil {
		return Value{}, err
	}
	return v.engine.host.Synthetic(KindKeyReference, &keyReference{view: v, index: uint32(index)}), nil
}

// keyReference resolves assignment onto one strided element. The source is
// converted through the host boundary to the element form before the write.
type keyReference struct {
	view  *StridedView
	index uint32
}

func (r *keyReference) assignFrom(h Host, src Value) error {
	if err := r.view.guard.check(); err != nil {
		return err
	}

	w, err := h.Convert(src, r.view.tag)
	if err != nil {
		return err
	}
	return r.view.writeWire(r.index, w)
}

// stridedCursor traverses a view front to back with random access.
type stridedCursor struct {
	view *StridedView
	pos  int
}

func (c *stridedCursor) Done() bool {
	return c.pos >= c.view.Len()
}

func (c *stridedCursor) Value() (any, error) {
	return c.view.ReadAt(c.pos)
}

func (c *stridedCursor) Advance() error {
	if c.Done() {
		return errEndOfSequence
	}
	c.pos++
	return nil
}

func (c *stridedCursor) Len() int {
	return c.view.Len()
}

func (c *stridedCursor) At(index int) (any, error) {
	return c.view.ReadAt(index)
}

// NewStridedValue projects a view into the object graph as an iterable,
// indexable container with write-through indexed assignment.
func (e *engine) NewStridedValue(view *StridedView) (Value, error) {
	factory := func(ctx context.Context) (Cursor, error) {
		return &stridedCursor{view: view}, nil
	}
	setter := func(ctx context.Context, index int, element any) error {
		return view.WriteAt(index, element)
	}
	return e.NewSequenceValue(factory, nil, setter, view.guard.flag, view)
}
