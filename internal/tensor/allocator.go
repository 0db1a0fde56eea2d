package tensor

import (
	"errors"
	"fmt"
)

// Allocator issues and reclaims tensors.
//
// Operator code allocates every tensor it produces through an Allocator so it
// stays independent of where the memory comes from. Implementations:
//   - PoolAllocator: fixed-capacity arenas, exhaustion is an error
//   - HeapAllocator: Go heap through an arrow memory.Allocator
type Allocator interface {
	// Alloc returns a zeroed tensor. Floating point tensors also get a
	// zeroed gradient of the same shape.
	Alloc(shape Shape, dtype DataType) (*Tensor, error)

	// NoGradAlloc returns a tensor without a gradient. Its contents are
	// unspecified.
	NoGradAlloc(shape Shape, dtype DataType) (*Tensor, error)

	// NoGradZeroAlloc returns a zeroed tensor without a gradient.
	NoGradZeroAlloc(shape Shape, dtype DataType) (*Tensor, error)

	// FromArrayAlloc returns a tensor holding a copy of src, which must be
	// exactly shape.NumElements() * dtype.Size() bytes. Floating point
	// tensors get a zeroed gradient, as with Alloc.
	FromArrayAlloc(shape Shape, dtype DataType, src []byte) (*Tensor, error)

	// Free releases the tensor, its buffer and its gradient. The node
	// reference is cleared; the node itself is not freed.
	Free(t *Tensor) error

	// NoGradFree releases a tensor that carries no gradient.
	NoGradFree(t *Tensor) error

	// Clone returns a deep copy of t, including its gradient values.
	// The copy is not attached to any graph node.
	Clone(t *Tensor) (*Tensor, error)

	// Backing returns the implementation's underlying storage handle.
	Backing() any
}

// storage is the memory source behind an allocator.
type storage interface {
	newHeader() (*Tensor, error)
	releaseHeader(t *Tensor) error
	newBuffer(n int, zero bool) ([]byte, error)
	releaseBuffer(b []byte) error
}

// allocator implements the Allocator contract over a storage.
type allocator struct {
	store storage
}

func (a *allocator) build(shape Shape, dtype DataType, zero bool) (*Tensor, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDType, int(dtype))
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}

	t, err := a.store.newHeader()
	if err != nil {
		return nil, fmt.Errorf("tensor header: %w", err)
	}

	buf, err := a.store.newBuffer(shape.NumElements()*dtype.Size(), zero)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("tensor buffer: %w", err), a.store.releaseHeader(t))
	}

	t.reset(shape, dtype, buf)
	return t, nil
}

func (a *allocator) attachGrad(t *Tensor) error {
	if !t.dtype.IsFloat() {
		return nil
	}
	g, err := a.build(t.Shape(), t.dtype, true)
	if err != nil {
		return errors.Join(fmt.Errorf("gradient: %w", err), a.release(t))
	}
	t.grad = g
	return nil
}

// release returns a gradient-free tensor's buffer and header.
func (a *allocator) release(t *Tensor) error {
	errBuf := a.store.releaseBuffer(t.data)
	t.data = nil
	t.node = NoNode
	return errors.Join(errBuf, a.store.releaseHeader(t))
}

// Alloc returns a zeroed, grad-tracked tensor.
func (a *allocator) Alloc(shape Shape, dtype DataType) (*Tensor, error) {
	t, err := a.build(shape, dtype, true)
	if err != nil {
		return nil, err
	}
	if err := a.attachGrad(t); err != nil {
		return nil, err
	}
	return t, nil
}

// NoGradAlloc returns a tensor without gradient and with unspecified contents.
func (a *allocator) NoGradAlloc(shape Shape, dtype DataType) (*Tensor, error) {
	return a.build(shape, dtype, false)
}

// NoGradZeroAlloc returns a zeroed tensor without gradient.
func (a *allocator) NoGradZeroAlloc(shape Shape, dtype DataType) (*Tensor, error) {
	return a.build(shape, dtype, true)
}

// FromArrayAlloc copies src into a new grad-tracked tensor.
func (a *allocator) FromArrayAlloc(shape Shape, dtype DataType, src []byte) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if want := shape.NumElements() * dtype.Size(); len(src) != want {
		return nil, fmt.Errorf("%w: shape %v of %s needs %d bytes, got %d", ErrSizeMismatch, shape, dtype, want, len(src))
	}

	t, err := a.build(shape, dtype, false)
	if err != nil {
		return nil, err
	}
	copy(t.data, src)

	if err := a.attachGrad(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Free releases t together with its gradient.
func (a *allocator) Free(t *Tensor) error {
	if t == nil {
		return ErrNilTensor
	}

	var errGrad error
	if g := t.grad; g != nil {
		t.grad = nil
		errGrad = a.NoGradFree(g)
	}
	return errors.Join(errGrad, a.release(t))
}

// NoGradFree releases a tensor that has no gradient.
func (a *allocator) NoGradFree(t *Tensor) error {
	if t == nil {
		return ErrNilTensor
	}
	if t.grad != nil {
		return fmt.Errorf("no-grad free: %w", ErrGradTracked)
	}
	return a.release(t)
}

// Clone returns a deep copy of t.
func (a *allocator) Clone(t *Tensor) (*Tensor, error) {
	if t == nil {
		return nil, ErrNilTensor
	}

	c, err := a.build(t.Shape(), t.dtype, false)
	if err != nil {
		return nil, err
	}
	copy(c.data, t.data)

	if t.grad != nil {
		g, err := a.build(t.Shape(), t.dtype, false)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("gradient: %w", err), a.release(c))
		}
		copy(g.data, t.grad.data)
		c.grad = g
	}
	return c, nil
}

// FromSlice allocates a grad-tracked tensor holding a copy of data.
func FromSlice[T DType](a Allocator, shape Shape, data []T) (*Tensor, error) {
	if a == nil {
		return nil, ErrNilAllocator
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("%w: shape %v requires %d elements, but got %d", ErrSizeMismatch, shape, shape.NumElements(), len(data))
	}
	return a.FromArrayAlloc(shape, inferDataType[T](), asBytes(data))
}

// Scalar allocates a grad-tracked, rank-0 tensor holding v.
func Scalar[T DType](a Allocator, v T) (*Tensor, error) {
	return FromSlice(a, Shape{}, []T{v})
}
