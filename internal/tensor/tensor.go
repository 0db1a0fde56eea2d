package tensor

import (
	"fmt"
	"strings"
	"unsafe"
)

// NodeID addresses a graph node in a node allocator.
// The zero value means the tensor has no node.
type NodeID uint32

// NoNode is the NodeID of a tensor that is not part of a graph.
const NoNode NodeID = 0

// Tensor is a dense, row-major tensor header.
//
// Headers are issued by an Allocator and are only valid until they are freed
// through the same Allocator. A tensor owns its element buffer and its
// gradient. It does not own the graph node it refers to.
type Tensor struct {
	data    []byte
	dtype   DataType
	rank    int
	dims    [MaxRank]int
	strides [MaxRank]int
	numel   int
	grad    *Tensor
	node    NodeID
}

// reset fills a fresh header. dims and strides are stored inline so a
// pooled header needs no further allocation.
func (t *Tensor) reset(shape Shape, dtype DataType, data []byte) {
	t.data = data
	t.dtype = dtype
	t.rank = len(shape)
	copy(t.dims[:], shape)
	computeStrides(shape, t.strides[:])
	t.numel = shape.NumElements()
	t.grad = nil
	t.node = NoNode
}

// Shape returns the tensor's shape.
// The returned slice aliases the header and must not be modified.
func (t *Tensor) Shape() Shape {
	return Shape(t.dims[:t.rank:t.rank])
}

// Strides returns the tensor's row-major strides.
// The returned slice aliases the header and must not be modified.
func (t *Tensor) Strides() []int {
	return t.strides[:t.rank:t.rank]
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return t.rank
}

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType {
	return t.dtype
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return t.numel
}

// IsScalar reports whether the tensor holds exactly one element.
func (t *Tensor) IsScalar() bool {
	return t.numel == 1
}

// ByteSize returns the total memory size in bytes.
func (t *Tensor) ByteSize() int {
	return t.numel * t.dtype.Size()
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (t *Tensor) Data() []byte {
	return t.data
}

// Grad returns the gradient tensor, or nil if the tensor is not grad-tracked.
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// RequiresGrad reports whether the tensor carries a gradient.
func (t *Tensor) RequiresGrad() bool {
	return t.grad != nil
}

// Node returns the graph node attached to the tensor, or NoNode.
func (t *Tensor) Node() NodeID {
	return t.node
}

// SetNode attaches or detaches (NoNode) a graph node.
// Only the graph that owns the node should call this.
func (t *Tensor) SetNode(id NodeID) {
	t.node = id
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (t *Tensor) AsFloat32() []float32 {
	if t.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", t.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), t.numel)
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (t *Tensor) AsFloat64() []float64 {
	if t.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", t.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&t.data[0])), t.numel)
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (t *Tensor) AsInt32() []int32 {
	if t.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", t.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, bounds checked by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&t.data[0])), t.numel)
}

// Fill sets every element to v, converted to the tensor's data type.
func (t *Tensor) Fill(v float64) {
	switch t.dtype {
	case Float32:
		data := t.AsFloat32()
		for i := range data {
			data[i] = float32(v)
		}
	case Float64:
		data := t.AsFloat64()
		for i := range data {
			data[i] = v
		}
	case Int32:
		data := t.AsInt32()
		for i := range data {
			data[i] = int32(v)
		}
	}
}

// Accumulate adds src into t element-wise.
// Both tensors must have the same data type and element count.
func (t *Tensor) Accumulate(src *Tensor) error {
	if t == nil || src == nil {
		return ErrNilTensor
	}
	if t.dtype != src.dtype {
		return fmt.Errorf("accumulate: %w: %s += %s", ErrDTypeMismatch, t.dtype, src.dtype)
	}
	if t.numel != src.numel {
		return fmt.Errorf("accumulate: %w: %d += %d elements", ErrSizeMismatch, t.numel, src.numel)
	}

	switch t.dtype {
	case Float32:
		dst, s := t.AsFloat32(), src.AsFloat32()
		for i := range dst {
			dst[i] += s[i]
		}
	case Float64:
		dst, s := t.AsFloat64(), src.AsFloat64()
		for i := range dst {
			dst[i] += s[i]
		}
	case Int32:
		dst, s := t.AsInt32(), src.AsInt32()
		for i := range dst {
			dst[i] += s[i]
		}
	}
	return nil
}

// String returns a short description such as "float32[2 3] grad".
func (t *Tensor) String() string {
	var b strings.Builder
	b.WriteString(t.dtype.String())
	b.WriteString(fmt.Sprint([]int(t.Shape())))
	if t.grad != nil {
		b.WriteString(" grad")
	}
	if t.node != NoNode {
		fmt.Fprintf(&b, " node=%d", t.node)
	}
	return b.String()
}

// Values returns a copy of the tensor's elements as T.
// T must match the tensor's data type.
func Values[T DType](t *Tensor) ([]T, error) {
	if t == nil {
		return nil, ErrNilTensor
	}
	if want := inferDataType[T](); want != t.dtype {
		return nil, fmt.Errorf("%w: tensor is %s, requested %s", ErrDTypeMismatch, t.dtype, want)
	}
	out := make([]T, t.numel)
	copy(out, unsafe.Slice((*T)(unsafe.Pointer(&t.data[0])), t.numel))
	return out, nil
}

// asBytes views a typed slice as raw bytes without copying.
func asBytes[T DType](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	//nolint:gosec // unsafe.Slice for zero-copy access over the full slice
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*int(unsafe.Sizeof(zero)))
}
