// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/born-ml/gradarena/internal/tensor"
)

// Type aliases for public API

// DType is a constraint for tensor element types.
// Supported types: float32, float64, int32.
type DType = tensor.DType

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
// An empty Shape is a scalar.
type Shape = tensor.Shape

// MaxRank is the largest number of dimensions a tensor may have.
const MaxRank = tensor.MaxRank

// MaxElements is the largest element count a shape may describe.
const MaxElements = tensor.MaxElements

// NodeID identifies the graph node attached to a tensor.
type NodeID = tensor.NodeID

// NoNode marks a tensor that is not part of any graph.
const NoNode = tensor.NoNode

// Tensor is a tensor header: shape, strides, element type, a view of its
// buffer and optionally a gradient of the same shape.
//
// Tensors are created and released through an Allocator.
type Tensor = tensor.Tensor

// Allocator creates and releases tensors.
//
// Implementations:
//   - PoolAllocator: fixed-capacity header and buffer arenas
//   - HeapAllocator: Go heap or any arrow memory.Allocator
type Allocator = tensor.Allocator

// PoolAllocator allocates tensors from fixed-capacity arenas.
// Use autograd.New to build one from a Config.
type PoolAllocator = tensor.PoolAllocator

// PoolBacking is what PoolAllocator.Backing returns.
type PoolBacking = tensor.PoolBacking

// HeapAllocator allocates tensor buffers from an arrow memory.Allocator.
type HeapAllocator = tensor.HeapAllocator

// NewHeapAllocator creates a heap allocator. A nil mem uses
// memory.DefaultAllocator.
//
// Example:
//
//	a := tensor.NewHeapAllocator(nil)
//	x, _ := tensor.FromSlice(a, tensor.Shape{2}, []float32{1, 2})
//	defer a.Free(x)
func NewHeapAllocator(mem memory.Allocator) *HeapAllocator {
	return tensor.NewHeapAllocator(mem)
}

// FromSlice creates a gradient-tracked tensor holding a copy of data.
func FromSlice[T DType](a Allocator, shape Shape, data []T) (*Tensor, error) {
	return tensor.FromSlice(a, shape, data)
}

// Scalar creates a gradient-tracked scalar tensor.
func Scalar[T DType](a Allocator, v T) (*Tensor, error) {
	return tensor.Scalar(a, v)
}

// Values returns a copy of t's elements as a typed slice.
func Values[T DType](t *Tensor) ([]T, error) {
	return tensor.Values[T](t)
}

// Errors returned by allocators and tensor methods.
var (
	ErrNilTensor     = tensor.ErrNilTensor
	ErrNilAllocator  = tensor.ErrNilAllocator
	ErrInvalidShape  = tensor.ErrInvalidShape
	ErrRankTooLarge  = tensor.ErrRankTooLarge
	ErrTooLarge      = tensor.ErrTooLarge
	ErrInvalidDType  = tensor.ErrInvalidDType
	ErrSizeMismatch  = tensor.ErrSizeMismatch
	ErrDTypeMismatch = tensor.ErrDTypeMismatch
	ErrGradTracked   = tensor.ErrGradTracked
)
