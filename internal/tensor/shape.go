package tensor

import (
	"fmt"
	"math"
)

// MaxRank is the largest number of dimensions a tensor may have.
const MaxRank = 8

// MaxElements is the largest element count any shape may describe. Its byte
// size in the widest data type still fits in an int.
const MaxElements = math.MaxInt / 8

// Shape represents the dimensions of a tensor.
// An empty shape is a scalar.
type Shape []int

// NumElements returns the total number of elements in the tensor.
// The product is unchecked; call Validate first for untrusted shapes.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks the rank limit, that every dimension is positive and that
// the element count does not exceed MaxElements.
func (s Shape) Validate() error {
	if len(s) > MaxRank {
		return fmt.Errorf("%w: rank %d > %d", ErrRankTooLarge, len(s), MaxRank)
	}
	n := 1
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("%w: dimension %d is %d (must be > 0)", ErrInvalidShape, i, dim)
		}
		if n > MaxElements/dim {
			return fmt.Errorf("%w: shape %v exceeds %d elements", ErrTooLarge, []int(s), MaxElements)
		}
		n *= dim
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	clone := make(Shape, len(s))
	copy(clone, s)
	return clone
}

// ComputeStrides calculates row-major strides for the shape.
// Strides define memory layout: stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	computeStrides(s, strides)
	return strides
}

// computeStrides writes row-major strides for s into dst[:len(s)].
func computeStrides(s Shape, dst []int) {
	if len(s) == 0 {
		return
	}
	dst[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		dst[i] = dst[i+1] * s[i+1]
	}
}
