// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public tensor types of gradarena.
//
// # Overview
//
// A Tensor is a fixed-size header: shape and strides live inline (up to
// MaxRank dimensions), data is a view into a buffer owned by the Allocator
// that created it, and a gradient-tracked tensor carries a second tensor of
// the same shape for its gradient.
//
// # Basic Usage
//
//	a := tensor.NewHeapAllocator(nil)
//
//	x, _ := tensor.FromSlice(a, tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
//	defer a.Free(x)
//
//	fmt.Println(x)              // float32[2 3] grad
//	fmt.Println(x.AsFloat32())  // [1 2 3 4 5 6]
//
// # Supported Data Types
//
// The DType constraint covers:
//   - float32, float64 (floating-point)
//   - int32 (signed integers)
//
// # Memory Management
//
// Nothing is reference-counted. Every tensor must be released with the
// allocator that created it: Free for gradient-tracked tensors (it also
// releases the gradient), NoGradFree for the rest. Arena-backed allocators
// fail with an error instead of growing when they run out of slots.
package tensor
