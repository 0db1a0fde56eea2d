// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autograd provides reverse-mode automatic differentiation over
// arena-allocated tensors.
//
// Operations compute their result, then call Graph.Link once per
// differentiable operand. Graph.Backward on a scalar result walks the
// recorded graph in reverse, sums gradient contributions into every linked
// tensor's gradient and releases the graph's nodes.
//
// Example:
//
//	import (
//	    "github.com/born-ml/gradarena/autograd"
//	    "github.com/born-ml/gradarena/tensor"
//	)
//
//	func main() {
//	    e, _ := autograd.New(autograd.DefaultConfig())
//	    defer e.Close()
//
//	    x, _ := tensor.FromSlice(e.Tensors(), tensor.Shape{1}, []float32{2})
//	    y := double(e.Graph(), x) // links x into y's node
//
//	    _ = e.Graph().Backward(y) // x.Grad() now holds 2
//	}
package autograd

import (
	"github.com/born-ml/gradarena/internal/autodiff"
	"github.com/born-ml/gradarena/internal/pool"
	"github.com/born-ml/gradarena/tensor"
)

// Graph records operations and runs backward passes.
type Graph = autodiff.Graph

// Node is the graph bookkeeping attached to a tensor.
type Node = autodiff.Node

// Edge connects a result node to one of its operand nodes.
type Edge = autodiff.Edge

// Context carries forward-pass state to backward functions.
type Context = autodiff.Context

// BackwardFunc computes one operand's gradient contribution.
//
// grad is the gradient of the operation's output. out is a zeroed tensor
// shaped like the operand; the function writes the contribution into it.
type BackwardFunc = autodiff.BackwardFunc

// NodeAllocator issues and reclaims graph nodes.
type NodeAllocator = autodiff.NodeAllocator

// NodePool is a fixed-capacity NodeAllocator.
type NodePool = autodiff.NodePool

// HeapNodes is an unbounded NodeAllocator on the Go heap.
type HeapNodes = autodiff.HeapNodes

// Observer receives one call per backward pass.
type Observer = autodiff.Observer

// Option configures a Graph.
type Option = autodiff.Option

// PoolStats is a snapshot of one arena's occupancy.
type PoolStats = pool.Stats

// Node capacity limits.
const (
	MaxParents  = autodiff.MaxParents
	MaxChildren = autodiff.MaxChildren
	MaxOperands = autodiff.MaxOperands
	MaxScalars  = autodiff.MaxScalars
	MaxOwned    = autodiff.MaxOwned
	MaxNodes    = autodiff.MaxNodes
)

// Graph errors.
var (
	ErrTooManyParents  = autodiff.ErrTooManyParents
	ErrTooManyChildren = autodiff.ErrTooManyChildren
	ErrSlotRange       = autodiff.ErrSlotRange
	ErrQueueFull       = autodiff.ErrQueueFull
	ErrNilBackward     = autodiff.ErrNilBackward
	ErrNoGradient      = autodiff.ErrNoGradient
	ErrSlotOccupied    = autodiff.ErrSlotOccupied
	ErrOperandTaken    = autodiff.ErrOperandTaken
	ErrSelfLink        = autodiff.ErrSelfLink
	ErrNotScalar       = autodiff.ErrNotScalar
	ErrStaleNode       = autodiff.ErrStaleNode
)

// Arena errors.
var (
	ErrExhausted     = pool.ErrExhausted
	ErrChunkTooLarge = pool.ErrChunkTooLarge
	ErrDoubleFree    = pool.ErrDoubleFree
	ErrForeignSlot   = pool.ErrForeignSlot
	ErrClosed        = pool.ErrClosed
)

// NewGraph creates a graph over caller-supplied allocators.
func NewGraph(tensors tensor.Allocator, nodes NodeAllocator, opts ...Option) (*Graph, error) {
	return autodiff.New(tensors, nodes, opts...)
}

// WithObserver reports every backward pass to o.
func WithObserver(o Observer) Option {
	return autodiff.WithObserver(o)
}

// NewNodePool creates a node arena with capacity slots.
func NewNodePool(capacity int) (*NodePool, error) {
	return autodiff.NewNodePool(capacity)
}

// NewHeapNodes creates an unbounded heap node allocator.
func NewHeapNodes() *HeapNodes {
	return autodiff.NewHeapNodes()
}
