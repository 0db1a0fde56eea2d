// Package autodiff records a computation graph over pooled tensors and
// replays it in reverse to accumulate gradients.
//
// Architecture:
//   - Node: per-tensor bookkeeping, held in a NodeAllocator and addressed by
//     tensor.NodeID
//   - Graph.Link: called by an operation once per differentiable operand
//   - Context: forward-pass state for the operation's backward functions
//   - Graph.Backward: reverse traversal that only expands a node once all of
//     its consumers have pushed their contribution, so fan-out is summed
//     before it propagates further
//
// Usage:
//
//	g, _ := autodiff.New(tensors, nodes)
//
//	// inside an operation, after computing y from x:
//	_ = g.Link(x, 0, y, scaleBackward)
//	_ = g.Node(y).Context().SetScalar(0, 3)
//
//	// after the forward pass, on a scalar loss:
//	_ = g.Backward(loss) // gradients land in x.Grad()
//
// A Graph and everything it touches must be used from one goroutine.
package autodiff

import (
	"errors"
	"fmt"
	"time"

	"github.com/born-ml/gradarena/internal/logger"
	"github.com/born-ml/gradarena/internal/tensor"
)

// Observer receives one call per completed or aborted backward pass.
type Observer interface {
	ObserveBackward(nodes int, elapsed time.Duration, err error)
}

// Option configures a Graph.
type Option func(*Graph)

// WithObserver reports every backward pass to o.
func WithObserver(o Observer) Option {
	return func(g *Graph) {
		g.observer = o
	}
}

// Graph links tensors into a computation graph and runs backward passes
// over it. Node memory comes from the NodeAllocator; the tensor allocator
// supplies scratch gradients and frees context-owned helpers.
type Graph struct {
	tensors  tensor.Allocator
	nodes    NodeAllocator
	tracking bool
	observer Observer

	// queue holds pending nodes during a pass and doubles as the list of
	// nodes to release when it ends.
	queue []tensor.NodeID
}

// New creates a graph with tracking enabled.
func New(tensors tensor.Allocator, nodes NodeAllocator, opts ...Option) (*Graph, error) {
	if tensors == nil || nodes == nil {
		return nil, tensor.ErrNilAllocator
	}

	g := &Graph{
		tensors:  tensors,
		nodes:    nodes,
		tracking: true,
		queue:    make([]tensor.NodeID, 0, max(nodes.Cap(), 64)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Tensors returns the graph's tensor allocator.
func (g *Graph) Tensors() tensor.Allocator {
	return g.tensors
}

// Nodes returns the graph's node allocator.
func (g *Graph) Nodes() NodeAllocator {
	return g.nodes
}

// Tracking reports whether Link records anything.
func (g *Graph) Tracking() bool {
	return g.tracking
}

// SetTracking enables or disables recording. While disabled, Link returns
// nil without touching any node.
func (g *Graph) SetTracking(on bool) {
	g.tracking = on
}

// NoGrad runs fn with recording disabled and restores the previous state.
func (g *Graph) NoGrad(fn func()) {
	was := g.tracking
	g.tracking = false
	defer func() {
		g.tracking = was
	}()
	fn()
}

// Node returns the node attached to t, or nil if t has none or refers to a
// node that no longer belongs to it.
func (g *Graph) Node(t *tensor.Tensor) *Node {
	n, err := g.resolve(t)
	if err != nil {
		return nil
	}
	return n
}

// Link records that result was computed from operand.
//
// fn computes operand's gradient contribution during Backward and is stored
// under operandIndex, which also becomes operand's slot in result's
// context. Each differentiable operand of an operation is linked with a
// distinct index. Nodes are created on first use. If Link fails, the graph
// is left exactly as it was.
func (g *Graph) Link(operand *tensor.Tensor, operandIndex int, result *tensor.Tensor, fn BackwardFunc) error {
	if !g.tracking {
		return nil
	}

	switch {
	case operand == nil || result == nil:
		return fmt.Errorf("link: %w", tensor.ErrNilTensor)
	case fn == nil:
		return fmt.Errorf("link: %w", ErrNilBackward)
	case operand.Grad() == nil:
		return fmt.Errorf("link operand %s: %w", operand, ErrNoGradient)
	case result.Grad() == nil:
		return fmt.Errorf("link result %s: %w", result, ErrNoGradient)
	case operand == result:
		return fmt.Errorf("link: %w", ErrSelfLink)
	case operandIndex < 0 || operandIndex >= MaxOperands:
		return fmt.Errorf("link operand %d: %w", operandIndex, ErrSlotRange)
	}

	opID, opNode, opFresh, err := g.materialize(operand)
	if err != nil {
		return fmt.Errorf("link operand: %w", err)
	}
	resID, resNode, resFresh, err := g.materialize(result)
	if err != nil {
		return errors.Join(fmt.Errorf("link result: %w", err), g.rollback(opID, opFresh))
	}

	fail := func(err error) error {
		return errors.Join(err, g.rollback(resID, resFresh), g.rollback(opID, opFresh))
	}

	if resNode.functions[operandIndex] != nil {
		return fail(fmt.Errorf("link operand %d: %w", operandIndex, ErrOperandTaken))
	}
	if err := opNode.addParent(resID); err != nil {
		return fail(fmt.Errorf("link: %w", err))
	}
	if err := resNode.addChild(Edge{Node: opID, Operand: operandIndex}); err != nil {
		opNode.nParents--
		return fail(fmt.Errorf("link: %w", err))
	}

	resNode.functions[operandIndex] = fn
	resNode.ctx.operands[operandIndex] = operand
	return nil
}

// resolve returns t's node, nil if it has none, or ErrStaleNode if the id
// no longer points back at t.
func (g *Graph) resolve(t *tensor.Tensor) (*Node, error) {
	if t == nil {
		return nil, tensor.ErrNilTensor
	}
	id := t.Node()
	if id == tensor.NoNode {
		return nil, nil
	}
	n := g.nodes.Node(id)
	if n == nil || n.tensor != t {
		return nil, fmt.Errorf("node %d: %w", id, ErrStaleNode)
	}
	return n, nil
}

// materialize returns t's node, creating it if needed.
func (g *Graph) materialize(t *tensor.Tensor) (tensor.NodeID, *Node, bool, error) {
	n, err := g.resolve(t)
	if err != nil {
		return tensor.NoNode, nil, false, err
	}
	if n != nil {
		return t.Node(), n, false, nil
	}

	id, n, err := g.nodes.Alloc()
	if err != nil {
		logger.Log.Debug("node allocation failed", "tensor", t.String(), "err", err)
		return tensor.NoNode, nil, false, err
	}
	n.tensor = t
	n.ctx.alloc = g.tensors
	t.SetNode(id)
	return id, n, true, nil
}

// rollback releases a node created by the current Link call.
func (g *Graph) rollback(id tensor.NodeID, fresh bool) error {
	if !fresh {
		return nil
	}
	return g.release(id)
}

// release detaches a node from its tensor, frees the context's owned
// tensors and returns the node to its allocator.
func (g *Graph) release(id tensor.NodeID) error {
	n := g.nodes.Node(id)
	if n == nil {
		return fmt.Errorf("release node %d: %w", id, ErrStaleNode)
	}
	if t := n.tensor; t != nil && t.Node() == id {
		t.SetNode(tensor.NoNode)
	}
	errOwned := n.ctx.cleanupOwned()
	return errors.Join(errOwned, g.nodes.Free(id))
}
