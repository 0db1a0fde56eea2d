package autodiff

import (
	"fmt"

	"github.com/born-ml/gradarena/internal/tensor"
)

// Capacity limits of a graph node. They are fixed so a node fits in one
// arena slot; exceeding any of them is reported as an error.
const (
	// MaxParents is the number of operations that may consume one tensor.
	MaxParents = 16

	// MaxChildren is the number of differentiable inputs of one operation.
	MaxChildren = 8

	// MaxOperands is the number of operand indices an operation may use.
	// Operand i of an operation owns backward function slot i and context
	// operand slot i.
	MaxOperands = MaxChildren

	// MaxScalars is the number of scalars a Context can hold.
	MaxScalars = 8

	// MaxOwned is the number of helper tensors a Context can own.
	MaxOwned = 8
)

// BackwardFunc computes one operand's gradient contribution.
//
// grad is the gradient of the operation's output. out is a zeroed tensor
// shaped like the operand; the function writes the contribution into it.
// Neither may be retained after the call.
type BackwardFunc func(ctx *Context, grad, out *tensor.Tensor) error

// Edge connects an operation's result node to one of its operand nodes.
type Edge struct {
	Node    tensor.NodeID
	Operand int
}

// Node is the graph bookkeeping attached to a tensor.
//
// Parents are the results of operations that consumed the tensor. Children
// are the operands of the operation that produced it. A node takes its own
// backward step once every parent has pushed its gradient contribution.
type Node struct {
	tensor *tensor.Tensor

	parents  [MaxParents]tensor.NodeID
	nParents int

	children  [MaxChildren]Edge
	nChildren int

	functions [MaxOperands]BackwardFunc
	pushed    int
	marked    bool

	ctx Context
}

// Tensor returns the tensor the node is attached to.
func (n *Node) Tensor() *tensor.Tensor {
	return n.tensor
}

// Parents returns the consumer nodes.
func (n *Node) Parents() []tensor.NodeID {
	return n.parents[:n.nParents]
}

// Children returns the producer edges.
func (n *Node) Children() []Edge {
	return n.children[:n.nChildren]
}

// PushedCount returns how many parents have delivered their contribution.
func (n *Node) PushedCount() int {
	return n.pushed
}

// Ready reports whether every parent has delivered its contribution.
func (n *Node) Ready() bool {
	return n.pushed == n.nParents
}

// Context returns the node's backpropagation context.
func (n *Node) Context() *Context {
	return &n.ctx
}

// Function returns the backward function registered for operand i.
func (n *Node) Function(i int) BackwardFunc {
	if i < 0 || i >= MaxOperands {
		return nil
	}
	return n.functions[i]
}

func (n *Node) addParent(id tensor.NodeID) error {
	if n.nParents == MaxParents {
		return fmt.Errorf("%w (%d)", ErrTooManyParents, MaxParents)
	}
	n.parents[n.nParents] = id
	n.nParents++
	return nil
}

func (n *Node) addChild(e Edge) error {
	if n.nChildren == MaxChildren {
		return fmt.Errorf("%w (%d)", ErrTooManyChildren, MaxChildren)
	}
	n.children[n.nChildren] = e
	n.nChildren++
	return nil
}
