package autodiff

import (
	"errors"
	"fmt"
	"time"

	"github.com/born-ml/gradarena/internal/logger"
	"github.com/born-ml/gradarena/internal/tensor"
)

// Backward computes gradients of out with respect to every tensor linked
// into its graph.
//
// Algorithm:
//  1. Seed out's gradient with 1.0 (out must hold exactly one element)
//  2. Queue out's node
//  3. For each queued node, call the backward function of every child edge
//     into a fresh zeroed tensor and add it to the child's gradient
//  4. Queue a child once all of its parents have pushed a contribution
//  5. Detach and release every processed node
//
// Gradients accumulate into existing gradient buffers; zero them between
// passes if that is not wanted. If any step fails, the pass is aborted,
// every node reachable from out is released and the error is returned.
//
// Backward must be called once per graph, after the forward pass and before
// any of its tensors are freed.
func (g *Graph) Backward(out *tensor.Tensor) error {
	start := time.Now()
	n, err := g.backward(out)
	if g.observer != nil {
		g.observer.ObserveBackward(n, time.Since(start), err)
	}
	return err
}

func (g *Graph) backward(out *tensor.Tensor) (int, error) {
	if out == nil {
		return 0, fmt.Errorf("backward: %w", tensor.ErrNilTensor)
	}
	grad := out.Grad()
	if grad == nil {
		return 0, fmt.Errorf("backward %s: %w", out, ErrNoGradient)
	}
	if !out.IsScalar() {
		return 0, fmt.Errorf("backward %s: %w", out, ErrNotScalar)
	}

	root, err := g.resolve(out)
	if err != nil {
		return 0, fmt.Errorf("backward: %w", err)
	}
	grad.Fill(1)
	if root == nil {
		return 0, nil
	}

	rootID := out.Node()
	g.queue = append(g.queue[:0], rootID)
	for head := 0; head < len(g.queue); head++ {
		id := g.queue[head]
		if err := g.step(id); err != nil {
			logger.Log.Warn("backward pass aborted", "node", uint32(id), "processed", head, "err", err)
			return head, errors.Join(fmt.Errorf("backward: node %d: %w", id, err), g.discard(rootID))
		}
	}

	processed := len(g.queue)
	if err := g.releaseQueue(); err != nil {
		return processed, fmt.Errorf("backward: %w", err)
	}
	logger.Log.Debug("backward pass complete", "nodes", processed)
	return processed, nil
}

// step pushes node id's gradient into each of its children.
func (g *Graph) step(id tensor.NodeID) error {
	n := g.nodes.Node(id)
	if n == nil {
		return ErrStaleNode
	}
	grad := n.tensor.Grad()

	for _, e := range n.Children() {
		child := g.nodes.Node(e.Node)
		if child == nil {
			return fmt.Errorf("child %d: %w", e.Node, ErrStaleNode)
		}
		if err := g.propagate(n, e, child, grad); err != nil {
			return err
		}

		child.pushed++
		if child.Ready() {
			if err := g.enqueue(e.Node); err != nil {
				return err
			}
		}
	}
	return nil
}

// propagate adds one edge's gradient contribution to the child's gradient.
func (g *Graph) propagate(n *Node, e Edge, child *Node, grad *tensor.Tensor) error {
	ct := child.tensor
	contrib, err := g.tensors.NoGradZeroAlloc(ct.Shape(), ct.DType())
	if err != nil {
		return fmt.Errorf("operand %d gradient: %w", e.Operand, err)
	}

	err = n.functions[e.Operand](&n.ctx, grad, contrib)
	if err != nil {
		err = fmt.Errorf("operand %d backward: %w", e.Operand, err)
	} else {
		err = ct.Grad().Accumulate(contrib)
	}
	return errors.Join(err, g.tensors.NoGradFree(contrib))
}

func (g *Graph) enqueue(id tensor.NodeID) error {
	if limit := g.nodes.Cap(); limit > 0 && len(g.queue) >= limit {
		return fmt.Errorf("%w (%d)", ErrQueueFull, limit)
	}
	g.queue = append(g.queue, id)
	return nil
}

// Discard releases every node reachable from t's node without computing any
// gradient. Use it for a graph that was built but will not be
// differentiated. Nodes shared with another, still pending graph are
// released too, so that graph must not be run afterwards.
func (g *Graph) Discard(t *tensor.Tensor) error {
	root, err := g.resolve(t)
	if err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	if root == nil {
		return nil
	}
	return g.discard(t.Node())
}

func (g *Graph) discard(rootID tensor.NodeID) error {
	root := g.nodes.Node(rootID)
	if root == nil {
		return fmt.Errorf("discard node %d: %w", rootID, ErrStaleNode)
	}

	root.marked = true
	g.queue = append(g.queue[:0], rootID)
	for head := 0; head < len(g.queue); head++ {
		n := g.nodes.Node(g.queue[head])
		for _, e := range n.Children() {
			c := g.nodes.Node(e.Node)
			if c == nil || c.marked {
				continue
			}
			c.marked = true
			g.queue = append(g.queue, e.Node)
		}
	}

	released := len(g.queue)
	err := g.releaseQueue()
	logger.Log.Debug("graph discarded", "nodes", released)
	return err
}

// releaseQueue releases every node in the queue and empties it.
func (g *Graph) releaseQueue() error {
	var errs []error
	for _, id := range g.queue {
		if err := g.release(id); err != nil {
			errs = append(errs, err)
		}
	}
	g.queue = g.queue[:0]
	return errors.Join(errs...)
}
