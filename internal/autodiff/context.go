package autodiff

import (
	"errors"
	"fmt"

	"github.com/born-ml/gradarena/internal/tensor"
)

// Context carries what an operation's backward functions need from the
// forward pass.
//
// Operand tensors and scalars are borrowed: the context never frees them and
// they must outlive the backward pass. Owned tensors are helpers created by
// the operation (masks, saved activations); the context frees them through
// its allocator when the node is released.
type Context struct {
	operands [MaxOperands]*tensor.Tensor
	scalars  [MaxScalars]float64
	owned    [MaxOwned]*tensor.Tensor
	nOwned   int
	alloc    tensor.Allocator
}

// SetOperand records a borrowed operand at slot i, replacing any previous one.
func (c *Context) SetOperand(i int, t *tensor.Tensor) error {
	if i < 0 || i >= MaxOperands {
		return fmt.Errorf("operand %d: %w", i, ErrSlotRange)
	}
	c.operands[i] = t
	return nil
}

// Operand returns the borrowed operand at slot i, or nil.
func (c *Context) Operand(i int) *tensor.Tensor {
	if i < 0 || i >= MaxOperands {
		return nil
	}
	return c.operands[i]
}

// SetScalar records a scalar at slot i, replacing any previous one.
func (c *Context) SetScalar(i int, v float64) error {
	if i < 0 || i >= MaxScalars {
		return fmt.Errorf("scalar %d: %w", i, ErrSlotRange)
	}
	c.scalars[i] = v
	return nil
}

// Scalar returns the scalar at slot i, or 0.
func (c *Context) Scalar(i int) float64 {
	if i < 0 || i >= MaxScalars {
		return 0
	}
	return c.scalars[i]
}

// SetOwned hands t to the context. The slot must be empty; on failure the
// existing value is kept and ownership of t stays with the caller.
func (c *Context) SetOwned(i int, t *tensor.Tensor) error {
	if i < 0 || i >= MaxOwned {
		return fmt.Errorf("owned %d: %w", i, ErrSlotRange)
	}
	if t == nil {
		return fmt.Errorf("owned %d: %w", i, tensor.ErrNilTensor)
	}
	if c.owned[i] != nil {
		return fmt.Errorf("owned %d: %w", i, ErrSlotOccupied)
	}
	c.owned[i] = t
	c.nOwned++
	return nil
}

// Owned returns the owned tensor at slot i, or nil.
func (c *Context) Owned(i int) *tensor.Tensor {
	if i < 0 || i >= MaxOwned {
		return nil
	}
	return c.owned[i]
}

// NumOwned returns the number of owned tensors.
func (c *Context) NumOwned() int {
	return c.nOwned
}

// cleanupOwned frees the owned tensors and empties their slots.
func (c *Context) cleanupOwned() error {
	if c.nOwned == 0 {
		return nil
	}
	if c.alloc == nil {
		return fmt.Errorf("context cleanup: %w", tensor.ErrNilAllocator)
	}

	var errs []error
	freed := 0
	for i := 0; i < MaxOwned && freed < c.nOwned; i++ {
		t := c.owned[i]
		if t == nil {
			continue
		}
		c.owned[i] = nil
		freed++
		if err := c.alloc.Free(t); err != nil {
			errs = append(errs, fmt.Errorf("owned %d: %w", i, err))
		}
	}
	c.nOwned = 0
	return errors.Join(errs...)
}
