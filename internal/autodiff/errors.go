package autodiff

import "errors"

// Capacity errors.
var (
	ErrTooManyParents  = errors.New("node parent list full")
	ErrTooManyChildren = errors.New("node child list full")
	ErrSlotRange       = errors.New("slot index out of range")
	ErrQueueFull       = errors.New("pending node queue full")
)

// Precondition errors.
var (
	ErrNilBackward  = errors.New("nil backward function")
	ErrNoGradient   = errors.New("tensor has no gradient")
	ErrSlotOccupied = errors.New("owned slot already occupied")
	ErrOperandTaken = errors.New("operand index already linked")
	ErrSelfLink     = errors.New("tensor linked to itself")
	ErrNotScalar    = errors.New("backward requires a scalar output")
	ErrStaleNode    = errors.New("tensor refers to a released node")
)
