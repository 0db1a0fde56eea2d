package pool

import "errors"

// Common errors.
var (
	ErrExhausted       = errors.New("pool exhausted")
	ErrInvalidCapacity = errors.New("invalid pool capacity")
	ErrInvalidSize     = errors.New("invalid allocation size")
	ErrChunkTooLarge   = errors.New("request exceeds chunk size")
	ErrForeignSlot     = errors.New("slot does not belong to pool")
	ErrDoubleFree      = errors.New("slot already free")
	ErrClosed          = errors.New("pool closed")
)
