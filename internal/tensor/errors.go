package tensor

import "errors"

// Common errors.
var (
	ErrNilTensor     = errors.New("nil tensor")
	ErrNilAllocator  = errors.New("nil allocator")
	ErrInvalidShape  = errors.New("invalid shape")
	ErrRankTooLarge  = errors.New("rank exceeds limit")
	ErrTooLarge      = errors.New("element count exceeds limit")
	ErrInvalidDType  = errors.New("unsupported data type")
	ErrSizeMismatch  = errors.New("size mismatch")
	ErrDTypeMismatch = errors.New("data type mismatch")
	ErrGradTracked   = errors.New("tensor carries a gradient")
)
