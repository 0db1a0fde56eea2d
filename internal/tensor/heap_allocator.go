package tensor

import (
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// HeapAllocator issues tensors from the Go heap. Element buffers come from an
// arrow memory.Allocator, so a memory.CheckedAllocator can account for every
// byte. It never reports exhaustion.
type HeapAllocator struct {
	allocator
	mem memory.Allocator
}

// NewHeapAllocator creates a heap-backed allocator.
// A nil mem uses memory.DefaultAllocator.
func NewHeapAllocator(mem memory.Allocator) *HeapAllocator {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	a := &HeapAllocator{mem: mem}
	a.store = heapStorage{mem: mem}
	return a
}

// Backing returns the arrow memory.Allocator.
func (a *HeapAllocator) Backing() any {
	return a.mem
}

type heapStorage struct {
	mem memory.Allocator
}

func (heapStorage) newHeader() (*Tensor, error) {
	return new(Tensor), nil
}

func (heapStorage) releaseHeader(t *Tensor) error {
	*t = Tensor{}
	return nil
}

func (s heapStorage) newBuffer(n int, zero bool) ([]byte, error) {
	b := s.mem.Allocate(n)
	if zero {
		clear(b)
	}
	return b, nil
}

func (s heapStorage) releaseBuffer(b []byte) error {
	if b != nil {
		s.mem.Free(b)
	}
	return nil
}
