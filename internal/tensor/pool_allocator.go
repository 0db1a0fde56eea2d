package tensor

import (
	"errors"

	"github.com/born-ml/gradarena/internal/logger"
	"github.com/born-ml/gradarena/internal/pool"
)

// PoolAllocator issues tensors from two fixed-capacity arenas: one for
// headers and one for element buffers. Every buffer occupies exactly one
// chunk, so a tensor larger than the chunk size cannot be allocated.
type PoolAllocator struct {
	allocator
	headers *pool.Pool[Tensor]
	buffers *pool.ChunkPool
}

// PoolBacking is the storage handle returned by PoolAllocator.Backing.
type PoolBacking struct {
	Headers *pool.Pool[Tensor]
	Buffers *pool.ChunkPool
}

// NewPoolAllocator creates an allocator over the given arenas.
// The arenas stay owned by the caller.
func NewPoolAllocator(headers *pool.Pool[Tensor], buffers *pool.ChunkPool) (*PoolAllocator, error) {
	if headers == nil || buffers == nil {
		return nil, ErrNilAllocator
	}
	a := &PoolAllocator{headers: headers, buffers: buffers}
	a.store = poolStorage{a}
	return a, nil
}

// MaxElements returns the largest element count a single tensor of dtype
// can hold.
func (a *PoolAllocator) MaxElements(dtype DataType) int {
	if !dtype.Valid() {
		return 0
	}
	return a.buffers.ChunkSize() / dtype.Size()
}

// Backing returns the header and buffer arenas.
func (a *PoolAllocator) Backing() any {
	return PoolBacking{Headers: a.headers, Buffers: a.buffers}
}

// Stats returns header and buffer arena occupancy.
func (a *PoolAllocator) Stats() []pool.Stats {
	return []pool.Stats{a.headers.Stats(), a.buffers.Stats()}
}

type poolStorage struct {
	a *PoolAllocator
}

func (s poolStorage) newHeader() (*Tensor, error) {
	t, err := s.a.headers.Get()
	if err != nil {
		logExhaustion(err, s.a.headers.Stats())
		return nil, err
	}
	return t, nil
}

func (s poolStorage) releaseHeader(t *Tensor) error {
	return s.a.headers.Put(t)
}

func (s poolStorage) newBuffer(n int, zero bool) ([]byte, error) {
	var (
		b   []byte
		err error
	)
	if zero {
		b, err = s.a.buffers.AllocZeroed(n)
	} else {
		b, err = s.a.buffers.Alloc(n)
	}
	if err != nil {
		logExhaustion(err, s.a.buffers.Stats())
		return nil, err
	}
	return b, nil
}

func (s poolStorage) releaseBuffer(b []byte) error {
	return s.a.buffers.Free(b)
}

func logExhaustion(err error, st pool.Stats) {
	if errors.Is(err, pool.ErrExhausted) {
		logger.Log.Debug("tensor arena exhausted", "pool", st.Name, "capacity", st.Capacity, "in_use", st.InUse)
	}
}
