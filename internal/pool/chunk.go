package pool

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

// Alignment is the byte alignment of every chunk handed out by a ChunkPool.
// It covers the widest SIMD register in common use (AVX-512).
const Alignment = 64

// ChunkPool is a fixed-capacity arena of equally sized byte chunks carved
// from one aligned block.
//
// The freelist is threaded through the free chunks themselves: the first
// four bytes of a free chunk hold the index of the next free chunk.
// A request larger than one chunk fails with ErrChunkTooLarge; chunks are
// never combined.
type ChunkPool struct {
	name      string
	raw       []byte // Backing allocation, kept for its lifetime.
	block     []byte // Aligned view of raw.
	chunkSize int
	capacity  int
	head      int32
	live      []bool

	inUse    int
	peak     int
	failures uint64
}

// NewChunkPool creates a pool of capacity chunks of at least chunkSize bytes.
// chunkSize is rounded up to a multiple of Alignment.
func NewChunkPool(name string, capacity, chunkSize int) (*ChunkPool, error) {
	if capacity <= 0 || capacity > math.MaxInt32 {
		return nil, fmt.Errorf("chunk pool %s: %w: %d", name, ErrInvalidCapacity, capacity)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk pool %s: %w: chunk size %d", name, ErrInvalidSize, chunkSize)
	}

	chunkSize = alignUp(chunkSize, Alignment)
	if chunkSize > math.MaxInt/capacity-Alignment {
		return nil, fmt.Errorf("chunk pool %s: %w: %d x %d bytes", name, ErrInvalidCapacity, capacity, chunkSize)
	}

	raw := make([]byte, capacity*chunkSize+Alignment)
	start := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) % Alignment); rem != 0 {
		start = Alignment - rem
	}

	p := &ChunkPool{
		name:      name,
		raw:       raw,
		block:     raw[start : start+capacity*chunkSize],
		chunkSize: chunkSize,
		capacity:  capacity,
		live:      make([]bool, capacity),
	}
	for i := 0; i < capacity-1; i++ {
		p.setNext(i, int32(i+1))
	}
	p.setNext(capacity-1, nilSlot)
	p.head = 0

	return p, nil
}

// Name returns the pool's name.
func (p *ChunkPool) Name() string {
	return p.name
}

// ChunkSize returns the usable size of one chunk in bytes.
func (p *ChunkPool) ChunkSize() int {
	return p.chunkSize
}

// Cap returns the number of chunks.
func (p *ChunkPool) Cap() int {
	return p.capacity
}

// Len returns the number of issued chunks.
func (p *ChunkPool) Len() int {
	return p.inUse
}

// Alloc pops a chunk and returns its first n bytes.
// The contents are unspecified.
func (p *ChunkPool) Alloc(n int) ([]byte, error) {
	if p.block == nil {
		return nil, fmt.Errorf("chunk pool %s: %w", p.name, ErrClosed)
	}
	if n <= 0 {
		return nil, fmt.Errorf("chunk pool %s: %w: %d bytes", p.name, ErrInvalidSize, n)
	}
	if n > p.chunkSize {
		return nil, fmt.Errorf("chunk pool %s: %w: %d > %d bytes", p.name, ErrChunkTooLarge, n, p.chunkSize)
	}
	if p.head == nilSlot {
		p.failures++
		return nil, fmt.Errorf("chunk pool %s: %w (capacity %d)", p.name, ErrExhausted, p.capacity)
	}

	i := int(p.head)
	p.head = p.next(i)
	p.live[i] = true

	p.inUse++
	if p.inUse > p.peak {
		p.peak = p.inUse
	}

	off := i * p.chunkSize
	return p.block[off : off+n : off+n], nil
}

// AllocZeroed is Alloc with the returned bytes cleared.
func (p *ChunkPool) AllocZeroed(n int) ([]byte, error) {
	b, err := p.Alloc(n)
	if err != nil {
		return nil, err
	}
	clear(b)
	return b, nil
}

// Free returns the chunk that b was sliced from to the head of the freelist.
func (p *ChunkPool) Free(b []byte) error {
	if p.block == nil {
		return fmt.Errorf("chunk pool %s: %w", p.name, ErrClosed)
	}

	i, ok := p.indexOf(b)
	if !ok {
		return fmt.Errorf("chunk pool %s: %w", p.name, ErrForeignSlot)
	}
	if !p.live[i] {
		return fmt.Errorf("chunk pool %s: %w: chunk %d", p.name, ErrDoubleFree, i)
	}

	p.live[i] = false
	p.setNext(i, p.head)
	p.head = int32(i)
	p.inUse--
	return nil
}

// Owns reports whether b starts at a chunk boundary of this pool.
func (p *ChunkPool) Owns(b []byte) bool {
	_, ok := p.indexOf(b)
	return ok
}

func (p *ChunkPool) indexOf(b []byte) (int, bool) {
	if len(b) == 0 || len(p.block) == 0 {
		return -1, false
	}

	base := uintptr(unsafe.Pointer(&p.block[0]))
	addr := uintptr(unsafe.Pointer(&b[0]))
	if addr < base {
		return -1, false
	}

	off := addr - base
	size := uintptr(p.chunkSize)
	if off%size != 0 || off/size >= uintptr(p.capacity) {
		return -1, false
	}
	return int(off / size), true
}

func (p *ChunkPool) next(i int) int32 {
	off := i * p.chunkSize
	return int32(binary.LittleEndian.Uint32(p.block[off : off+4]))
}

func (p *ChunkPool) setNext(i int, next int32) {
	off := i * p.chunkSize
	binary.LittleEndian.PutUint32(p.block[off:off+4], uint32(next))
}

// Stats returns the pool's occupancy counters.
func (p *ChunkPool) Stats() Stats {
	return Stats{
		Name:     p.name,
		Capacity: p.capacity,
		InUse:    p.inUse,
		Peak:     p.peak,
		Failures: p.failures,
	}
}

// Close drops the backing block. Chunks previously handed out must not be
// used afterwards.
func (p *ChunkPool) Close() {
	p.raw = nil
	p.block = nil
	p.live = nil
	p.head = nilSlot
	p.inUse = 0
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
