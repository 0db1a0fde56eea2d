package pool

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunkPool_RoundsChunkSize(t *testing.T) {
	p, err := NewChunkPool("data", 4, 100)
	require.NoError(t, err)
	assert.Equal(t, 128, p.ChunkSize())
	assert.Equal(t, 4, p.Cap())
}

func TestNewChunkPool_Invalid(t *testing.T) {
	_, err := NewChunkPool("data", 0, 64)
	require.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = NewChunkPool("data", 4, 0)
	require.ErrorIs(t, err, ErrInvalidSize)
}

func TestChunkPool_Alignment(t *testing.T) {
	p, err := NewChunkPool("data", 8, 96)
	require.NoError(t, err)

	for i := 0; i < p.Cap(); i++ {
		b, err := p.Alloc(8)
		require.NoError(t, err)
		addr := uintptr(unsafe.Pointer(&b[0]))
		assert.Zero(t, addr%Alignment, "chunk %d misaligned", i)
	}
}

func TestChunkPool_LIFOReuse(t *testing.T) {
	p, err := NewChunkPool("data", 6, 64)
	require.NoError(t, err)

	bufs := make([][]byte, 4)
	for i := range bufs {
		bufs[i], err = p.Alloc(16)
		require.NoError(t, err)
	}

	order := []int{1, 3, 0, 2}
	for _, i := range order {
		require.NoError(t, p.Free(bufs[i]))
	}

	for k := len(order) - 1; k >= 0; k-- {
		b, err := p.Alloc(32)
		require.NoError(t, err)
		assert.Equal(t, unsafe.Pointer(&bufs[order[k]][0]), unsafe.Pointer(&b[0]))
	}
}

func TestChunkPool_Exhaustion(t *testing.T) {
	const k = 3
	p, err := NewChunkPool("data", k, 64)
	require.NoError(t, err)

	held := make([][]byte, 0, k)
	for i := 0; i < k; i++ {
		b, err := p.Alloc(64)
		require.NoError(t, err)
		held = append(held, b)
	}

	_, err = p.Alloc(1)
	require.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, p.Free(held[0]))
	_, err = p.Alloc(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), p.Stats().Failures)
}

func TestChunkPool_TooLarge(t *testing.T) {
	p, err := NewChunkPool("data", 2, 64)
	require.NoError(t, err)

	_, err = p.Alloc(65)
	require.ErrorIs(t, err, ErrChunkTooLarge)
	_, err = p.Alloc(0)
	require.ErrorIs(t, err, ErrInvalidSize)
	assert.Equal(t, 0, p.Len(), "refused requests must not consume chunks")
}

func TestChunkPool_ZeroedAndBounded(t *testing.T) {
	p, err := NewChunkPool("data", 1, 64)
	require.NoError(t, err)

	b, err := p.Alloc(64)
	require.NoError(t, err)
	for i := range b {
		b[i] = 0xAB
	}
	require.NoError(t, p.Free(b))

	z, err := p.AllocZeroed(10)
	require.NoError(t, err)
	assert.Len(t, z, 10)
	assert.Equal(t, 10, cap(z))
	for _, v := range z {
		assert.Zero(t, v)
	}
}

func TestChunkPool_FreeErrors(t *testing.T) {
	p, err := NewChunkPool("data", 2, 64)
	require.NoError(t, err)

	b, err := p.Alloc(16)
	require.NoError(t, err)

	require.ErrorIs(t, p.Free(make([]byte, 16)), ErrForeignSlot)
	require.ErrorIs(t, p.Free(b[1:]), ErrForeignSlot, "interior pointer")
	require.ErrorIs(t, p.Free(nil), ErrForeignSlot)

	require.NoError(t, p.Free(b))
	require.ErrorIs(t, p.Free(b), ErrDoubleFree)
	assert.True(t, p.Owns(b))
}

func TestChunkPool_Close(t *testing.T) {
	p, err := NewChunkPool("data", 2, 64)
	require.NoError(t, err)

	p.Close()
	_, err = p.Alloc(8)
	require.ErrorIs(t, err, ErrClosed)
}
