package autodiff

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/born-ml/gradarena/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Slots(t *testing.T) {
	var c Context

	require.NoError(t, c.SetScalar(MaxScalars-1, 2.5))
	assert.InDelta(t, 2.5, c.Scalar(MaxScalars-1), 1e-12)
	assert.Zero(t, c.Scalar(MaxScalars))
	require.ErrorIs(t, c.SetScalar(MaxScalars, 1), ErrSlotRange)
	require.ErrorIs(t, c.SetScalar(-1, 1), ErrSlotRange)

	x := &tensor.Tensor{}
	require.NoError(t, c.SetOperand(0, x))
	assert.Same(t, x, c.Operand(0))
	assert.Nil(t, c.Operand(MaxOperands))
	require.ErrorIs(t, c.SetOperand(MaxOperands, x), ErrSlotRange)

	require.ErrorIs(t, c.SetOwned(0, nil), tensor.ErrNilTensor)
	require.ErrorIs(t, c.SetOwned(MaxOwned, x), ErrSlotRange)
	assert.Nil(t, c.Owned(-1))
}

func TestContext_OwnedSlotProtected(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)
	a := tensor.NewHeapAllocator(mem)

	first, err := a.NoGradAlloc(tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)
	second, err := a.NoGradAlloc(tensor.Shape{2}, tensor.Float32)
	require.NoError(t, err)

	c := Context{alloc: a}
	require.NoError(t, c.SetOwned(0, first))
	require.ErrorIs(t, c.SetOwned(0, second), ErrSlotOccupied)
	assert.Same(t, first, c.Owned(0))
	assert.Equal(t, 1, c.NumOwned())

	require.NoError(t, c.SetOwned(MaxOwned-1, second))
	assert.Equal(t, 2, c.NumOwned())

	require.NoError(t, c.cleanupOwned())
	assert.Zero(t, c.NumOwned())
	assert.Nil(t, c.Owned(0))
	assert.Nil(t, c.Owned(MaxOwned-1))

	require.NoError(t, c.cleanupOwned(), "second cleanup is a no-op")
}

func TestContext_CleanupWithoutAllocator(t *testing.T) {
	var c Context
	require.NoError(t, c.SetOwned(0, &tensor.Tensor{}))
	require.ErrorIs(t, c.cleanupOwned(), tensor.ErrNilAllocator)
}
