package autodiff_test

import (
	"testing"

	"github.com/born-ml/gradarena/internal/autodiff"
	"github.com/born-ml/gradarena/internal/pool"
	"github.com/born-ml/gradarena/internal/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLink_Validation(t *testing.T) {
	f := newFixture(t, 32, 8)
	g := f.graph

	x := f.leaf(t, 1)
	y := f.leaf(t, 2)
	ng, err := f.tensors.NoGradAlloc(tensor.Shape{1}, tensor.Float32)
	require.NoError(t, err)

	tests := []struct {
		name    string
		operand *tensor.Tensor
		index   int
		result  *tensor.Tensor
		fn      autodiff.BackwardFunc
		want    error
	}{
		{"nil operand", nil, 0, y, passBackward, tensor.ErrNilTensor},
		{"nil result", x, 0, nil, passBackward, tensor.ErrNilTensor},
		{"nil function", x, 0, y, nil, autodiff.ErrNilBackward},
		{"operand without gradient", ng, 0, y, passBackward, autodiff.ErrNoGradient},
		{"result without gradient", x, 0, ng, passBackward, autodiff.ErrNoGradient},
		{"self link", x, 0, x, passBackward, autodiff.ErrSelfLink},
		{"negative index", x, -1, y, passBackward, autodiff.ErrSlotRange},
		{"index too large", x, autodiff.MaxOperands, y, passBackward, autodiff.ErrSlotRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Link(tt.operand, tt.index, tt.result, tt.fn)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, 0, f.nodes.Stats().InUse)
		})
	}
}

func TestLink_RecordsEdges(t *testing.T) {
	f := newFixture(t, 32, 8)
	g := f.graph

	a := f.leaf(t, 1)
	b := f.leaf(t, 2)
	y, err := mul(g, a, b)
	require.NoError(t, err)

	ny := g.Node(y)
	require.NotNil(t, ny)
	assert.Same(t, y, ny.Tensor())
	assert.Equal(t, []autodiff.Edge{{Node: a.Node(), Operand: 0}, {Node: b.Node(), Operand: 1}}, ny.Children())
	assert.Same(t, a, ny.Context().Operand(0))
	assert.Same(t, b, ny.Context().Operand(1))
	assert.NotNil(t, ny.Function(0))
	assert.Nil(t, ny.Function(2))
	assert.Nil(t, ny.Function(-1))

	assert.Equal(t, []tensor.NodeID{y.Node()}, g.Node(a).Parents())
	assert.Empty(t, g.Node(a).Children())
	assert.Zero(t, g.Node(a).PushedCount())
	assert.False(t, g.Node(a).Ready())
}

func TestLink_OperandTakenLeavesGraphUnchanged(t *testing.T) {
	f := newFixture(t, 32, 8)
	g := f.graph

	a := f.leaf(t, 1)
	b := f.leaf(t, 2)
	y := f.leaf(t, 0)
	require.NoError(t, g.Link(a, 0, y, passBackward))

	err := g.Link(b, 0, y, passBackward)
	require.ErrorIs(t, err, autodiff.ErrOperandTaken)

	assert.Equal(t, tensor.NoNode, b.Node(), "fresh operand node rolled back")
	assert.Len(t, g.Node(y).Children(), 1)
	assert.Same(t, a, g.Node(y).Context().Operand(0))
	assert.Equal(t, 2, f.nodes.Stats().InUse)
}

func TestLink_TooManyParents(t *testing.T) {
	f := newFixture(t, 64, 32)
	g := f.graph

	x := f.leaf(t, 1)
	for i := 0; i < autodiff.MaxParents; i++ {
		_, err := scale(g, x, 1)
		require.NoError(t, err)
	}
	inUse := f.nodes.Stats().InUse

	y := f.leaf(t, 0)
	err := g.Link(x, 0, y, scaleBackward)
	require.ErrorIs(t, err, autodiff.ErrTooManyParents)

	assert.Len(t, g.Node(x).Parents(), autodiff.MaxParents)
	assert.Equal(t, tensor.NoNode, y.Node(), "fresh result node rolled back")
	assert.Equal(t, inUse, f.nodes.Stats().InUse)
}

func TestLink_NodeExhaustionRollsBack(t *testing.T) {
	f := newFixture(t, 16, 1)
	g := f.graph

	x := f.leaf(t, 1)
	y := f.leaf(t, 2)
	err := g.Link(x, 0, y, passBackward)
	require.ErrorIs(t, err, pool.ErrExhausted)

	assert.Equal(t, tensor.NoNode, x.Node())
	assert.Equal(t, tensor.NoNode, y.Node())
	assert.Equal(t, 0, f.nodes.Stats().InUse)
	assert.Equal(t, uint64(1), f.nodes.Stats().Failures)
}

func TestLink_StaleNode(t *testing.T) {
	f := newFixture(t, 16, 4)
	g := f.graph

	x := f.leaf(t, 1)
	y := f.leaf(t, 2)
	x.SetNode(3)

	assert.Nil(t, g.Node(x))
	require.ErrorIs(t, g.Link(x, 0, y, passBackward), autodiff.ErrStaleNode)
	require.ErrorIs(t, g.Backward(x), autodiff.ErrStaleNode)
	assert.Equal(t, 0, f.nodes.Stats().InUse)
}
