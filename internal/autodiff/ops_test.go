package autodiff_test

import (
	"github.com/born-ml/gradarena/internal/autodiff"
	"github.com/born-ml/gradarena/internal/tensor"
)

// Minimal float32 operations used to build graphs in tests. They follow the
// contract real operator code uses: allocate the output, compute it, then
// link each differentiable operand.

func scale(g *autodiff.Graph, x *tensor.Tensor, c float32) (*tensor.Tensor, error) {
	y, err := g.Tensors().Alloc(x.Shape(), x.DType())
	if err != nil {
		return nil, err
	}
	xs, ys := x.AsFloat32(), y.AsFloat32()
	for i := range ys {
		ys[i] = c * xs[i]
	}

	if err := g.Link(x, 0, y, scaleBackward); err != nil {
		return nil, err
	}
	if n := g.Node(y); n != nil {
		if err := n.Context().SetScalar(0, float64(c)); err != nil {
			return nil, err
		}
	}
	return y, nil
}

func scaleBackward(ctx *autodiff.Context, grad, out *tensor.Tensor) error {
	c := float32(ctx.Scalar(0))
	gs, os := grad.AsFloat32(), out.AsFloat32()
	for i := range os {
		os[i] = c * gs[i]
	}
	return nil
}

func add(g *autodiff.Graph, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := g.Tensors().Alloc(a.Shape(), a.DType())
	if err != nil {
		return nil, err
	}
	as, bs, ys := a.AsFloat32(), b.AsFloat32(), y.AsFloat32()
	for i := range ys {
		ys[i] = as[i] + bs[i]
	}

	if err := g.Link(a, 0, y, passBackward); err != nil {
		return nil, err
	}
	if err := g.Link(b, 1, y, passBackward); err != nil {
		return nil, err
	}
	return y, nil
}

func passBackward(_ *autodiff.Context, grad, out *tensor.Tensor) error {
	copy(out.AsFloat32(), grad.AsFloat32())
	return nil
}

func mul(g *autodiff.Graph, a, b *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := g.Tensors().Alloc(a.Shape(), a.DType())
	if err != nil {
		return nil, err
	}
	as, bs, ys := a.AsFloat32(), b.AsFloat32(), y.AsFloat32()
	for i := range ys {
		ys[i] = as[i] * bs[i]
	}

	if err := g.Link(a, 0, y, mulBackward(1)); err != nil {
		return nil, err
	}
	if err := g.Link(b, 1, y, mulBackward(0)); err != nil {
		return nil, err
	}
	return y, nil
}

// mulBackward multiplies the incoming gradient by the other operand.
func mulBackward(other int) autodiff.BackwardFunc {
	return func(ctx *autodiff.Context, grad, out *tensor.Tensor) error {
		gs, vs, os := grad.AsFloat32(), ctx.Operand(other).AsFloat32(), out.AsFloat32()
		for i := range os {
			os[i] = gs[i] * vs[i]
		}
		return nil
	}
}

func sum(g *autodiff.Graph, x *tensor.Tensor) (*tensor.Tensor, error) {
	y, err := g.Tensors().Alloc(tensor.Shape{}, x.DType())
	if err != nil {
		return nil, err
	}
	var total float32
	for _, v := range x.AsFloat32() {
		total += v
	}
	y.AsFloat32()[0] = total

	if err := g.Link(x, 0, y, sumBackward); err != nil {
		return nil, err
	}
	return y, nil
}

func sumBackward(_ *autodiff.Context, grad, out *tensor.Tensor) error {
	out.Fill(float64(grad.AsFloat32()[0]))
	return nil
}

// square keeps 2x as an owned helper for its backward pass.
func square(g *autodiff.Graph, x *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor, error) {
	a := g.Tensors()
	y, err := a.Alloc(x.Shape(), x.DType())
	if err != nil {
		return nil, nil, err
	}
	twice, err := a.NoGradAlloc(x.Shape(), x.DType())
	if err != nil {
		return nil, nil, err
	}
	xs, ys, ts := x.AsFloat32(), y.AsFloat32(), twice.AsFloat32()
	for i := range ys {
		ys[i] = xs[i] * xs[i]
		ts[i] = 2 * xs[i]
	}

	if err := g.Link(x, 0, y, squareBackward); err != nil {
		return nil, nil, err
	}
	if err := g.Node(y).Context().SetOwned(0, twice); err != nil {
		return nil, nil, err
	}
	return y, twice, nil
}

func squareBackward(ctx *autodiff.Context, grad, out *tensor.Tensor) error {
	gs, ts, os := grad.AsFloat32(), ctx.Owned(0).AsFloat32(), out.AsFloat32()
	for i := range os {
		os[i] = gs[i] * ts[i]
	}
	return nil
}
