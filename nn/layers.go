package nn

import (
	"math/rand"
)

// layer maps a sequence of vectors to another sequence of vectors.
// Vector-valued stages use sequences of length one.
type layer interface {
	forward(xs [][]float64) ([][]float64, any)
	backward(cache any, dys [][]float64) [][]float64
	params() []*Param
	outDim() int
}

// dense is a fully connected layer applied at every timestep
type dense struct {
	w, b    *Param
	in, out int
	relu    bool
}

type denseCache struct {
	xs, ys [][]float64
}

func newDense(name string, in, out int, relu bool, rng *rand.Rand) *dense {
	d := &dense{
		w:    newParam(name+"/kernel", out, in),
		b:    newParam(name+"/bias", 1, out),
		in:   in,
		out:  out,
		relu: relu,
	}
	d.w.glorot(rng, in, out)
	return d
}

func (d *dense) forward(xs [][]float64) ([][]float64, any) {
	ys := make([][]float64, len(xs))
	for t, x := range xs {
		y := make([]float64, d.out)
		copy(y, d.b.W)
		d.w.mulVecAdd(x, y)
		if d.relu {
			for i, v := range y {
				if v < 0 {
					y[i] = 0
				}
			}
		}
		ys[t] = y
	}
	return ys, &denseCache{xs: xs, ys: ys}
}

func (d *dense) backward(cache any, dys [][]float64) [][]float64 {
	c := cache.(*denseCache)
	dxs := make([][]float64, len(c.xs))
	for t, x := range c.xs {
		dz := make([]float64, d.out)
		copy(dz, dys[t])
		if d.relu {
			for i, y := range c.ys[t] {
				if y <= 0 {
					dz[i] = 0
				}
			}
		}
		d.w.outerAdd(dz, x)
		d.b.biasAdd(dz)
		dx := zeros(d.in)
		d.w.mulTransVecAdd(dz, dx)
		dxs[t] = dx
	}
	return dxs
}

func (d *dense) params() []*Param { return []*Param{d.w, d.b} }
func (d *dense) outDim() int      { return d.out }

// conv1d is a valid-padding 1D convolution with ReLU activation
type conv1d struct {
	w, b             *Param
	in, filters, ker int
}

type convCache struct {
	windows [][]float64
	ys      [][]float64
	steps   int
}

func newConv1D(name string, in, filters, kernel int, rng *rand.Rand) *conv1d {
	c := &conv1d{
		w:       newParam(name+"/kernel", filters, kernel*in),
		b:       newParam(name+"/bias", 1, filters),
		in:      in,
		filters: filters,
		ker:     kernel,
	}
	c.w.glorot(rng, kernel*in, filters)
	return c
}

func (c *conv1d) forward(xs [][]float64) ([][]float64, any) {
	steps := len(xs) - c.ker + 1
	if steps < 1 {
		steps = 0
	}
	cache := &convCache{steps: len(xs)}
	ys := make([][]float64, steps)
	for t := 0; t < steps; t++ {
		win := make([]float64, 0, c.ker*c.in)
		for j := 0; j < c.ker; j++ {
			win = append(win, xs[t+j]...)
		}
		y := make([]float64, c.filters)
		copy(y, c.b.W)
		c.w.mulVecAdd(win, y)
		for i, v := range y {
			if v < 0 {
				y[i] = 0
			}
		}
		cache.windows = append(cache.windows, win)
		ys[t] = y
	}
	cache.ys = ys
	return ys, cache
}

func (c *conv1d) backward(cache any, dys [][]float64) [][]float64 {
	cc := cache.(*convCache)
	dxs := zeroSeq(cc.steps, c.in)
	for t, win := range cc.windows {
		dz := make([]float64, c.filters)
		for i, y := range cc.ys[t] {
			if y > 0 {
				dz[i] = dys[t][i]
			}
		}
		c.w.outerAdd(dz, win)
		c.b.biasAdd(dz)
		dwin := zeros(c.ker * c.in)
		c.w.mulTransVecAdd(dz, dwin)
		for j := 0; j < c.ker; j++ {
			dx := dxs[t+j]
			for k := 0; k < c.in; k++ {
				dx[k] += dwin[j*c.in+k]
			}
		}
	}
	return dxs
}

func (c *conv1d) params() []*Param { return []*Param{c.w, c.b} }
func (c *conv1d) outDim() int      { return c.filters }

// maxPool1D keeps the channel-wise maximum of each non-overlapping window
type maxPool1D struct {
	size, dim int
}

type poolCache struct {
	argmax [][]int
	steps  int
}

func (p *maxPool1D) forward(xs [][]float64) ([][]float64, any) {
	steps := len(xs) / p.size
	cache := &poolCache{argmax: make([][]int, steps), steps: len(xs)}
	ys := make([][]float64, steps)
	for t := 0; t < steps; t++ {
		y := make([]float64, p.dim)
		arg := make([]int, p.dim)
		for k := 0; k < p.dim; k++ {
			best := t * p.size
			for j := t*p.size + 1; j < (t+1)*p.size; j++ {
				if xs[j][k] > xs[best][k] {
					best = j
				}
			}
			y[k] = xs[best][k]
			arg[k] = best
		}
		ys[t] = y
		cache.argmax[t] = arg
	}
	return ys, cache
}

func (p *maxPool1D) backward(cache any, dys [][]float64) [][]float64 {
	pc := cache.(*poolCache)
	dxs := zeroSeq(pc.steps, p.dim)
	for t, arg := range pc.argmax {
		for k, src := range arg {
			dxs[src][k] += dys[t][k]
		}
	}
	return dxs
}

func (p *maxPool1D) params() []*Param { return nil }
func (p *maxPool1D) outDim() int      { return p.dim }

// globalMaxPool reduces a sequence to one vector of channel maxima
type globalMaxPool struct {
	dim int
}

func (p *globalMaxPool) forward(xs [][]float64) ([][]float64, any) {
	y := make([]float64, p.dim)
	arg := make([]int, p.dim)
	for k := 0; k < p.dim; k++ {
		best := 0
		for t := 1; t < len(xs); t++ {
			if xs[t][k] > xs[best][k] {
				best = t
			}
		}
		if len(xs) > 0 {
			y[k] = xs[best][k]
		}
		arg[k] = best
	}
	return [][]float64{y}, &poolCache{argmax: [][]int{arg}, steps: len(xs)}
}

func (p *globalMaxPool) backward(cache any, dys [][]float64) [][]float64 {
	pc := cache.(*poolCache)
	dxs := zeroSeq(pc.steps, p.dim)
	if pc.steps == 0 {
		return dxs
	}
	for k, src := range pc.argmax[0] {
		dxs[src][k] += dys[0][k]
	}
	return dxs
}

func (p *globalMaxPool) params() []*Param { return nil }
func (p *globalMaxPool) outDim() int      { return p.dim }
