package nn

import (
	"math"
	"math/rand"
)

// simpleRNN is an Elman recurrent layer with tanh activation
type simpleRNN struct {
	wx, wh, b *Param
	in, units int
	returnSeq bool
}

type rnnCache struct {
	xs [][]float64
	hs [][]float64 // hs[0] is the zero initial state
}

func newSimpleRNN(name string, in, units int, returnSeq bool, rng *rand.Rand) *simpleRNN {
	r := &simpleRNN{
		wx:        newParam(name+"/kernel", units, in),
		wh:        newParam(name+"/recurrent_kernel", units, units),
		b:         newParam(name+"/bias", 1, units),
		in:        in,
		units:     units,
		returnSeq: returnSeq,
	}
	r.wx.glorot(rng, in, units)
	r.wh.glorot(rng, units, units)
	return r
}

func (r *simpleRNN) forward(xs [][]float64) ([][]float64, any) {
	hs := make([][]float64, len(xs)+1)
	hs[0] = zeros(r.units)
	for t, x := range xs {
		a := make([]float64, r.units)
		copy(a, r.b.W)
		r.wx.mulVecAdd(x, a)
		r.wh.mulVecAdd(hs[t], a)
		for i, v := range a {
			a[i] = math.Tanh(v)
		}
		hs[t+1] = a
	}
	cache := &rnnCache{xs: xs, hs: hs}
	if r.returnSeq {
		return hs[1:], cache
	}
	return [][]float64{hs[len(xs)]}, cache
}

func (r *simpleRNN) backward(cache any, dys [][]float64) [][]float64 {
	c := cache.(*rnnCache)
	steps := len(c.xs)
	dxs := make([][]float64, steps)
	dhNext := zeros(r.units)
	for t := steps - 1; t >= 0; t-- {
		dh := make([]float64, r.units)
		copy(dh, dhNext)
		if r.returnSeq {
			addInto(dh, dys[t])
		} else if t == steps-1 {
			addInto(dh, dys[0])
		}
		h := c.hs[t+1]
		da := make([]float64, r.units)
		for i := range da {
			da[i] = dh[i] * (1 - h[i]*h[i])
		}
		r.wx.outerAdd(da, c.xs[t])
		r.wh.outerAdd(da, c.hs[t])
		r.b.biasAdd(da)

		dx := zeros(r.in)
		r.wx.mulTransVecAdd(da, dx)
		dxs[t] = dx

		dhNext = zeros(r.units)
		r.wh.mulTransVecAdd(da, dhNext)
	}
	return dxs
}

func (r *simpleRNN) params() []*Param { return []*Param{r.wx, r.wh, r.b} }
func (r *simpleRNN) outDim() int      { return r.units }

// lstm is a long short-term memory layer; gate order is input, forget, cell, output
type lstm struct {
	wx, wh, b *Param
	in, units int
	returnSeq bool
}

type lstmStep struct {
	x, hPrev, cPrev []float64
	i, f, g, o      []float64
	tanhC           []float64
}

type lstmCache struct {
	steps []lstmStep
}

func newLSTM(name string, in, units int, returnSeq bool, rng *rand.Rand) *lstm {
	l := &lstm{
		wx:        newParam(name+"/kernel", 4*units, in),
		wh:        newParam(name+"/recurrent_kernel", 4*units, units),
		b:         newParam(name+"/bias", 1, 4*units),
		in:        in,
		units:     units,
		returnSeq: returnSeq,
	}
	l.wx.glorot(rng, in, 4*units)
	l.wh.glorot(rng, units, 4*units)
	// unit forget bias
	for i := units; i < 2*units; i++ {
		l.b.W[i] = 1
	}
	return l
}

func (l *lstm) forward(xs [][]float64) ([][]float64, any) {
	u := l.units
	h := zeros(u)
	c := zeros(u)
	cache := &lstmCache{steps: make([]lstmStep, len(xs))}
	outs := make([][]float64, 0, len(xs))
	for t, x := range xs {
		z := make([]float64, 4*u)
		copy(z, l.b.W)
		l.wx.mulVecAdd(x, z)
		l.wh.mulVecAdd(h, z)

		st := lstmStep{
			x: x, hPrev: h, cPrev: c,
			i: zeros(u), f: zeros(u), g: zeros(u), o: zeros(u),
			tanhC: zeros(u),
		}
		hNext := zeros(u)
		cNext := zeros(u)
		for k := 0; k < u; k++ {
			st.i[k] = sigmoid(z[k])
			st.f[k] = sigmoid(z[u+k])
			st.g[k] = math.Tanh(z[2*u+k])
			st.o[k] = sigmoid(z[3*u+k])
			cNext[k] = st.f[k]*c[k] + st.i[k]*st.g[k]
			st.tanhC[k] = math.Tanh(cNext[k])
			hNext[k] = st.o[k] * st.tanhC[k]
		}
		cache.steps[t] = st
		h, c = hNext, cNext
		if l.returnSeq {
			outs = append(outs, h)
		}
	}
	if !l.returnSeq {
		outs = append(outs, h)
	}
	return outs, cache
}

func (l *lstm) backward(cache any, dys [][]float64) [][]float64 {
	lc := cache.(*lstmCache)
	u := l.units
	steps := len(lc.steps)
	dxs := make([][]float64, steps)
	dhNext := zeros(u)
	dcNext := zeros(u)
	for t := steps - 1; t >= 0; t-- {
		st := lc.steps[t]
		dh := make([]float64, u)
		copy(dh, dhNext)
		if l.returnSeq {
			addInto(dh, dys[t])
		} else if t == steps-1 {
			addInto(dh, dys[0])
		}

		dz := make([]float64, 4*u)
		dcPrev := zeros(u)
		for k := 0; k < u; k++ {
			dc := dcNext[k] + dh[k]*st.o[k]*(1-st.tanhC[k]*st.tanhC[k])
			do := dh[k] * st.tanhC[k]
			di := dc * st.g[k]
			dg := dc * st.i[k]
			df := dc * st.cPrev[k]
			dcPrev[k] = dc * st.f[k]

			dz[k] = di * st.i[k] * (1 - st.i[k])
			dz[u+k] = df * st.f[k] * (1 - st.f[k])
			dz[2*u+k] = dg * (1 - st.g[k]*st.g[k])
			dz[3*u+k] = do * st.o[k] * (1 - st.o[k])
		}
		l.wx.outerAdd(dz, st.x)
		l.wh.outerAdd(dz, st.hPrev)
		l.b.biasAdd(dz)

		dx := zeros(l.in)
		l.wx.mulTransVecAdd(dz, dx)
		dxs[t] = dx

		dhNext = zeros(u)
		l.wh.mulTransVecAdd(dz, dhNext)
		dcNext = dcPrev
	}
	return dxs
}

func (l *lstm) params() []*Param { return []*Param{l.wx, l.wh, l.b} }
func (l *lstm) outDim() int      { return l.units }

// bidirectional runs one layer forward and another over the reversed
// sequence, concatenating their outputs
type bidirectional struct {
	fwd, bwd  layer
	returnSeq bool
}

type biCache struct {
	fwd, bwd any
}

func (b *bidirectional) forward(xs [][]float64) ([][]float64, any) {
	yf, cf := b.fwd.forward(xs)
	yb, cb := b.bwd.forward(reverseSeq(xs))
	if b.returnSeq {
		yb = reverseSeq(yb)
	}
	out := make([][]float64, len(yf))
	for t := range yf {
		v := make([]float64, 0, len(yf[t])+len(yb[t]))
		v = append(v, yf[t]...)
		v = append(v, yb[t]...)
		out[t] = v
	}
	return out, &biCache{fwd: cf, bwd: cb}
}

func (b *bidirectional) backward(cache any, dys [][]float64) [][]float64 {
	bc := cache.(*biCache)
	split := b.fwd.outDim()
	df := make([][]float64, len(dys))
	db := make([][]float64, len(dys))
	for t, dy := range dys {
		df[t] = dy[:split]
		db[t] = dy[split:]
	}
	if b.returnSeq {
		db = reverseSeq(db)
	}
	dxf := b.fwd.backward(bc.fwd, df)
	dxb := reverseSeq(b.bwd.backward(bc.bwd, db))
	for t := range dxf {
		addInto(dxf[t], dxb[t])
	}
	return dxf
}

func (b *bidirectional) params() []*Param {
	return append(b.fwd.params(), b.bwd.params()...)
}

func (b *bidirectional) outDim() int { return b.fwd.outDim() + b.bwd.outDim() }

func addInto(dst, src []float64) {
	for i := range src {
		dst[i] += src[i]
	}
}
