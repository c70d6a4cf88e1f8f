package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Param is a trainable weight matrix stored row-major
type Param struct {
	Name string
	Rows int
	Cols int
	W    []float64

	g []float64
	m []float64
	v []float64
}

func newParam(name string, rows, cols int) *Param {
	n := rows * cols
	return &Param{
		Name: name,
		Rows: rows,
		Cols: cols,
		W:    make([]float64, n),
		g:    make([]float64, n),
		m:    make([]float64, n),
		v:    make([]float64, n),
	}
}

func (p *Param) row(r int) []float64 {
	return p.W[r*p.Cols : (r+1)*p.Cols]
}

func (p *Param) gradRow(r int) []float64 {
	return p.g[r*p.Cols : (r+1)*p.Cols]
}

func (p *Param) zeroGrad() {
	for i := range p.g {
		p.g[i] = 0
	}
}

// glorot fills the weights from a Glorot uniform distribution
func (p *Param) glorot(rng *rand.Rand, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range p.W {
		p.W[i] = (rng.Float64()*2 - 1) * limit
	}
}

func (p *Param) uniform(rng *rand.Rand, limit float64) {
	for i := range p.W {
		p.W[i] = (rng.Float64()*2 - 1) * limit
	}
}

// mulVecAdd computes out += W x
func (p *Param) mulVecAdd(x, out []float64) {
	for r := 0; r < p.Rows; r++ {
		out[r] += floats.Dot(p.row(r), x)
	}
}

// mulTransVecAdd computes out += Wᵀ dz
func (p *Param) mulTransVecAdd(dz, out []float64) {
	for r := 0; r < p.Rows; r++ {
		if dz[r] == 0 {
			continue
		}
		floats.AddScaled(out, dz[r], p.row(r))
	}
}

// outerAdd accumulates the gradient dz ⊗ x
func (p *Param) outerAdd(dz, x []float64) {
	for r := 0; r < p.Rows; r++ {
		if dz[r] == 0 {
			continue
		}
		floats.AddScaled(p.gradRow(r), dz[r], x)
	}
}

// biasAdd accumulates a bias gradient (single-row param)
func (p *Param) biasAdd(dz []float64) {
	floats.Add(p.g, dz)
}

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
)

// adam applies one Adam step to every param
type adam struct {
	lr   float64
	step int
}

func (a *adam) update(params []*Param) {
	a.step++
	c1 := 1 - math.Pow(adamBeta1, float64(a.step))
	c2 := 1 - math.Pow(adamBeta2, float64(a.step))
	for _, p := range params {
		for i, g := range p.g {
			if g == 0 && p.m[i] == 0 && p.v[i] == 0 {
				continue
			}
			p.m[i] = adamBeta1*p.m[i] + (1-adamBeta1)*g
			p.v[i] = adamBeta2*p.v[i] + (1-adamBeta2)*g*g
			mHat := p.m[i] / c1
			vHat := p.v[i] / c2
			p.W[i] -= a.lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
		}
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// softmax returns a normalized probability vector
func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	max := floats.Max(logits)
	for i, v := range logits {
		out[i] = math.Exp(v - max)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

func zeros(n int) []float64 {
	return make([]float64, n)
}

func zeroSeq(t, d int) [][]float64 {
	out := make([][]float64, t)
	for i := range out {
		out[i] = make([]float64, d)
	}
	return out
}

func reverseSeq(xs [][]float64) [][]float64 {
	out := make([][]float64, len(xs))
	for i, x := range xs {
		out[len(xs)-1-i] = x
	}
	return out
}
