// Package nn implements the small sequence classifiers used to label emails.
//
// A model embeds token indices, runs them through an architecture-specific
// stack of layers and ends in a softmax over the classes. Forward passes keep
// no state on the model, so Predict is safe for concurrent use once training
// has finished.
package nn

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Architecture names the layer stack between the embedding and the output
type Architecture string

const (
	RNN       Architecture = "RNN"
	LSTM      Architecture = "LSTM"
	BiLSTM    Architecture = "BiLSTM"
	CNN       Architecture = "CNN"
	BiLSTMCNN Architecture = "BiLSTM+CNN"
)

// Architectures lists every supported architecture
var Architectures = []Architecture{RNN, LSTM, BiLSTM, CNN, BiLSTMCNN}

var (
	ErrUnknownArchitecture = errors.New("unknown model type")
	ErrInvalidConfig       = errors.New("invalid model config")
)

// ParseArchitecture validates a model type name
func ParseArchitecture(name string) (Architecture, error) {
	for _, a := range Architectures {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownArchitecture, name)
}

// Config describes the shape of a model
type Config struct {
	Architecture Architecture `json:"architecture"`
	VocabSize    int          `json:"vocab_size"`
	MaxLen       int          `json:"max_len"`
	NumClasses   int          `json:"num_classes"`
	EmbeddingDim int          `json:"embedding_dim"`
	Units        int          `json:"units"`
	DenseUnits   int          `json:"dense_units"`
	Filters      int          `json:"filters"`
	KernelSize   int          `json:"kernel_size"`
	LearningRate float64      `json:"learning_rate"`
	Seed         int64        `json:"seed"`
}

const (
	DefaultEmbeddingDim = 32
	DefaultUnits        = 32
	DefaultDenseUnits   = 32
	DefaultFilters      = 32
	DefaultKernelSize   = 5
	DefaultLearningRate = 1e-3
	DefaultSeed         = 42
)

func (c Config) withDefaults() Config {
	if c.EmbeddingDim == 0 {
		c.EmbeddingDim = DefaultEmbeddingDim
	}
	if c.Units == 0 {
		c.Units = DefaultUnits
	}
	if c.DenseUnits == 0 {
		c.DenseUnits = DefaultDenseUnits
	}
	if c.Filters == 0 {
		c.Filters = DefaultFilters
	}
	if c.KernelSize == 0 {
		c.KernelSize = DefaultKernelSize
	}
	if c.LearningRate == 0 {
		c.LearningRate = DefaultLearningRate
	}
	if c.Seed == 0 {
		c.Seed = DefaultSeed
	}
	return c
}

// Upper bounds on a model's shape. Any config within them fits in memory.
const (
	maxDim    = 1 << 12
	maxVocab  = 1 << 20
	maxLen    = 1 << 14
	maxParams = 1 << 27
)

func (c Config) validate() error {
	if c.VocabSize < 1 || c.MaxLen < 1 || c.NumClasses < 2 {
		return fmt.Errorf("%w: vocab_size=%d max_len=%d num_classes=%d",
			ErrInvalidConfig, c.VocabSize, c.MaxLen, c.NumClasses)
	}
	if c.VocabSize > maxVocab || c.MaxLen > maxLen || c.NumClasses > maxDim {
		return fmt.Errorf("%w: vocab_size=%d max_len=%d num_classes=%d exceed limits",
			ErrInvalidConfig, c.VocabSize, c.MaxLen, c.NumClasses)
	}
	for _, d := range []struct {
		name  string
		value int
	}{
		{"embedding_dim", c.EmbeddingDim},
		{"units", c.Units},
		{"dense_units", c.DenseUnits},
		{"filters", c.Filters},
		{"kernel_size", c.KernelSize},
	} {
		if d.value < 1 || d.value > maxDim {
			return fmt.Errorf("%w: %s=%d out of range [1, %d]", ErrInvalidConfig, d.name, d.value, maxDim)
		}
	}
	if math.IsNaN(c.LearningRate) || c.LearningRate <= 0 {
		return fmt.Errorf("%w: learning_rate=%v", ErrInvalidConfig, c.LearningRate)
	}
	if n := c.VocabSize * c.EmbeddingDim; n > maxParams {
		return fmt.Errorf("%w: embedding of %d weights exceeds %d", ErrInvalidConfig, n, maxParams)
	}
	return nil
}

// Model is a trainable sequence classifier
type Model struct {
	cfg    Config
	embed  *Param
	layers []layer
	params []*Param
	opt    *adam
	minLen int
}

// New builds a freshly initialized model
func New(cfg Config) (*Model, error) {
	cfg = cfg.withDefaults()
	if _, err := ParseArchitecture(string(cfg.Architecture)); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &Model{
		cfg:   cfg,
		embed: newParam("embedding/embeddings", cfg.VocabSize, cfg.EmbeddingDim),
		opt:   &adam{lr: cfg.LearningRate},
	}
	m.embed.uniform(rng, 0.05)

	e, u, h, k := cfg.EmbeddingDim, cfg.Units, cfg.DenseUnits, cfg.NumClasses
	m.minLen = 1
	switch cfg.Architecture {
	case RNN:
		m.layers = []layer{
			newSimpleRNN("simple_rnn", e, u, false, rng),
			newDense("dense_out", u, k, false, rng),
		}
	case LSTM:
		m.layers = []layer{
			newLSTM("lstm", e, u, false, rng),
			newDense("dense", u, h, true, rng),
			newDense("dense_out", h, k, false, rng),
		}
	case BiLSTM:
		m.layers = []layer{
			&bidirectional{
				fwd: newLSTM("bidirectional/forward_lstm", e, u, false, rng),
				bwd: newLSTM("bidirectional/backward_lstm", e, u, false, rng),
			},
			newDense("dense", 2*u, h, true, rng),
			newDense("dense_out", h, k, false, rng),
		}
	case CNN:
		m.minLen = cfg.KernelSize
		m.layers = []layer{
			newConv1D("conv1d", e, cfg.Filters, cfg.KernelSize, rng),
			&globalMaxPool{dim: cfg.Filters},
			newDense("dense_out", cfg.Filters, k, false, rng),
		}
	case BiLSTMCNN:
		m.minLen = cfg.KernelSize + 1
		m.layers = []layer{
			newConv1D("conv1d", e, cfg.Filters, cfg.KernelSize, rng),
			&maxPool1D{size: 2, dim: cfg.Filters},
			&bidirectional{
				fwd:       newLSTM("bidirectional/forward_lstm", cfg.Filters, u, true, rng),
				bwd:       newLSTM("bidirectional/backward_lstm", cfg.Filters, u, true, rng),
				returnSeq: true,
			},
			&globalMaxPool{dim: 2 * u},
			newDense("dense", 2*u, h, true, rng),
			newDense("dense_out", h, k, false, rng),
		}
	}

	m.params = append(m.params, m.embed)
	for _, l := range m.layers {
		m.params = append(m.params, l.params()...)
	}
	return m, nil
}

// Config returns the model configuration with defaults applied
func (m *Model) Config() Config {
	return m.cfg
}

// NumParams counts trainable weights
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.params {
		n += len(p.W)
	}
	return n
}

// effective trims the trailing padding of a post-padded sequence, keeping
// enough steps for the convolution stages
func (m *Model) effective(ids []int) []int {
	end := 0
	for i, id := range ids {
		if id != 0 {
			end = i + 1
		}
	}
	if end < m.minLen {
		end = m.minLen
	}
	if end <= len(ids) {
		return ids[:end]
	}
	out := make([]int, end)
	copy(out, ids)
	return out
}

type trace struct {
	ids    []int
	caches []any
}

func (m *Model) forward(ids []int) ([]float64, *trace) {
	ids = m.effective(ids)
	xs := make([][]float64, len(ids))
	for t, id := range ids {
		if id < 0 || id >= m.cfg.VocabSize {
			id = 0
		}
		xs[t] = m.embed.row(id)
	}
	tr := &trace{ids: ids, caches: make([]any, len(m.layers))}
	for i, l := range m.layers {
		xs, tr.caches[i] = l.forward(xs)
	}
	return softmax(xs[0]), tr
}

func (m *Model) backward(tr *trace, dlogits []float64) {
	dys := [][]float64{dlogits}
	for i := len(m.layers) - 1; i >= 0; i-- {
		dys = m.layers[i].backward(tr.caches[i], dys)
	}
	for t, id := range tr.ids {
		if id < 0 || id >= m.cfg.VocabSize {
			id = 0
		}
		addInto(m.embed.gradRow(id), dys[t])
	}
}

// Predict returns the class probabilities for one padded sequence
func (m *Model) Predict(ids []int) []float64 {
	probs, _ := m.forward(ids)
	return probs
}

// PredictClasses returns the arg-max class for every sequence
func (m *Model) PredictClasses(x [][]int) []int {
	out := make([]int, len(x))
	for i, ids := range x {
		out[i] = floats.MaxIdx(m.Predict(ids))
	}
	return out
}

const lossEpsilon = 1e-7

// crossEntropy is the categorical cross-entropy against a one-hot target
func crossEntropy(probs, target []float64) float64 {
	var loss float64
	for k, t := range target {
		if t == 0 {
			continue
		}
		p := probs[k]
		if p < lossEpsilon {
			p = lossEpsilon
		}
		loss -= t * math.Log(p)
	}
	return loss
}

// Evaluate returns the mean categorical cross-entropy and the accuracy
// against one-hot targets y
func (m *Model) Evaluate(x [][]int, y [][]float64) (loss, accuracy float64) {
	if len(x) == 0 {
		return 0, 0
	}
	correct := 0
	for i, ids := range x {
		probs := m.Predict(ids)
		loss += crossEntropy(probs, y[i])
		if floats.MaxIdx(probs) == floats.MaxIdx(y[i]) {
			correct++
		}
	}
	n := float64(len(x))
	return loss / n, float64(correct) / n
}

// EpochLogs are the metrics reported after every epoch; Epoch is 1-based
type EpochLogs struct {
	Epoch       int
	Loss        float64
	Accuracy    float64
	ValLoss     float64
	ValAccuracy float64
}

// History collects per-epoch metrics
type History struct {
	Loss        []float64
	Accuracy    []float64
	ValLoss     []float64
	ValAccuracy []float64
}

// FitOptions control a training run
type FitOptions struct {
	Epochs    int
	BatchSize int
	// OnEpochEnd is called after every epoch; an error stops training
	OnEpochEnd func(EpochLogs) error
}

// Fit trains the model with mini-batch Adam on one-hot targets, validating on
// (xVal, yVal) after every epoch. Context cancellation stops training between
// batches.
func (m *Model) Fit(ctx context.Context, x [][]int, y [][]float64, xVal [][]int, yVal [][]float64, opts FitOptions) (History, error) {
	var hist History
	if len(x) == 0 {
		return hist, fmt.Errorf("%w: no training samples", ErrInvalidConfig)
	}
	if len(x) != len(y) || len(xVal) != len(yVal) {
		return hist, fmt.Errorf("%w: inputs and labels differ in length", ErrInvalidConfig)
	}
	if opts.Epochs < 1 || opts.BatchSize < 1 {
		return hist, fmt.Errorf("%w: epochs=%d batch_size=%d", ErrInvalidConfig, opts.Epochs, opts.BatchSize)
	}
	for _, target := range append(append([][]float64{}, y...), yVal...) {
		if len(target) != m.cfg.NumClasses {
			return hist, fmt.Errorf("%w: target has %d columns, want %d", ErrInvalidConfig, len(target), m.cfg.NumClasses)
		}
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed + 1))
	order := make([]int, len(x))
	for i := range order {
		order[i] = i
	}

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var totalLoss float64
		correct := 0
		for start := 0; start < len(order); start += opts.BatchSize {
			if err := ctx.Err(); err != nil {
				return hist, err
			}
			end := start + opts.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := order[start:end]
			scale := 1 / float64(len(batch))

			for _, p := range m.params {
				p.zeroGrad()
			}
			for _, idx := range batch {
				probs, tr := m.forward(x[idx])
				totalLoss += crossEntropy(probs, y[idx])
				if floats.MaxIdx(probs) == floats.MaxIdx(y[idx]) {
					correct++
				}
				dlogits := make([]float64, len(probs))
				for k, p := range probs {
					dlogits[k] = (p - y[idx][k]) * scale
				}
				m.backward(tr, dlogits)
			}
			m.opt.update(m.params)
		}

		logs := EpochLogs{
			Epoch:    epoch,
			Loss:     totalLoss / float64(len(x)),
			Accuracy: float64(correct) / float64(len(x)),
		}
		if len(xVal) > 0 {
			logs.ValLoss, logs.ValAccuracy = m.Evaluate(xVal, yVal)
		}
		hist.Loss = append(hist.Loss, logs.Loss)
		hist.Accuracy = append(hist.Accuracy, logs.Accuracy)
		hist.ValLoss = append(hist.ValLoss, logs.ValLoss)
		hist.ValAccuracy = append(hist.ValAccuracy, logs.ValAccuracy)

		if opts.OnEpochEnd != nil {
			if err := opts.OnEpochEnd(logs); err != nil {
				return hist, err
			}
		}
	}
	return hist, nil
}
