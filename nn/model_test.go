package nn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/loiht2/ml-platform-email-classifier/backend/textproc"
)

// toyData builds two classes separated by which token block they use
func toyData(n, maxLen int) ([][]int, [][]float64) {
	rng := rand.New(rand.NewSource(7))
	x := make([][]int, n)
	y := make([]int, n)
	for i := range x {
		label := i % 2
		seq := make([]int, maxLen)
		for t := 0; t < 6; t++ {
			seq[t] = 1 + label*5 + rng.Intn(5)
		}
		x[i] = seq
		y[i] = label
	}
	return x, textproc.OneHot(y, 2)
}

func TestParseArchitecture(t *testing.T) {
	for _, a := range Architectures {
		got, err := ParseArchitecture(string(a))
		if err != nil || got != a {
			t.Errorf("ParseArchitecture(%q) = %q, %v", a, got, err)
		}
	}
	if _, err := ParseArchitecture("GRU"); !errors.Is(err, ErrUnknownArchitecture) {
		t.Errorf("ParseArchitecture(GRU) err = %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Architecture: CNN, VocabSize: 10, MaxLen: 20, NumClasses: 1})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("New with one class err = %v", err)
	}
	_, err = New(Config{Architecture: "Transformer", VocabSize: 10, MaxLen: 20, NumClasses: 2})
	if !errors.Is(err, ErrUnknownArchitecture) {
		t.Errorf("New with unknown architecture err = %v", err)
	}
}

func TestFitEveryArchitecture(t *testing.T) {
	x, y := toyData(12, 20)
	for _, arch := range Architectures {
		t.Run(string(arch), func(t *testing.T) {
			m, err := New(Config{
				Architecture: arch,
				VocabSize:    12,
				MaxLen:       20,
				NumClasses:   2,
				EmbeddingDim: 8,
				Units:        8,
				DenseUnits:   8,
				Filters:      8,
				LearningRate: 0.01,
			})
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			var epochs []int
			hist, err := m.Fit(context.Background(), x, y, x[:4], y[:4], FitOptions{
				Epochs:    3,
				BatchSize: 4,
				OnEpochEnd: func(l EpochLogs) error {
					epochs = append(epochs, l.Epoch)
					return nil
				},
			})
			if err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if len(hist.Loss) != 3 || len(hist.Accuracy) != 3 || len(hist.ValLoss) != 3 || len(hist.ValAccuracy) != 3 {
				t.Errorf("history lengths = %d/%d/%d/%d, want 3", len(hist.Loss), len(hist.Accuracy), len(hist.ValLoss), len(hist.ValAccuracy))
			}
			if len(epochs) != 3 || epochs[0] != 1 || epochs[2] != 3 {
				t.Errorf("callback epochs = %v", epochs)
			}

			probs := m.Predict(x[0])
			sum := 0.0
			for _, p := range probs {
				sum += p
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Errorf("probabilities sum to %v", sum)
			}
		})
	}
}

func TestFitLearnsSeparableData(t *testing.T) {
	x, y := toyData(20, 20)
	m, err := New(Config{
		Architecture: CNN,
		VocabSize:    12,
		MaxLen:       20,
		NumClasses:   2,
		EmbeddingDim: 8,
		Filters:      8,
		LearningRate: 0.05,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	hist, err := m.Fit(context.Background(), x, y, nil, nil, FitOptions{Epochs: 30, BatchSize: 4})
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if hist.Loss[len(hist.Loss)-1] >= hist.Loss[0] {
		t.Errorf("loss did not decrease: first %v last %v", hist.Loss[0], hist.Loss[len(hist.Loss)-1])
	}
}

func TestFitStopsOnCallbackError(t *testing.T) {
	x, y := toyData(8, 10)
	m, err := New(Config{Architecture: RNN, VocabSize: 12, MaxLen: 10, NumClasses: 2, EmbeddingDim: 4, Units: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	stop := errors.New("stop")
	hist, err := m.Fit(context.Background(), x, y, nil, nil, FitOptions{
		Epochs:     5,
		BatchSize:  8,
		OnEpochEnd: func(EpochLogs) error { return stop },
	})
	if !errors.Is(err, stop) {
		t.Errorf("Fit err = %v, want stop", err)
	}
	if len(hist.Loss) != 1 {
		t.Errorf("history has %d epochs, want 1", len(hist.Loss))
	}
}

func TestFitHonoursContext(t *testing.T) {
	x, y := toyData(8, 10)
	m, err := New(Config{Architecture: RNN, VocabSize: 12, MaxLen: 10, NumClasses: 2, EmbeddingDim: 4, Units: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Fit(ctx, x, y, nil, nil, FitOptions{Epochs: 1, BatchSize: 2}); !errors.Is(err, context.Canceled) {
		t.Errorf("Fit err = %v, want context.Canceled", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	x, y := toyData(8, 16)
	m, err := New(Config{Architecture: BiLSTMCNN, VocabSize: 12, MaxLen: 16, NumClasses: 2, EmbeddingDim: 4, Units: 4, DenseUnits: 4, Filters: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := m.Fit(context.Background(), x, y, nil, nil, FitOptions{Epochs: 1, BatchSize: 4}); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	var buf bytes.Buffer
	if err := m.Save(&buf); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Config() != m.Config() {
		t.Errorf("config mismatch: %+v vs %+v", loaded.Config(), m.Config())
	}
	for i := range x {
		a, b := m.Predict(x[i]), loaded.Predict(x[i])
		for k := range a {
			if math.Abs(a[k]-b[k]) > 1e-12 {
				t.Fatalf("prediction %d differs: %v vs %v", i, a, b)
			}
		}
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	if _, err := Load(bytes.NewBufferString(`{"format":"other"}`)); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("Load err = %v", err)
	}
	if _, err := Load(bytes.NewBufferString(`not json`)); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("Load err = %v", err)
	}

	for _, field := range []string{"embedding_dim", "units", "dense_units", "filters", "kernel_size"} {
		for _, arch := range Architectures {
			snap := fmt.Sprintf(`{"format":%q,"config":{"architecture":%q,"vocab_size":10,"max_len":20,"num_classes":2,%q:-3},"weights":{}}`,
				SnapshotFormat, arch, field)
			_, err := Load(bytes.NewBufferString(snap))
			if !errors.Is(err, ErrCorruptSnapshot) {
				t.Errorf("%s %s=-3: Load err = %v", arch, field, err)
			}
		}
	}

	huge := fmt.Sprintf(`{"format":%q,"config":{"architecture":"RNN","vocab_size":1000000,"max_len":20,"num_classes":2,"embedding_dim":4000},"weights":{}}`, SnapshotFormat)
	if _, err := Load(bytes.NewBufferString(huge)); !errors.Is(err, ErrCorruptSnapshot) {
		t.Errorf("oversized embedding: Load err = %v", err)
	}
}

func TestNewRejectsOutOfRangeDims(t *testing.T) {
	base := Config{Architecture: LSTM, VocabSize: 10, MaxLen: 20, NumClasses: 2}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative embedding", func(c *Config) { c.EmbeddingDim = -1 }},
		{"negative units", func(c *Config) { c.Units = -8 }},
		{"huge dense", func(c *Config) { c.DenseUnits = maxDim + 1 }},
		{"negative kernel", func(c *Config) { c.KernelSize = -5 }},
		{"negative learning rate", func(c *Config) { c.LearningRate = -0.1 }},
		{"negative max_len", func(c *Config) { c.MaxLen = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New err = %v", err)
			}
		})
	}
}

// numericGradCheck compares analytic gradients with central differences
func numericGradCheck(t *testing.T, m *Model, ids []int, label int) {
	t.Helper()
	target := textproc.OneHot([]int{label}, m.cfg.NumClasses)[0]
	for _, p := range m.params {
		p.zeroGrad()
	}
	probs, tr := m.forward(ids)
	dlogits := make([]float64, len(probs))
	copy(dlogits, probs)
	dlogits[label] -= 1
	m.backward(tr, dlogits)

	const eps = 1e-5
	rng := rand.New(rand.NewSource(3))
	for _, p := range m.params {
		for n := 0; n < 5; n++ {
			i := rng.Intn(len(p.W))
			if p.Name == "embedding/embeddings" {
				// only rows that appear in the sequence receive gradient
				i = ids[0]*p.Cols + rng.Intn(p.Cols)
			}
			orig := p.W[i]
			p.W[i] = orig + eps
			plus := crossEntropy(m.Predict(ids), target)
			p.W[i] = orig - eps
			minus := crossEntropy(m.Predict(ids), target)
			p.W[i] = orig

			numeric := (plus - minus) / (2 * eps)
			analytic := p.g[i]
			diff := math.Abs(numeric - analytic)
			scale := math.Max(1e-6, math.Abs(numeric)+math.Abs(analytic))
			if diff/scale > 1e-4 && diff > 1e-7 {
				t.Errorf("%s[%d]: analytic %v numeric %v", p.Name, i, analytic, numeric)
			}
		}
	}
}

func TestGradients(t *testing.T) {
	ids := []int{3, 7, 1, 9, 4, 2, 8, 0, 0, 0}
	for _, arch := range []Architecture{RNN, LSTM, BiLSTM, CNN, BiLSTMCNN} {
		t.Run(string(arch), func(t *testing.T) {
			m, err := New(Config{Architecture: arch, VocabSize: 10, MaxLen: 10, NumClasses: 3, EmbeddingDim: 4, Units: 3, DenseUnits: 5, Filters: 4, KernelSize: 3})
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			numericGradCheck(t, m, ids, 1)
		})
	}
}
