package nn

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// SnapshotFormat identifies the on-disk weight format
const SnapshotFormat = "email-classifier/nn/v1"

var ErrCorruptSnapshot = errors.New("corrupt model snapshot")

type snapshot struct {
	Format  string               `json:"format"`
	Config  Config               `json:"config"`
	Weights map[string][]float64 `json:"weights"`
}

// Save writes the configuration and weights as JSON
func (m *Model) Save(w io.Writer) error {
	snap := snapshot{
		Format:  SnapshotFormat,
		Config:  m.cfg,
		Weights: make(map[string][]float64, len(m.params)),
	}
	for _, p := range m.params {
		snap.Weights[p.Name] = p.W
	}
	if err := json.NewEncoder(w).Encode(&snap); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// Load rebuilds a model from a snapshot written by Save
func Load(r io.Reader) (*Model, error) {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if snap.Format != SnapshotFormat {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrCorruptSnapshot, snap.Format)
	}

	m, err := New(snap.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	for _, p := range m.params {
		w, ok := snap.Weights[p.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing weights %s", ErrCorruptSnapshot, p.Name)
		}
		if len(w) != len(p.W) {
			return nil, fmt.Errorf("%w: %s has %d values, want %d", ErrCorruptSnapshot, p.Name, len(w), len(p.W))
		}
		copy(p.W, w)
	}
	return m, nil
}
