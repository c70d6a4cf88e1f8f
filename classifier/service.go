// Package classifier serves the active email classification model.
package classifier

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/loiht2/ml-platform-email-classifier/backend/models"
	"github.com/loiht2/ml-platform-email-classifier/backend/storage"
	"github.com/loiht2/ml-platform-email-classifier/backend/textproc"
)

var ErrModelNotLoaded = errors.New("model not loaded")

type servable struct {
	artifacts *models.Artifacts
	metadata  models.Metadata
	source    string
}

// Service answers predictions from a model loaded once. The loaded model is
// never mutated, so Predict needs no lock.
type Service struct {
	state atomic.Pointer[servable]
}

// New creates a service with no model loaded
func New() *Service {
	return &Service{}
}

// LoadFrom reads artifacts from disk and starts serving them
func (s *Service) LoadFrom(paths storage.ArtifactPaths, source string) error {
	a, md, err := storage.LoadArtifacts(paths)
	if err != nil {
		return err
	}
	s.Use(a, *md, source)
	return nil
}

// Use serves already loaded artifacts
func (s *Service) Use(a *models.Artifacts, md models.Metadata, source string) {
	s.state.Store(&servable{artifacts: a, metadata: md, source: source})
	log.Printf("Classifier serving %s model from %s (%d classes, max_len %d)",
		md.ModelType, source, md.NumClasses, md.MaxLen)
}

// Loaded reports whether a model is being served
func (s *Service) Loaded() bool {
	return s.state.Load() != nil
}

// Predict classifies one email
func (s *Service) Predict(title, content string) (models.ClassifyResponse, error) {
	st := s.state.Load()
	if st == nil {
		return models.ClassifyResponse{}, ErrModelNotLoaded
	}

	seqs := st.artifacts.Tokenizer.TextsToSequences([]string{textproc.JoinText(title, content)})
	x := textproc.PadSequences(seqs, st.metadata.MaxLen)[0]
	probs := st.artifacts.Model.Predict(x)

	idx := floats.MaxIdx(probs)
	label, err := st.artifacts.LabelEncoder.InverseTransform(idx)
	if err != nil {
		return models.ClassifyResponse{}, fmt.Errorf("prediction failed: %w", err)
	}
	return models.ClassifyResponse{
		Label:      label,
		LabelID:    idx,
		Confidence: probs[idx],
	}, nil
}

// Info describes the served model
func (s *Service) Info() models.ModelInfo {
	st := s.state.Load()
	if st == nil {
		return models.ModelInfo{Loaded: false}
	}
	return models.ModelInfo{
		Loaded:       true,
		ModelType:    st.metadata.ModelType,
		MaxLen:       st.metadata.MaxLen,
		NumClasses:   st.metadata.NumClasses,
		EmbeddingDim: st.metadata.EmbeddingDim,
		Classes:      append([]string(nil), st.metadata.Classes...),
		Source:       st.source,
	}
}
