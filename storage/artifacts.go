package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/loiht2/ml-platform-email-classifier/backend/models"
	"github.com/loiht2/ml-platform-email-classifier/backend/nn"
	"github.com/loiht2/ml-platform-email-classifier/backend/textproc"
)

var ErrArtifactLoad = errors.New("failed to load model artifacts")

// WriteArtifacts writes the model, tokenizer, label encoder and metadata.
// Each file is written to a temporary name and renamed into place.
func WriteArtifacts(paths ArtifactPaths, a *models.Artifacts, md models.Metadata) error {
	writes := []struct {
		path  string
		write func(io.Writer) error
	}{
		{paths.Model, a.Model.Save},
		{paths.Tokenizer, jsonWriter(a.Tokenizer)},
		{paths.LabelEncoder, jsonWriter(a.LabelEncoder)},
		{paths.Metadata, jsonWriter(md)},
	}
	for _, w := range writes {
		if err := writeFileAtomic(w.path, w.write); err != nil {
			return err
		}
	}
	return nil
}

func jsonWriter(v any) func(io.Writer) error {
	return func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(path), uuid.New().String()))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// LoadArtifacts reads back what WriteArtifacts wrote
func LoadArtifacts(paths ArtifactPaths) (*models.Artifacts, *models.Metadata, error) {
	var md models.Metadata
	if err := readJSON(paths.Metadata, &md); err != nil {
		return nil, nil, err
	}

	tok := &textproc.Tokenizer{}
	if err := readJSON(paths.Tokenizer, tok); err != nil {
		return nil, nil, err
	}
	if tok.WordIndex == nil {
		return nil, nil, fmt.Errorf("%w: %s has no word index", ErrArtifactLoad, paths.Tokenizer)
	}

	enc := &textproc.LabelEncoder{}
	if err := readJSON(paths.LabelEncoder, enc); err != nil {
		return nil, nil, err
	}
	if enc.NumClasses() < 2 {
		return nil, nil, fmt.Errorf("%w: %s has %d classes", ErrArtifactLoad, paths.LabelEncoder, enc.NumClasses())
	}

	f, err := os.Open(paths.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	defer f.Close()
	model, err := nn.Load(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrArtifactLoad, paths.Model, err)
	}
	if model.Config().NumClasses != enc.NumClasses() {
		return nil, nil, fmt.Errorf("%w: model has %d outputs but label encoder has %d classes",
			ErrArtifactLoad, model.Config().NumClasses, enc.NumClasses())
	}
	if md.MaxLen < 1 {
		return nil, nil, fmt.Errorf("%w: %s has no max_len", ErrArtifactLoad, paths.Metadata)
	}
	if md.MaxLen != model.Config().MaxLen {
		return nil, nil, fmt.Errorf("%w: metadata max_len %d does not match model max_len %d",
			ErrArtifactLoad, md.MaxLen, model.Config().MaxLen)
	}

	return &models.Artifacts{Model: model, Tokenizer: tok, LabelEncoder: enc}, &md, nil
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrArtifactLoad, path, err)
	}
	return nil
}
