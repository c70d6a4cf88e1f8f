package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
)

var ErrInvalidModelName = errors.New("invalid model name")

var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateModelName accepts names usable as a file stem in the output directory
func ValidateModelName(name string) error {
	if !modelNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q (letters, digits, '.', '_' and '-' only, max 128)", ErrInvalidModelName, name)
	}
	return nil
}

// ArtifactPaths are the files that make up one saved model
type ArtifactPaths struct {
	Model        string `yaml:"model"`
	Tokenizer    string `yaml:"tokenizer"`
	LabelEncoder string `yaml:"label_encoder"`
	Metadata     string `yaml:"metadata"`
}

// PathsFor derives the artifact file names for a model saved under dir
func PathsFor(dir, name string) ArtifactPaths {
	return ArtifactPaths{
		Model:        filepath.Join(dir, name+"_model.json"),
		Tokenizer:    filepath.Join(dir, name+"_tokenizer.json"),
		LabelEncoder: filepath.Join(dir, name+"_label_encoder.json"),
		Metadata:     filepath.Join(dir, name+"_metadata.json"),
	}
}

// All lists the paths in write order
func (p ArtifactPaths) All() []string {
	return []string{p.Model, p.Tokenizer, p.LabelEncoder, p.Metadata}
}
