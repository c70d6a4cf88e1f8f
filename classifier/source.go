package classifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/loiht2/ml-platform-email-classifier/backend/models"
	"github.com/loiht2/ml-platform-email-classifier/backend/storage"
)

var ErrModelUnavailable = errors.New("model not available")

// ActiveModelSource names the saved model that should be served.
// An empty name with a nil error means the source has no opinion.
type ActiveModelSource interface {
	SourceName() string
	ActiveModel(ctx context.Context) (string, error)
}

// StaticSource always returns the configured name
type StaticSource struct {
	Label string
	Model string
}

// SourceName implements ActiveModelSource
func (s StaticSource) SourceName() string { return s.Label }

// ActiveModel implements ActiveModelSource
func (s StaticSource) ActiveModel(context.Context) (string, error) { return s.Model, nil }

// ModelFetcher downloads a saved model into a local directory
type ModelFetcher interface {
	FetchModel(ctx context.Context, name, dir string) (storage.ArtifactPaths, error)
}

// Loader decides what the service serves at startup
type Loader struct {
	// ModelDir holds models saved by name
	ModelDir string
	// Static is used when no source names an active model
	Static storage.ArtifactPaths
	// Sources are asked in order; the first non-empty answer wins
	Sources []ActiveModelSource
	// Fetcher, when set, fills in a named model missing from ModelDir
	Fetcher ModelFetcher
}

// ResolveActiveModel asks each source in turn. Failing sources are logged and skipped.
func ResolveActiveModel(ctx context.Context, sources []ActiveModelSource) (name, from string) {
	for _, src := range sources {
		n, err := src.ActiveModel(ctx)
		if err != nil {
			log.Printf("Warning: active model source %s failed: %v", src.SourceName(), err)
			continue
		}
		if n != "" {
			return n, src.SourceName()
		}
	}
	return "", ""
}

// Load resolves the model and loads it into s
func (l *Loader) Load(ctx context.Context, s *Service) error {
	name, from := ResolveActiveModel(ctx, l.Sources)
	if name == "" {
		log.Printf("No active model configured, loading static model %s", l.Static.Model)
		return s.LoadFrom(l.Static, "static")
	}

	a, md, err := l.Prepare(ctx, name)
	if err != nil {
		return fmt.Errorf("active model from %s: %w", from, err)
	}
	log.Printf("Loading active model %s (from %s)", name, from)
	s.Use(a, *md, fmt.Sprintf("%s:%s", from, name))
	return nil
}

// Prepare reads the saved model name without serving it, fetching it first
// when it is missing from ModelDir. A model that is neither local nor
// fetchable yields ErrModelUnavailable.
func (l *Loader) Prepare(ctx context.Context, name string) (*models.Artifacts, *models.Metadata, error) {
	if err := storage.ValidateModelName(name); err != nil {
		return nil, nil, err
	}
	paths := storage.PathsFor(l.ModelDir, name)
	if _, err := os.Stat(paths.Metadata); errors.Is(err, os.ErrNotExist) {
		if l.Fetcher == nil {
			return nil, nil, fmt.Errorf("%w: %s not found in %s", ErrModelUnavailable, name, l.ModelDir)
		}
		log.Printf("Model %s not found in %s, fetching it", name, l.ModelDir)
		if paths, err = l.Fetcher.FetchModel(ctx, name, l.ModelDir); err != nil {
			return nil, nil, fmt.Errorf("%w: failed to fetch %s: %v", ErrModelUnavailable, name, err)
		}
	}
	return storage.LoadArtifacts(paths)
}
