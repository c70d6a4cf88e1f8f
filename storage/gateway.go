package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/loiht2/ml-platform-email-classifier/backend/models"
)

var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobNotCompleted  = errors.New("job not completed")
	ErrArtifactsMissing = errors.New("no trained artifacts for job")
)

// JobSource gives the gateway read access to finished jobs
type JobSource interface {
	GetJob(jobID string) (*models.Job, bool)
}

// Mirror copies saved artifacts to secondary storage
type Mirror interface {
	MirrorModel(ctx context.Context, name string, paths ArtifactPaths) error
}

// Catalog records saved models
type Catalog interface {
	RegisterModel(ctx context.Context, m models.SavedModel) error
}

// Gateway persists trained jobs as named models
type Gateway struct {
	jobs      JobSource
	outputDir string
	locker    Locker
	mirror    Mirror
	catalog   Catalog
}

// Option configures a Gateway
type Option func(*Gateway)

// WithLocker replaces the default in-process name lock
func WithLocker(l Locker) Option {
	return func(g *Gateway) { g.locker = l }
}

// WithMirror uploads every saved model after it is written
func WithMirror(m Mirror) Option {
	return func(g *Gateway) { g.mirror = m }
}

// WithCatalog registers every saved model
func WithCatalog(c Catalog) Option {
	return func(g *Gateway) { g.catalog = c }
}

// NewGateway creates a gateway writing under outputDir
func NewGateway(jobs JobSource, outputDir string, opts ...Option) *Gateway {
	g := &Gateway{
		jobs:      jobs,
		outputDir: outputDir,
		locker:    NewLocalLocker(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OutputDir is where models are written
func (g *Gateway) OutputDir() string {
	return g.outputDir
}

// Save writes the artifacts of a completed job under modelName and returns the
// model path. Nothing is written when a precondition fails. Saves of the same
// name are serialized; re-saving a name overwrites it.
func (g *Gateway) Save(ctx context.Context, jobID, modelName string) (string, error) {
	if err := ValidateModelName(modelName); err != nil {
		return "", err
	}
	job, ok := g.jobs.GetJob(jobID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status != models.JobCompleted {
		return "", fmt.Errorf("%w: %s is %s", ErrJobNotCompleted, jobID, job.Status)
	}
	a := job.Artifacts
	if a == nil || a.Model == nil || a.Tokenizer == nil || a.LabelEncoder == nil || job.Results == nil {
		return "", fmt.Errorf("%w: %s", ErrArtifactsMissing, jobID)
	}

	unlock, err := g.locker.Lock(ctx, modelName)
	if err != nil {
		return "", fmt.Errorf("failed to lock model %s: %w", modelName, err)
	}
	defer unlock()

	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	paths := PathsFor(g.outputDir, modelName)
	if err := WriteArtifacts(paths, a, job.Results.Metadata); err != nil {
		return "", err
	}
	log.Printf("Saved job %s as model %s (%s)", jobID, modelName, paths.Model)

	if g.mirror != nil {
		if err := g.mirror.MirrorModel(ctx, modelName, paths); err != nil {
			log.Printf("Warning: failed to mirror model %s: %v", modelName, err)
		}
	}
	if g.catalog != nil {
		saved := models.SavedModel{
			Name:      modelName,
			JobID:     jobID,
			ModelType: job.ModelType,
			ModelPath: paths.Model,
			Metrics:   job.Results.Metrics,
		}
		if err := g.catalog.RegisterModel(ctx, saved); err != nil {
			log.Printf("Warning: failed to register model %s in catalog: %v", modelName, err)
		}
	}
	return paths.Model, nil
}
