package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/loiht2/ml-platform-email-classifier/backend/config"
	"github.com/loiht2/ml-platform-email-classifier/backend/models"
)

var ErrModelNotFound = errors.New("model not found")

// Repository handles database operations
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository instance
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// RegisterModel inserts a saved model or bumps the version of an existing name
func (r *Repository) RegisterModel(ctx context.Context, m models.SavedModel) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec config.ModelRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("name = ?", m.Name).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = modelRecord(m)
			rec.Version = 1
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("failed to create model record: %w", err)
			}
			return nil
		case err != nil:
			return fmt.Errorf("failed to look up model %s: %w", m.Name, err)
		}

		next := modelRecord(m)
		next.ID = rec.ID
		next.Version = rec.Version + 1
		next.IsActive = rec.IsActive
		next.CreatedAt = rec.CreatedAt
		if err := tx.Save(&next).Error; err != nil {
			return fmt.Errorf("failed to update model record: %w", err)
		}
		return nil
	})
}

// ListModels lists saved models, newest first
func (r *Repository) ListModels(ctx context.Context) ([]models.CatalogEntry, error) {
	var recs []config.ModelRecord
	if err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	out := make([]models.CatalogEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toEntry(rec))
	}
	return out, nil
}

// ActivateModel marks name as the only active model
func (r *Repository) ActivateModel(ctx context.Context, name string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&config.ModelRecord{}).Where("name = ?", name).Update("is_active", true)
		if res.Error != nil {
			return fmt.Errorf("failed to activate model %s: %w", name, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrModelNotFound, name)
		}
		if err := tx.Model(&config.ModelRecord{}).Where("name <> ? AND is_active", name).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate other models: %w", err)
		}
		return nil
	})
}

// SourceName identifies the catalog as an active model source
func (r *Repository) SourceName() string {
	return "catalog"
}

// ActiveModel returns the name of the active model, or "" if none is marked
func (r *Repository) ActiveModel(ctx context.Context) (string, error) {
	var rec config.ModelRecord
	err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("updated_at DESC").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query active model: %w", err)
	}
	return rec.Name, nil
}

// ArchiveJob stores a finished job
func (r *Repository) ArchiveJob(ctx context.Context, job *models.Job) error {
	rec, err := jobRecord(job)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("failed to archive job %s: %w", job.JobID, err)
	}
	return nil
}

// ListArchivedJobs lists archived jobs, newest first
func (r *Repository) ListArchivedJobs(ctx context.Context, limit int) ([]models.JobSummary, error) {
	var recs []config.TrainingJob
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list archived jobs: %w", err)
	}
	out := make([]models.JobSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, models.JobSummary{
			JobID:     rec.ID,
			ModelType: rec.ModelType,
			Status:    models.JobStatus(rec.Status),
			Error:     rec.Message,
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		})
	}
	return out, nil
}

func modelRecord(m models.SavedModel) config.ModelRecord {
	avg := m.Metrics.ClassificationReport.WeightedAvg
	return config.ModelRecord{
		Name:      m.Name,
		ModelType: m.ModelType,
		JobID:     m.JobID,
		Path:      m.ModelPath,
		Accuracy:  m.Metrics.TestAccuracy,
		Precision: avg.Precision,
		Recall:    avg.Recall,
		F1Score:   avg.F1Score,
	}
}

func toEntry(rec config.ModelRecord) models.CatalogEntry {
	return models.CatalogEntry{
		Name:      rec.Name,
		ModelType: rec.ModelType,
		Path:      rec.Path,
		Version:   rec.Version,
		Accuracy:  rec.Accuracy,
		Precision: rec.Precision,
		Recall:    rec.Recall,
		F1Score:   rec.F1Score,
		IsActive:  rec.IsActive,
		JobID:     rec.JobID,
		CreatedAt: rec.CreatedAt,
	}
}

func jobRecord(job *models.Job) (config.TrainingJob, error) {
	results := "null"
	if job.Results != nil {
		data, err := json.Marshal(job.Results)
		if err != nil {
			return config.TrainingJob{}, fmt.Errorf("failed to marshal job results: %w", err)
		}
		results = string(data)
	}
	updated := job.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return config.TrainingJob{
		ID:        job.JobID,
		ModelType: job.ModelType,
		Status:    string(job.Status),
		Message:   job.Error,
		Results:   results,
		CreatedAt: job.CreatedAt,
		UpdatedAt: updated,
	}, nil
}
