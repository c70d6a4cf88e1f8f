package config

import (
	"time"

	"gorm.io/gorm"
)

// ModelRecord is a saved model in the catalog
type ModelRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:128"`
	ModelType string `gorm:"index"`
	JobID     string `gorm:"index"`
	Path      string `gorm:"type:text"`
	Version   int
	Accuracy  float64
	Precision float64
	Recall    float64
	F1Score   float64
	IsActive  bool `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName overrides the table name
func (ModelRecord) TableName() string {
	return "models"
}

// TrainingJob is a finished job kept after the in-memory record is gone
type TrainingJob struct {
	ID        string `gorm:"primaryKey"`
	ModelType string `gorm:"index"`
	Status    string `gorm:"index"`
	Message   string `gorm:"type:text"`
	Results   string `gorm:"type:jsonb"` // metadata, metrics and history as JSON
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// TableName overrides the table name
func (TrainingJob) TableName() string {
	return "training_jobs"
}
