package models

import "time"

// ClassifyRequest is the body of POST /api/v1/classify
type ClassifyRequest struct {
	Title   string `json:"title" binding:"required,notblank,max=500"`
	Content string `json:"content" binding:"required,notblank,max=10000"`
}

// ClassifyResponse is a single prediction
type ClassifyResponse struct {
	Label      string  `json:"label"`
	LabelID    int     `json:"label_id"`
	Confidence float64 `json:"confidence"`
}

// TrainingSampleRequest is one labeled sample on the wire
type TrainingSampleRequest struct {
	ID      int64  `json:"id"`
	Title   string `json:"title" binding:"required,notblank"`
	Content string `json:"content" binding:"required,notblank"`
	Label   string `json:"label" binding:"required,notblank"`
	LabelID int64  `json:"labelId"`
}

// HyperparametersRequest carries optional training knobs; nil fields take defaults
type HyperparametersRequest struct {
	Epochs       *int     `json:"epochs" binding:"omitempty,min=1,max=100"`
	BatchSize    *int     `json:"batch_size" binding:"omitempty,min=1,max=256"`
	LearningRate *float64 `json:"learning_rate" binding:"omitempty,gt=0,lte=1"`
	MaxWords     *int     `json:"max_words" binding:"omitempty,min=1000"`
	MaxLen       *int     `json:"max_len" binding:"omitempty,min=50,max=1000"`
}

// RetrainRequest is the body of POST /api/v1/retrain
type RetrainRequest struct {
	JobID           string                  `json:"jobId" binding:"required,notblank,max=128"`
	ModelType       string                  `json:"modelType" binding:"required,oneof=RNN LSTM BiLSTM CNN BiLSTM+CNN"`
	Samples         []TrainingSampleRequest `json:"samples" binding:"required,min=10,dive"`
	Hyperparameters *HyperparametersRequest `json:"hyperparameters"`
}

// RetrainResponse acknowledges a started job
type RetrainResponse struct {
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// SaveModelRequest is the body of POST /api/v1/retrain/save/:jobId
type SaveModelRequest struct {
	ModelName string `json:"modelName" binding:"required,notblank,max=128"`
}

// SaveModelResponse reports where a model was written
type SaveModelResponse struct {
	Success   bool   `json:"success"`
	ModelPath string `json:"modelPath"`
	Message   string `json:"message"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// ModelInfo describes the model currently served
type ModelInfo struct {
	Loaded       bool     `json:"loaded"`
	ModelType    string   `json:"model_type,omitempty"`
	MaxLen       int      `json:"max_len,omitempty"`
	NumClasses   int      `json:"num_classes,omitempty"`
	EmbeddingDim int      `json:"embedding_dim,omitempty"`
	Classes      []string `json:"classes,omitempty"`
	Source       string   `json:"source,omitempty"`
}

// SavedModel is what the persistence gateway reports after a save
type SavedModel struct {
	Name      string
	JobID     string
	ModelType string
	ModelPath string
	Metrics   Metrics
}

// CatalogEntry is a saved model as listed by GET /api/v1/models
type CatalogEntry struct {
	Name      string    `json:"name"`
	ModelType string    `json:"modelType"`
	Path      string    `json:"path"`
	Version   int       `json:"version"`
	Accuracy  float64   `json:"accuracy"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1Score   float64   `json:"f1Score"`
	IsActive  bool      `json:"isActive"`
	JobID     string    `json:"jobId"`
	CreatedAt time.Time `json:"createdAt"`
}
