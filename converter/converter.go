package converter

import (
	"strings"

	"github.com/loiht2/ml-platform-email-classifier/backend/models"
)

// TrainingInput is a validated retrain request in domain form
type TrainingInput struct {
	JobID           string
	ModelType       string
	Samples         []models.TrainingSample
	Hyperparameters models.Hyperparameters
}

// Converter handles conversion from API requests to domain types
type Converter struct {
	defaults models.Hyperparameters
}

// NewConverter creates a new converter instance
func NewConverter() *Converter {
	return &Converter{defaults: models.DefaultHyperparameters()}
}

// ConvertRetrainRequest trims the request and fills in default hyperparameters
func (c *Converter) ConvertRetrainRequest(req *models.RetrainRequest) TrainingInput {
	return TrainingInput{
		JobID:           strings.TrimSpace(req.JobID),
		ModelType:       req.ModelType,
		Samples:         c.ConvertSamples(req.Samples),
		Hyperparameters: c.ConvertHyperparameters(req.Hyperparameters),
	}
}

// ConvertSamples maps wire samples to training samples
func (c *Converter) ConvertSamples(in []models.TrainingSampleRequest) []models.TrainingSample {
	out := make([]models.TrainingSample, len(in))
	for i, s := range in {
		out[i] = models.TrainingSample{
			ID:      s.ID,
			Title:   strings.TrimSpace(s.Title),
			Content: strings.TrimSpace(s.Content),
			Label:   strings.TrimSpace(s.Label),
			LabelID: s.LabelID,
		}
	}
	return out
}

// ConvertHyperparameters applies defaults for every omitted knob
func (c *Converter) ConvertHyperparameters(req *models.HyperparametersRequest) models.Hyperparameters {
	hp := c.defaults
	if req == nil {
		return hp
	}
	if req.Epochs != nil {
		hp.Epochs = *req.Epochs
	}
	if req.BatchSize != nil {
		hp.BatchSize = *req.BatchSize
	}
	if req.LearningRate != nil {
		hp.LearningRate = *req.LearningRate
	}
	if req.MaxWords != nil {
		hp.MaxWords = *req.MaxWords
	}
	if req.MaxLen != nil {
		hp.MaxLen = *req.MaxLen
	}
	return hp
}
