package models

import (
	"github.com/loiht2/ml-platform-email-classifier/backend/nn"
	"github.com/loiht2/ml-platform-email-classifier/backend/textproc"
)

// Hyperparameter defaults and bounds
const (
	DefaultEpochs       = 25
	DefaultBatchSize    = 32
	DefaultLearningRate = 1e-4
	DefaultMaxWords     = 50000
	DefaultMaxLen       = 256

	MinTrainingSamples = 10
)

// TrainingSample is one labeled email
type TrainingSample struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Label   string `json:"label"`
	LabelID int64  `json:"labelId"`
}

// Text is the preprocessed input used for both training and serving
func (s TrainingSample) Text() string {
	return textproc.JoinText(s.Title, s.Content)
}

// Hyperparameters control one training run
type Hyperparameters struct {
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	MaxWords     int     `json:"max_words"`
	MaxLen       int     `json:"max_len"`
}

// DefaultHyperparameters returns the knobs used when a request omits them
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		Epochs:       DefaultEpochs,
		BatchSize:    DefaultBatchSize,
		LearningRate: DefaultLearningRate,
		MaxWords:     DefaultMaxWords,
		MaxLen:       DefaultMaxLen,
	}
}

// Metadata describes a trained model; it is persisted next to the weights
type Metadata struct {
	ModelType       string          `json:"model_type"`
	MaxWords        int             `json:"max_words"`
	MaxLen          int             `json:"max_len"`
	NumClasses      int             `json:"num_classes"`
	Classes         []string        `json:"classes"`
	VocabSize       int             `json:"vocab_size"`
	EmbeddingDim    int             `json:"embedding_dim"`
	Hyperparameters Hyperparameters `json:"hyperparameters"`
}

// ClassScores are precision/recall/F1 for one class or an average
type ClassScores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// ClassificationReport mirrors a per-class precision/recall table
type ClassificationReport struct {
	Classes     map[string]ClassScores `json:"classes"`
	Accuracy    float64                `json:"accuracy"`
	MacroAvg    ClassScores            `json:"macro avg"`
	WeightedAvg ClassScores            `json:"weighted avg"`
}

// Metrics are computed on the held-out test partition
type Metrics struct {
	TestLoss             float64              `json:"testLoss"`
	TestAccuracy         float64              `json:"testAccuracy"`
	ClassificationReport ClassificationReport `json:"classificationReport"`
	// ConfusionMatrix rows are true classes, columns predicted classes
	ConfusionMatrix [][]int `json:"confusionMatrix"`
}

// History holds one entry per epoch
type History struct {
	Loss        []float64 `json:"loss"`
	Accuracy    []float64 `json:"accuracy"`
	ValLoss     []float64 `json:"val_loss"`
	ValAccuracy []float64 `json:"val_accuracy"`
}

// Results is the serializable part of a finished training run
type Results struct {
	Metadata Metadata `json:"metadata"`
	Metrics  Metrics  `json:"metrics"`
	History  History  `json:"history"`
}

// Clone returns a deep copy
func (r *Results) Clone() *Results {
	if r == nil {
		return nil
	}
	out := *r
	out.Metadata.Classes = append([]string(nil), r.Metadata.Classes...)

	out.Metrics.ClassificationReport.Classes = make(map[string]ClassScores, len(r.Metrics.ClassificationReport.Classes))
	for k, v := range r.Metrics.ClassificationReport.Classes {
		out.Metrics.ClassificationReport.Classes[k] = v
	}
	out.Metrics.ConfusionMatrix = make([][]int, len(r.Metrics.ConfusionMatrix))
	for i, row := range r.Metrics.ConfusionMatrix {
		out.Metrics.ConfusionMatrix[i] = append([]int(nil), row...)
	}

	out.History = History{
		Loss:        append([]float64(nil), r.History.Loss...),
		Accuracy:    append([]float64(nil), r.History.Accuracy...),
		ValLoss:     append([]float64(nil), r.History.ValLoss...),
		ValAccuracy: append([]float64(nil), r.History.ValAccuracy...),
	}
	return &out
}

// Artifacts are the heavy, non-JSON outputs of training
type Artifacts struct {
	Model        *nn.Model
	Tokenizer    *textproc.Tokenizer
	LabelEncoder *textproc.LabelEncoder
}

// TrainingOutcome is everything a successful run hands to the registry
type TrainingOutcome struct {
	Results   Results
	Artifacts *Artifacts
}
