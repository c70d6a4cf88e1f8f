// Package trainer runs one train/evaluate cycle for a retraining job and
// reports its progress through a Reporter.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/loiht2/ml-platform-email-classifier/backend/models"
	"github.com/loiht2/ml-platform-email-classifier/backend/nn"
	"github.com/loiht2/ml-platform-email-classifier/backend/textproc"
)

var (
	ErrJobNotStartable = errors.New("job cannot be started")
	// ErrJobSuperseded means the record was deleted or replaced mid-run
	ErrJobSuperseded = errors.New("job was deleted or replaced while training")
)

// Reporter receives job state changes. The registry implements it, and so
// does its generation-scoped reporter.
type Reporter interface {
	UpdateStatus(jobID string, status models.JobStatus) bool
	UpdateProgress(jobID string, progress models.Progress) bool
	CompleteJob(jobID string, outcome *models.TrainingOutcome) bool
	FailJob(jobID, message string) bool
}

// Trainer builds, fits and evaluates models
type Trainer struct {
	// Layers overrides layer sizes; zero fields fall back to nn defaults
	Layers nn.Config
}

// New creates a trainer with default layer sizes
func New() *Trainer {
	return &Trainer{}
}

// Train executes the full cycle for jobID, reporting to rep. On failure the
// job is marked failed with the error message and the error is returned.
// A run whose record disappears stops at the next epoch with ErrJobSuperseded.
func (t *Trainer) Train(ctx context.Context, rep Reporter, jobID, modelType string, samples []models.TrainingSample, hp models.Hyperparameters) (*models.TrainingOutcome, error) {
	if !rep.UpdateStatus(jobID, models.JobRunning) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotStartable, jobID)
	}
	log.Printf("Starting training for job %s (model: %s, samples: %d, epochs: %d, batch size: %d)",
		jobID, modelType, len(samples), hp.Epochs, hp.BatchSize)

	outcome, err := t.run(ctx, rep, jobID, modelType, samples, hp)
	if err != nil {
		log.Printf("Training failed for job %s: %v", jobID, err)
		rep.FailJob(jobID, err.Error())
		return nil, err
	}

	if !rep.CompleteJob(jobID, outcome) {
		return nil, fmt.Errorf("%w: %s", ErrJobSuperseded, jobID)
	}
	log.Printf("Training completed for job %s: test loss %.4f, test accuracy %.4f",
		jobID, outcome.Results.Metrics.TestLoss, outcome.Results.Metrics.TestAccuracy)
	return outcome, nil
}

// dataset is the vectorized form of a sample batch
type dataset struct {
	xTrain, xTest [][]int
	yTrain, yTest []int
	// one-hot targets for fitting
	tTrain, tTest [][]float64
	tokenizer     *textproc.Tokenizer
	encoder       *textproc.LabelEncoder
}

func prepare(samples []models.TrainingSample, maxWords, maxLen int) (*dataset, error) {
	labels := make([]string, len(samples))
	texts := make([]string, len(samples))
	for i, s := range samples {
		labels[i] = s.Label
		texts[i] = s.Text()
	}

	part, err := StratifiedSplit(labels, TestFraction, SplitSeed)
	if err != nil {
		return nil, err
	}
	pick := func(idx []int) ([]string, []string) {
		tx := make([]string, len(idx))
		ty := make([]string, len(idx))
		for i, j := range idx {
			tx[i], ty[i] = texts[j], labels[j]
		}
		return tx, ty
	}
	trainText, trainLabels := pick(part.Train)
	testText, testLabels := pick(part.Test)

	tok := textproc.NewTokenizer(maxWords)
	tok.Fit(append(append([]string{}, trainText...), testText...))

	enc := &textproc.LabelEncoder{}
	enc.Fit(trainLabels)
	yTrain, err := enc.Transform(trainLabels)
	if err != nil {
		return nil, err
	}
	yTest, err := enc.Transform(testLabels)
	if err != nil {
		return nil, err
	}

	return &dataset{
		xTrain:    textproc.PadSequences(tok.TextsToSequences(trainText), maxLen),
		xTest:     textproc.PadSequences(tok.TextsToSequences(testText), maxLen),
		yTrain:    yTrain,
		yTest:     yTest,
		tTrain:    textproc.OneHot(yTrain, enc.NumClasses()),
		tTest:     textproc.OneHot(yTest, enc.NumClasses()),
		tokenizer: tok,
		encoder:   enc,
	}, nil
}

func (t *Trainer) run(ctx context.Context, rep Reporter, jobID, modelType string, samples []models.TrainingSample, hp models.Hyperparameters) (*models.TrainingOutcome, error) {
	arch, err := nn.ParseArchitecture(modelType)
	if err != nil {
		return nil, err
	}

	data, err := prepare(samples, hp.MaxWords, hp.MaxLen)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare data: %w", err)
	}
	numClasses := data.encoder.NumClasses()
	log.Printf("Job %s: %d train / %d test samples, %d classes %v",
		jobID, len(data.xTrain), len(data.xTest), numClasses, data.encoder.Classes)

	cfg := t.Layers
	cfg.Architecture = arch
	cfg.VocabSize = data.tokenizer.VocabularySize()
	cfg.MaxLen = hp.MaxLen
	cfg.NumClasses = numClasses
	cfg.LearningRate = hp.LearningRate
	model, err := nn.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s model: %w", arch, err)
	}
	log.Printf("Job %s: built %s model with %d parameters", jobID, arch, model.NumParams())

	hist, err := model.Fit(ctx, data.xTrain, data.tTrain, data.xTest, data.tTest, nn.FitOptions{
		Epochs:    hp.Epochs,
		BatchSize: hp.BatchSize,
		OnEpochEnd: func(l nn.EpochLogs) error {
			if !rep.UpdateProgress(jobID, progressOf(l, hp.Epochs)) {
				return fmt.Errorf("%w: %s", ErrJobSuperseded, jobID)
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("training interrupted: %w", err)
	}

	testLoss, testAcc := model.Evaluate(data.xTest, data.tTest)
	pred := model.PredictClasses(data.xTest)

	built := model.Config()
	return &models.TrainingOutcome{
		Results: models.Results{
			Metadata: models.Metadata{
				ModelType:       string(arch),
				MaxWords:        hp.MaxWords,
				MaxLen:          hp.MaxLen,
				NumClasses:      numClasses,
				Classes:         append([]string(nil), data.encoder.Classes...),
				VocabSize:       built.VocabSize,
				EmbeddingDim:    built.EmbeddingDim,
				Hyperparameters: hp,
			},
			Metrics: models.Metrics{
				TestLoss:             testLoss,
				TestAccuracy:         testAcc,
				ClassificationReport: Report(data.yTest, pred, data.encoder.Classes),
				ConfusionMatrix:      ConfusionMatrix(data.yTest, pred, numClasses),
			},
			History: models.History{
				Loss:        hist.Loss,
				Accuracy:    hist.Accuracy,
				ValLoss:     hist.ValLoss,
				ValAccuracy: hist.ValAccuracy,
			},
		},
		Artifacts: &models.Artifacts{
			Model:        model,
			Tokenizer:    data.tokenizer,
			LabelEncoder: data.encoder,
		},
	}, nil
}

func progressOf(l nn.EpochLogs, total int) models.Progress {
	return models.Progress{
		CurrentEpoch:    l.Epoch,
		TotalEpochs:     total,
		Progress:        100 * float64(l.Epoch) / float64(total),
		CurrentLoss:     models.Float(l.Loss),
		CurrentAccuracy: models.Float(l.Accuracy),
		ValLoss:         models.Float(l.ValLoss),
		ValAccuracy:     models.Float(l.ValAccuracy),
	}
}
