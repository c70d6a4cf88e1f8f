package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/loiht2/ml-platform-email-classifier/backend/models"
	"github.com/loiht2/ml-platform-email-classifier/backend/registry"
	"github.com/loiht2/ml-platform-email-classifier/backend/trainer"
)

var ErrMonitorStopped = errors.New("job monitor is stopped")

// Trainer runs one training job to completion, reporting through rep
type Trainer interface {
	Train(ctx context.Context, rep trainer.Reporter, jobID, modelType string, samples []models.TrainingSample, hp models.Hyperparameters) (*models.TrainingOutcome, error)
}

// Archiver keeps finished jobs beyond the in-memory registry
type Archiver interface {
	ArchiveJob(ctx context.Context, job *models.Job) error
}

// JobMonitor runs training jobs in the background and watches their count
type JobMonitor struct {
	reg      *registry.Registry
	trainer  Trainer
	archiver Archiver
	interval time.Duration

	// ctx is the parent of every training run; cancelled by Stop
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
	jobs     sync.WaitGroup
}

// NewJobMonitor creates a new job monitor; archiver may be nil
func NewJobMonitor(reg *registry.Registry, trainer Trainer, archiver Archiver, interval time.Duration) *JobMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &JobMonitor{
		reg:      reg,
		trainer:  trainer,
		archiver: archiver,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		stopChan: make(chan struct{}),
	}
}

// Start begins logging job activity every interval
func (m *JobMonitor) Start() {
	m.wg.Add(1)
	go m.monitorLoop()
	log.Printf("Job monitor started - reporting every %s", m.interval)
}

// Stop cancels running jobs and waits for them to record their outcome
func (m *JobMonitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	m.cancel()
	close(m.stopChan)
	m.jobs.Wait()
	m.wg.Wait()
	log.Println("Job monitor stopped")
}

// Submit creates the job and trains it in the background. It returns as soon
// as the job is registered.
func (m *JobMonitor) Submit(jobID, modelType string, samples []models.TrainingSample, hp models.Hyperparameters) (models.JobSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return models.JobSummary{}, ErrMonitorStopped
	}

	summary := m.reg.CreateJob(jobID, modelType)
	m.jobs.Add(1)
	go m.supervise(jobID, summary.Generation, modelType, samples, hp)
	return summary, nil
}

// supervise is the boundary of a training goroutine: errors and panics end
// up in the registry and the log, never further up. Every write is scoped to
// gen, so a run whose id was resubmitted leaves the new record alone.
func (m *JobMonitor) supervise(jobID string, gen uint64, modelType string, samples []models.TrainingSample, hp models.Hyperparameters) {
	rep := m.reg.Scoped(gen)
	defer m.jobs.Done()
	defer m.archive(jobID, gen)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Training job %s panicked: %v\n%s", jobID, r, debug.Stack())
			rep.FailJob(jobID, fmt.Sprintf("training panicked: %v", r))
		}
	}()

	if _, err := m.trainer.Train(m.ctx, rep, jobID, modelType, samples, hp); err != nil {
		log.Printf("Training job %s failed: %v", jobID, err)
		rep.FailJob(jobID, err.Error())
	}
}

func (m *JobMonitor) archive(jobID string, gen uint64) {
	if m.archiver == nil {
		return
	}
	job, ok := m.reg.GetJob(jobID)
	if !ok || job.Generation != gen || !job.Status.Terminal() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.archiver.ArchiveJob(ctx, job); err != nil {
		log.Printf("Failed to archive job %s: %v", jobID, err)
	}
}

// monitorLoop periodically reports how many jobs are in flight
func (m *JobMonitor) monitorLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.checkAllJobs()
		}
	}
}

func (m *JobMonitor) checkAllJobs() {
	pending := m.reg.CountByStatus(models.JobPending)
	running := m.reg.CountByStatus(models.JobRunning)
	if pending+running == 0 {
		return
	}
	log.Printf("Monitoring %d active jobs (%d running, %d pending)", pending+running, running, pending)
}
