// Package registry keeps the in-memory record of every retraining job.
//
// All access goes through Registry methods, which take a single mutex for the
// duration of the map access and hand back copies. Trained artifacts are
// shared by pointer and only reachable through GetJob.
//
// Every CreateJob starts a new generation of its id. Mutations made through
// a Scoped reporter only apply to the generation it was created for, so a
// worker still running for a replaced record cannot touch its successor.
package registry

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/loiht2/ml-platform-email-classifier/backend/models"
)

// Registry is a thread-safe store of training jobs
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*models.Job
	gen  uint64
	now  func() time.Time
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		jobs: make(map[string]*models.Job),
		now:  time.Now,
	}
}

// CreateJob inserts a pending job, replacing any record with the same id
func (r *Registry) CreateJob(jobID, modelType string) models.JobSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if old, ok := r.jobs[jobID]; ok {
		log.Printf("Job %s already exists with status %s, replacing it", jobID, old.Status)
	}
	r.gen++
	job := &models.Job{
		JobID:      jobID,
		ModelType:  modelType,
		Status:     models.JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Generation: r.gen,
	}
	r.jobs[jobID] = job
	return summaryOf(job)
}

// lookup returns the record for jobID; gen 0 matches any generation.
// The caller holds r.mu.
func (r *Registry) lookup(jobID string, gen uint64) (*models.Job, bool) {
	job, ok := r.jobs[jobID]
	if !ok || (gen != 0 && job.Generation != gen) {
		return nil, false
	}
	return job, true
}

// UpdateStatus moves a job forward; unknown ids and backward moves are ignored
func (r *Registry) UpdateStatus(jobID string, status models.JobStatus) bool {
	return r.updateStatus(jobID, 0, status)
}

func (r *Registry) updateStatus(jobID string, gen uint64, status models.JobStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.lookup(jobID, gen)
	if !ok || !job.Status.CanTransitionTo(status) {
		return false
	}
	log.Printf("Job %s status changed: %s -> %s", jobID, job.Status, status)
	job.Status = status
	job.UpdatedAt = r.now()
	return true
}

// UpdateProgress replaces the progress snapshot of a running job
func (r *Registry) UpdateProgress(jobID string, progress models.Progress) bool {
	return r.updateProgress(jobID, 0, progress)
}

func (r *Registry) updateProgress(jobID string, gen uint64, progress models.Progress) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.lookup(jobID, gen)
	if !ok || job.Status != models.JobRunning {
		return false
	}
	job.Progress = progress.Clone()
	job.UpdatedAt = r.now()
	return true
}

// CompleteJob stores the outcome of a successful run
func (r *Registry) CompleteJob(jobID string, outcome *models.TrainingOutcome) bool {
	return r.completeJob(jobID, 0, outcome)
}

func (r *Registry) completeJob(jobID string, gen uint64, outcome *models.TrainingOutcome) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.lookup(jobID, gen)
	if !ok || outcome == nil || !job.Status.CanTransitionTo(models.JobCompleted) {
		return false
	}
	log.Printf("Job %s status changed: %s -> %s", jobID, job.Status, models.JobCompleted)
	job.Status = models.JobCompleted
	job.Results = outcome.Results.Clone()
	job.Artifacts = outcome.Artifacts
	job.UpdatedAt = r.now()
	return true
}

// FailJob marks a job failed with the given message
func (r *Registry) FailJob(jobID, message string) bool {
	return r.failJob(jobID, 0, message)
}

func (r *Registry) failJob(jobID string, gen uint64, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.lookup(jobID, gen)
	if !ok || !job.Status.CanTransitionTo(models.JobFailed) {
		return false
	}
	log.Printf("Job %s status changed: %s -> %s (%s)", jobID, job.Status, models.JobFailed, message)
	job.Status = models.JobFailed
	job.Error = message
	job.UpdatedAt = r.now()
	return true
}

// GetJob returns a copy of the full record. The artifacts are shared and must
// be treated as read-only.
func (r *Registry) GetJob(jobID string) (*models.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, false
	}
	out := *job
	out.Progress = job.Progress.Clone()
	out.Results = job.Results.Clone()
	return &out, true
}

// GetJobStatus returns the polling view of a job
func (r *Registry) GetJobStatus(jobID string) (models.JobStatusView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return models.JobStatusView{}, false
	}
	return models.JobStatusView{
		JobID:    job.JobID,
		Status:   job.Status,
		Progress: job.Progress.Clone(),
		Error:    job.Error,
	}, true
}

// GetJobResults returns metrics and history of a completed job
func (r *Registry) GetJobResults(jobID string) (models.JobResultsView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok || job.Status != models.JobCompleted || job.Results == nil {
		return models.JobResultsView{}, false
	}
	res := job.Results.Clone()
	return models.JobResultsView{
		JobID:   job.JobID,
		Status:  job.Status,
		Metrics: res.Metrics,
		History: res.History,
	}, true
}

// ListJobs returns every job, oldest first
func (r *Registry) ListJobs() []models.JobSummary {
	r.mu.Lock()
	out := make([]models.JobSummary, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, summaryOf(job))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].JobID < out[j].JobID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CountByStatus returns how many jobs are in the given state
func (r *Registry) CountByStatus(status models.JobStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, job := range r.jobs {
		if job.Status == status {
			n++
		}
	}
	return n
}

// DeleteJob drops a job and its artifacts
func (r *Registry) DeleteJob(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[jobID]; !ok {
		return false
	}
	delete(r.jobs, jobID)
	return true
}

func summaryOf(job *models.Job) models.JobSummary {
	return models.JobSummary{
		JobID:      job.JobID,
		ModelType:  job.ModelType,
		Status:     job.Status,
		Progress:   job.Progress.Clone(),
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
		Generation: job.Generation,
	}
}

// ScopedReporter applies job mutations to one generation only. Calls for a
// record that was deleted or replaced report false.
type ScopedReporter struct {
	reg *Registry
	gen uint64
}

// Scoped returns a reporter bound to the generation returned by CreateJob
func (r *Registry) Scoped(generation uint64) *ScopedReporter {
	return &ScopedReporter{reg: r, gen: generation}
}

func (s *ScopedReporter) UpdateStatus(jobID string, status models.JobStatus) bool {
	return s.reg.updateStatus(jobID, s.gen, status)
}

func (s *ScopedReporter) UpdateProgress(jobID string, progress models.Progress) bool {
	return s.reg.updateProgress(jobID, s.gen, progress)
}

func (s *ScopedReporter) CompleteJob(jobID string, outcome *models.TrainingOutcome) bool {
	return s.reg.completeJob(jobID, s.gen, outcome)
}

func (s *ScopedReporter) FailJob(jobID, message string) bool {
	return s.reg.failJob(jobID, s.gen, message)
}
