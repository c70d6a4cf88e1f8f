package models

import "time"

// JobStatus is the lifecycle state of a training job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is possible
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransitionTo enforces pending -> running -> completed|failed.
// A pending job may also fail before it starts running.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobRunning || next == JobFailed
	case JobRunning:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// Progress is the per-epoch snapshot reported while a job is running
type Progress struct {
	CurrentEpoch    int      `json:"currentEpoch"`
	TotalEpochs     int      `json:"totalEpochs"`
	Progress        float64  `json:"progress"`
	CurrentLoss     *float64 `json:"currentLoss"`
	CurrentAccuracy *float64 `json:"currentAccuracy"`
	ValLoss         *float64 `json:"valLoss"`
	ValAccuracy     *float64 `json:"valAccuracy"`
}

// Clone returns a deep copy
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	out := *p
	out.CurrentLoss = cloneFloat(p.CurrentLoss)
	out.CurrentAccuracy = cloneFloat(p.CurrentAccuracy)
	out.ValLoss = cloneFloat(p.ValLoss)
	out.ValAccuracy = cloneFloat(p.ValAccuracy)
	return &out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// Job is the full record of one retraining request.
// Artifacts hold the trained model and are never part of any response.
type Job struct {
	JobID     string     `json:"jobId"`
	ModelType string     `json:"modelType"`
	Status    JobStatus  `json:"status"`
	Progress  *Progress  `json:"progress"`
	Results   *Results   `json:"results"`
	Artifacts *Artifacts `json:"-"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	// Generation distinguishes records that reused the same JobID
	Generation uint64 `json:"-"`
}

// JobStatusView is what status polling returns
type JobStatusView struct {
	JobID    string    `json:"jobId"`
	Status   JobStatus `json:"status"`
	Progress *Progress `json:"progress"`
	Error    string    `json:"error,omitempty"`
}

// JobResultsView is what a completed job exposes
type JobResultsView struct {
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
	Metrics Metrics   `json:"metrics"`
	History History   `json:"history"`
}

// JobSummary is the listing form of a job
type JobSummary struct {
	JobID      string    `json:"jobId"`
	ModelType  string    `json:"modelType"`
	Status     JobStatus `json:"status"`
	Progress   *Progress `json:"progress"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Generation uint64    `json:"-"`
}
