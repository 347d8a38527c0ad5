package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// JobStatus represents the state of a deferred generation job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusPartial   JobStatus = "partial"
	StatusFailed    JobStatus = "failed"
)

// OutcomeStatus is what happened to one document in a generation request.
type OutcomeStatus string

const (
	OutcomeCompleted  OutcomeStatus = "completed"
	OutcomeExists     OutcomeStatus = "exists"
	OutcomeFailed     OutcomeStatus = "failed"
	OutcomeInProgress OutcomeStatus = "in_progress"
	OutcomeIneligible OutcomeStatus = "ineligible"
)

// Outcome reports the result of generating one document's tree.
type Outcome struct {
	DocumentID string        `json:"document_id"`
	Status     OutcomeStatus `json:"status"`
	NodeCount  int           `json:"node_count,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// OK reports whether the document has a usable tree after the request.
func (o Outcome) OK() bool {
	return o.Status == OutcomeCompleted || o.Status == OutcomeExists
}

// Job tracks a deferred generation request over one or more documents.
type Job struct {
	mu sync.Mutex

	ID          string    `json:"job_id"`
	UserID      string    `json:"user_id"`
	DocumentIDs []string  `json:"document_ids"`
	Force       bool      `json:"force"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	outcomes []Outcome
	errors   []string
}

// Progress counts documents processed so far.
type Progress struct {
	Total     int      `json:"total"`
	Done      int      `json:"done"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

func NewJob(id, userID string, docIDs []string, force bool) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		UserID:      userID,
		DocumentIDs: docIDs,
		Force:       force,
		Status:      StatusQueued,
		Phase:       "queued",
		Progress:    Progress{Total: len(docIDs)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		updated := job.UpdatedAt
		job.mu.Unlock()
		if now.Sub(updated) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// RecordOutcome adds one document's result and advances progress.
func (j *Job) RecordOutcome(o Outcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.outcomes = append(j.outcomes, o)
	j.Progress.Done++
	if o.OK() {
		j.Progress.Succeeded++
	} else {
		j.Progress.Failed++
		if o.Error != "" {
			j.errors = append(j.errors, fmt.Sprintf("%s: %s", o.DocumentID, o.Error))
			j.Progress.Errors = j.errors
		}
	}
	j.UpdatedAt = time.Now()
}

// Finish sets the terminal status from the recorded outcomes.
func (j *Job) Finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.Progress.Failed == 0:
		j.Status = StatusCompleted
	case j.Progress.Succeeded > 0:
		j.Status = StatusPartial
	default:
		j.Status = StatusFailed
	}
	j.Phase = "done"
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	UserID      string    `json:"user_id"`
	DocumentIDs []string  `json:"document_ids"`
	Force       bool      `json:"force"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Progress    Progress  `json:"progress"`
	Outcomes    []Outcome `json:"outcomes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	outcomes := append([]Outcome{}, j.outcomes...)
	docs := append([]string{}, j.DocumentIDs...)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:          j.ID,
		UserID:      j.UserID,
		DocumentIDs: docs,
		Force:       j.Force,
		Status:      j.Status,
		Phase:       j.Phase,
		Progress:    p,
		Outcomes:    outcomes,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
