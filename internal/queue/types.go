package queue

import (
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s is a final job status.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one submitted execution of a document.
type Job struct {
	ID          string
	Document    []byte
	Digest      string
	Swaps       map[string]string
	Params      map[string]any
	Fingerprint string
	DependsOn   []string
	Status      Status
	SubmittedBy string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   *string
}

// SubmitRequest describes a job to enqueue. Fingerprint is the plan
// fingerprint computed when the document was validated at submit time.
type SubmitRequest struct {
	Document    []byte
	Swaps       map[string]string
	Params      map[string]any
	Fingerprint string
	SubmittedBy string
	// DependsOn holds ids of jobs that must succeed before this one is
	// claimed. If any of them fails, this job fails without running.
	DependsOn []string
	// Dedupe returns the id of an identical job still queued or running
	// instead of enqueueing a new one.
	Dedupe bool
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Limit  int
}

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrDuplicateJob = errors.New("identical job already pending")
)
