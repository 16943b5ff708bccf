package shared

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a processing job
type JobStatus string

const (
	JobStatusStarted   JobStatus = "STARTED"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

// IsValid checks if the status is a valid JobStatus
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusStarted, JobStatusSucceeded, JobStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of JobStatus
func (s JobStatus) String() string {
	return string(s)
}

// MaxJobErrorLength bounds the error text kept on a job row
const MaxJobErrorLength = 2000

// ProcessingJob records that a unit of work keyed by (tenant, job type, dedupe key)
// was attempted. Rows are never deleted; a succeeded row permanently suppresses
// re-execution of the same work.
type ProcessingJob struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	JobType   string
	DedupeKey string
	Status    JobStatus
	Attempts  int
	LastError string
	StartedAt time.Time
	// FinishedAt is set when the job reaches Succeeded or Failed
	FinishedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewProcessingJob creates a job in the Started state for its first attempt
func NewProcessingJob(tenantID uuid.UUID, jobType, dedupeKey string) *ProcessingJob {
	now := time.Now().UTC()
	return &ProcessingJob{
		ID:        uuid.New(),
		TenantID:  tenantID,
		JobType:   jobType,
		DedupeKey: dedupeKey,
		Status:    JobStatusStarted,
		Attempts:  1,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TruncateError trims an error message to at most MaxJobErrorLength bytes,
// cutting on a rune boundary so the stored text stays valid UTF-8
func TruncateError(msg string) string {
	if len(msg) <= MaxJobErrorLength {
		return msg
	}
	cut := MaxJobErrorLength
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// AdmitResult is the outcome of asking the gate to run a unit of work
type AdmitResult int

const (
	// Admitted means this is the first attempt at the work
	Admitted AdmitResult = iota
	// AlreadySucceeded means a previous delivery finished the work; skip it
	AlreadySucceeded
	// Retrying means a previous attempt started or failed; run the work again
	Retrying
)

// String returns the string representation of AdmitResult
func (r AdmitResult) String() string {
	switch r {
	case Admitted:
		return "admitted"
	case AlreadySucceeded:
		return "already_succeeded"
	case Retrying:
		return "retrying"
	default:
		return "unknown"
	}
}

// ShouldRun returns true if the caller must execute the work
func (r AdmitResult) ShouldRun() bool {
	return r != AlreadySucceeded
}

// IdempotencyGate decides whether a delivered message's work must run.
// The unique (tenant, job type, dedupe key) constraint is its only synchronization.
type IdempotencyGate interface {
	Admit(ctx context.Context, tenantID uuid.UUID, jobType, dedupeKey string) (AdmitResult, error)
	MarkSucceeded(ctx context.Context, tenantID uuid.UUID, jobType, dedupeKey string) error
	MarkFailed(ctx context.Context, tenantID uuid.UUID, jobType, dedupeKey string, cause error) error
}

// ProcessingJobRepository reads processing jobs for operators
type ProcessingJobRepository interface {
	FindByKey(ctx context.Context, tenantID uuid.UUID, jobType, dedupeKey string) (*ProcessingJob, error)
	FindFailed(ctx context.Context, tenantID uuid.UUID, limit int) ([]*ProcessingJob, error)
}
