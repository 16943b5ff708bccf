package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is the relay state of an outbox entry
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

// Relay retry defaults
const (
	DefaultMaxRetries = 5
	BaseRelayBackoff  = time.Second
	MaxRelayBackoff   = 5 * time.Minute
)

// ErrOutboxNotDead is returned when replaying an entry that has not been dead-lettered
var ErrOutboxNotDead = NewDomainError("INVALID_STATUS", "can only retry dead letter entries")

// OutboxEntry is one serialized envelope committed alongside the state change
// that raised it. The relay moves it PENDING -> PROCESSING -> SENT, or through
// FAILED back to PROCESSING until it runs out of retries and is DEAD.
type OutboxEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	EventID       uuid.UUID
	EventType     string
	CorrelationID string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	MaxRetries    int
	LastError     string
	NextRetryAt   *time.Time
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewOutboxEntry wraps a serialized envelope, copying its routing header
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	now := time.Now()
	return &OutboxEntry{
		ID:            uuid.New(),
		TenantID:      event.TenantID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		CorrelationID: event.CorrelationID(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// RelayBackoff is the wait before retry n (1-based): 1s doubling up to MaxRelayBackoff
func RelayBackoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := BaseRelayBackoff
	for i := 1; i < n && d < MaxRelayBackoff; i++ {
		d *= 2
	}
	if d > MaxRelayBackoff {
		d = MaxRelayBackoff
	}
	return d
}

// MarkSent records a successful delivery
func (e *OutboxEntry) MarkSent() {
	now := time.Now()
	e.Status = OutboxStatusSent
	e.ProcessedAt = &now
	e.NextRetryAt = nil
	e.UpdatedAt = now
}

// MarkFailed counts a failed delivery and schedules the next attempt,
// or dead-letters the entry once MaxRetries deliveries have failed
func (e *OutboxEntry) MarkFailed(errMsg string) {
	now := time.Now()
	e.RetryCount++
	e.LastError = TruncateError(errMsg)
	e.UpdatedAt = now
	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		e.NextRetryAt = nil
		return
	}
	e.Status = OutboxStatusFailed
	next := now.Add(RelayBackoff(e.RetryCount))
	e.NextRetryAt = &next
}

// MarkDead dead-letters the entry without spending retries. Used for envelopes
// no consumer can ever accept: unknown type or a payload that does not decode.
func (e *OutboxEntry) MarkDead(errMsg string) {
	e.Status = OutboxStatusDead
	e.LastError = TruncateError(errMsg)
	e.NextRetryAt = nil
	e.UpdatedAt = time.Now()
}

// ResetForRetry returns a dead entry to PENDING with a fresh retry budget
func (e *OutboxEntry) ResetForRetry() error {
	if e.Status != OutboxStatusDead {
		return ErrOutboxNotDead
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.UpdatedAt = time.Now()
	return nil
}

// IsDead reports whether the relay has given up on the entry
func (e *OutboxEntry) IsDead() bool {
	return e.Status == OutboxStatusDead
}

// OutboxRepository stores outbox entries for the relay and the dead-letter tools
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	// FindPending returns up to limit never-attempted entries, oldest first
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// FindRetryable returns failed entries whose next retry is before the given time
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// MarkProcessing claims the entries still claimable and returns them
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	// DeleteOlderThan removes sent entries processed before the given time
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
