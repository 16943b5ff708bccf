package persistence

import (
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/livestatement/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for a unique constraint violation
const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint violation.
// gorm translates it to ErrDuplicatedKey when TranslateError is on; the pgconn check
// covers connections opened without it.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// notFound maps gorm's record-not-found to the domain error
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	return err
}

// changeLog records writes when the repository runs inside a transaction scope
type changeLog struct {
	recorder shared.ChangeRecorder
}

func (c changeLog) record(kind shared.ChangeKind, target string, id uuid.UUID) {
	if c.recorder != nil {
		c.recorder.Record(shared.PendingChange{Kind: kind, Target: target, ID: id})
	}
}

// Change targets for non-ledger tables
const (
	targetReceipt           = "receipt"
	targetReceiptExtraction = "receipt_extraction"
	targetReceiptReview     = "receipt_review"
	targetSnapshot          = "ledger_snapshot"
	targetStatement         = "statement"
	targetReconciliationRun = "reconciliation_run"
	targetVariance          = "reconciliation_variance"
	targetAuditEvent        = "audit_event"
	targetOutboxEvent       = "outbox_event"
)
