package reconciliation

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
)

// EventTypeReconciliationCompleted is emitted after every reconciliation run
const EventTypeReconciliationCompleted = "reconciliation.completed.v1"

// ReconciliationCompleted announces a finished run
type ReconciliationCompleted struct {
	RunID         uuid.UUID `json:"runId"`
	Provider      string    `json:"provider"`
	PeriodKey     string    `json:"periodKey"`
	Revision      int       `json:"revision"`
	Status        RunStatus `json:"status"`
	VarianceCount int       `json:"varianceCount"`
}

// SourceKey scopes the event to one revision of the run
func (p ReconciliationCompleted) SourceKey() string {
	return fmt.Sprintf("%s#%d", p.RunID, p.Revision)
}

// ReconciliationCompletedEvent is the reconciliation.completed.v1 envelope
type ReconciliationCompletedEvent = shared.MessageEnvelope[ReconciliationCompleted]

// NewReconciliationCompletedEvent creates the envelope for a run
func NewReconciliationCompletedEvent(r *Run, correlationID string) *ReconciliationCompletedEvent {
	return shared.NewEnvelope(EventTypeReconciliationCompleted, r.TenantID, correlationID, ReconciliationCompleted{
		RunID:         r.ID,
		Provider:      r.Provider,
		PeriodKey:     r.PeriodKey,
		Revision:      r.Revision,
		Status:        r.Status,
		VarianceCount: r.NonZeroVariances(),
	})
}
