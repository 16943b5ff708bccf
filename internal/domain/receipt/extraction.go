package receipt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ReceiptExtraction is the append-only evidence of one successful extraction
type ReceiptExtraction struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	ReceiptID    uuid.UUID
	Submission   int
	Confidence   float64
	ModelVersion string
	RawPayload   json.RawMessage
	Normalized   NormalizedDocument
	CreatedAt    time.Time
}

// NewReceiptExtraction records extractor output against a receipt submission
func NewReceiptExtraction(r *Receipt, result *ExtractionResult, confidence float64) *ReceiptExtraction {
	raw := result.RawPayload
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	return &ReceiptExtraction{
		ID:           uuid.New(),
		TenantID:     r.TenantID,
		ReceiptID:    r.ID,
		Submission:   r.Submission,
		Confidence:   confidence,
		ModelVersion: result.ModelVersion,
		RawPayload:   raw,
		Normalized:   result.Normalized,
		CreatedAt:    time.Now().UTC(),
	}
}
