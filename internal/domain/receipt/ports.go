package receipt

import (
	"context"
	"encoding/json"
	"io"

	"github.com/google/uuid"
)

// ExtractionResult is what an extractor read from a document
type ExtractionResult struct {
	Normalized NormalizedDocument
	// Confidence is the extractor's own score in [0,1], if it reports one
	Confidence   *float64
	ModelVersion string
	RawPayload   json.RawMessage
}

// Extractor turns a document stream into structured fields.
// Implementations make a single attempt; redelivery handles retries.
type Extractor interface {
	Extract(ctx context.Context, document io.Reader) (*ExtractionResult, error)
}

// FileStore opens stored receipt documents
type FileStore interface {
	Open(ctx context.Context, tenantID, fileObjectID uuid.UUID) (io.ReadCloser, error)
}
