package receipt

import (
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
)

// ReviewResolution is how a reviewer closed a hold
type ReviewResolution string

const (
	ReviewResolutionApproved  ReviewResolution = "APPROVED"
	ReviewResolutionReextract ReviewResolution = "REEXTRACT"
	ReviewResolutionRejected  ReviewResolution = "REJECTED"
)

// IsValid checks if the resolution is a valid ReviewResolution
func (r ReviewResolution) IsValid() bool {
	switch r {
	case ReviewResolutionApproved, ReviewResolutionReextract, ReviewResolutionRejected:
		return true
	}
	return false
}

// ReceiptReview is the work item created when a receipt is held
type ReceiptReview struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ReceiptID  uuid.UUID
	Submission int
	HoldReason string
	Questions  []Question
	Resolution *ReviewResolution
	ResolvedBy *uuid.UUID
	ResolvedAt *time.Time
	Note       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewReceiptReview opens a review for a held receipt
func NewReceiptReview(r *Receipt, decision Decision) *ReceiptReview {
	now := time.Now().UTC()
	return &ReceiptReview{
		ID:         uuid.New(),
		TenantID:   r.TenantID,
		ReceiptID:  r.ID,
		Submission: r.Submission,
		HoldReason: decision.Reason,
		Questions:  decision.Questions,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsResolved returns true once a reviewer has acted
func (v *ReceiptReview) IsResolved() bool {
	return v.Resolution != nil
}

// Resolve closes the review. A resolved review cannot be resolved again.
func (v *ReceiptReview) Resolve(resolution ReviewResolution, resolvedBy uuid.UUID, note string) error {
	if v.IsResolved() {
		return shared.NewDomainError("INVALID_STATE", "Review is already resolved")
	}
	if !resolution.IsValid() {
		return shared.NewDomainError("INVALID_RESOLUTION", "Review resolution is not valid")
	}
	if resolvedBy == uuid.Nil {
		return shared.NewDomainError("INVALID_USER", "Reviewer user ID cannot be empty")
	}
	now := time.Now().UTC()
	v.Resolution = &resolution
	v.ResolvedBy = &resolvedBy
	v.ResolvedAt = &now
	v.Note = note
	v.UpdatedAt = now
	return nil
}
