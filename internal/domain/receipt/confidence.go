package receipt

import "strings"

// Confidence penalties applied per missing critical field
const (
	PenaltyMissingDate   = 0.25
	PenaltyMissingVendor = 0.20
	PenaltyMissingTotal  = 0.35
	PenaltyMissingTax    = 0.10
)

// ComputeConfidence scores how complete an extraction is.
// Starts at 1.0 and subtracts a fixed penalty for each missing critical field, floored at 0.
// Adding a field never lowers the score.
func ComputeConfidence(doc NormalizedDocument) float64 {
	fields, ok := doc.ReceiptFields()
	if !ok {
		return 0
	}

	score := 1.0
	if fields.Date == nil {
		score -= PenaltyMissingDate
	}
	if strings.TrimSpace(fields.Vendor) == "" {
		score -= PenaltyMissingVendor
	}
	if fields.Total == nil {
		score -= PenaltyMissingTotal
	}
	if fields.Tax == nil {
		score -= PenaltyMissingTax
	}
	if score < 0 {
		return 0
	}
	return score
}

// EffectiveConfidence combines the extractor's own score (if any) with the completeness score.
// The lower of the two wins.
func EffectiveConfidence(doc NormalizedDocument, reported *float64) float64 {
	computed := ComputeConfidence(doc)
	if reported == nil {
		return computed
	}
	r := *reported
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	if r < computed {
		return r
	}
	return computed
}
