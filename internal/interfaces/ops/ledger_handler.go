package ops

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	ledgerapp "github.com/livestatement/backend/internal/application/ledger"
	receiptapp "github.com/livestatement/backend/internal/application/receipt"
	reconapp "github.com/livestatement/backend/internal/application/reconciliation"
	"github.com/livestatement/backend/internal/domain/ledger"
	"github.com/livestatement/backend/internal/domain/receipt"
	"github.com/livestatement/backend/internal/domain/reconciliation"
)

// LedgerHandler serves read-only views of snapshots, reconciliation runs, receipts and open reviews
type LedgerHandler struct {
	BaseHandler
	snapshots   *ledgerapp.SnapshotService
	recon       *reconapp.Service
	submissions *receiptapp.SubmissionService
	reviews     *receiptapp.ReviewService
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(
	snapshots *ledgerapp.SnapshotService,
	recon *reconapp.Service,
	submissions *receiptapp.SubmissionService,
	reviews *receiptapp.ReviewService,
) *LedgerHandler {
	return &LedgerHandler{snapshots: snapshots, recon: recon, submissions: submissions, reviews: reviews}
}

// SnapshotDetailResponse is one metric of a snapshot
type SnapshotDetailResponse struct {
	MetricKey    string `json:"metric_key"`
	Value        string `json:"value"`
	EvidencePct  string `json:"evidence_pct"`
	EstimatedPct string `json:"estimated_pct"`
}

// SnapshotResponse is a period summary with its Authority Score
type SnapshotResponse struct {
	ID             uuid.UUID                `json:"id"`
	PeriodType     string                   `json:"period_type"`
	PeriodKey      string                   `json:"period_key"`
	CalculatedAt   time.Time                `json:"calculated_at"`
	AuthorityScore int                      `json:"authority_score"`
	EvidencePct    string                   `json:"evidence_pct"`
	EstimatedPct   string                   `json:"estimated_pct"`
	LineCount      int                      `json:"line_count"`
	EvidencedCount int                      `json:"evidenced_count"`
	Details        []SnapshotDetailResponse `json:"details"`
}

// VarianceResponse is one metric of a reconciliation run
type VarianceResponse struct {
	MetricKey      string     `json:"metric_key"`
	MonthlyTotal   string     `json:"monthly_total"`
	YearlyTotal    string     `json:"yearly_total"`
	VarianceAmount string     `json:"variance_amount"`
	LedgerEntryID  *uuid.UUID `json:"ledger_entry_id,omitempty"`
	PostedAmount   string     `json:"posted_amount,omitempty"`
}

// RunResponse is the latest revision of a provider year
type RunResponse struct {
	ID                    uuid.UUID          `json:"id"`
	Provider              string             `json:"provider"`
	PeriodKey             string             `json:"period_key"`
	Status                string             `json:"status"`
	Revision              int                `json:"revision"`
	MonthlyStatementCount int                `json:"monthly_statement_count"`
	VarianceAmount        string             `json:"variance_amount"`
	RanAt                 time.Time          `json:"ran_at"`
	Variances             []VarianceResponse `json:"variances"`
}

// ReviewResponse is an open hold review
type ReviewResponse struct {
	ID         uuid.UUID          `json:"id"`
	ReceiptID  uuid.UUID          `json:"receipt_id"`
	Submission int                `json:"submission"`
	HoldReason string             `json:"hold_reason"`
	Questions  []receipt.Question `json:"questions"`
	CreatedAt  time.Time          `json:"created_at"`
}

// ExtractionResponse is the extractor output a hold decision was made on
type ExtractionResponse struct {
	ID           uuid.UUID                  `json:"id"`
	Submission   int                        `json:"submission"`
	Confidence   float64                    `json:"confidence"`
	ModelVersion string                     `json:"model_version"`
	Normalized   receipt.NormalizedDocument `json:"normalized"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// ReviewDetailResponse is an open review with its latest extraction
type ReviewDetailResponse struct {
	ReviewResponse
	Extraction *ExtractionResponse `json:"extraction,omitempty"`
}

// ReceiptSummaryResponse is one receipt of a status listing
type ReceiptSummaryResponse struct {
	ID         uuid.UUID `json:"id"`
	Status     string    `json:"status"`
	Submission int       `json:"submission"`
	HoldReason string    `json:"hold_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GetSnapshot returns a stored period snapshot.
// GET /ops/tenants/:tenant/snapshots/:periodType/:periodKey
func (h *LedgerHandler) GetSnapshot(c *gin.Context) {
	tenantID, ok := h.parseUUIDParam(c, "tenant")
	if !ok {
		return
	}
	periodType := ledger.PeriodType(strings.ToUpper(c.Param("periodType")))
	snap, err := h.snapshots.Get(c.Request.Context(), tenantID, periodType, c.Param("periodKey"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSnapshotResponse(snap))
}

// GetRun returns the reconciliation run of a provider year.
// GET /ops/tenants/:tenant/reconciliations/:provider/:year
func (h *LedgerHandler) GetRun(c *gin.Context) {
	tenantID, ok := h.parseUUIDParam(c, "tenant")
	if !ok {
		return
	}
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		h.BadRequest(c, "Invalid year")
		return
	}
	run, err := h.recon.GetRun(c.Request.Context(), tenantID, c.Param("provider"), year)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toRunResponse(run))
}

// ListOpenReviews lists held receipts waiting for an operator.
// GET /ops/tenants/:tenant/reviews?limit=50
func (h *LedgerHandler) ListOpenReviews(c *gin.Context) {
	tenantID, ok := h.parseUUIDParam(c, "tenant")
	if !ok {
		return
	}
	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}
	reviews, err := h.reviews.ListOpen(c.Request.Context(), tenantID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]ReviewResponse, len(reviews))
	for i, r := range reviews {
		out[i] = toReviewResponse(r)
	}
	h.Success(c, out)
}

// GetReview returns the open review of a held receipt with the extraction behind it.
// GET /ops/tenants/:tenant/reviews/:receipt
func (h *LedgerHandler) GetReview(c *gin.Context) {
	tenantID, ok := h.parseUUIDParam(c, "tenant")
	if !ok {
		return
	}
	receiptID, ok := h.parseUUIDParam(c, "receipt")
	if !ok {
		return
	}
	detail, err := h.reviews.GetOpen(c.Request.Context(), tenantID, receiptID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := ReviewDetailResponse{ReviewResponse: toReviewResponse(detail.Review)}
	if e := detail.Extraction; e != nil {
		resp.Extraction = &ExtractionResponse{
			ID:           e.ID,
			Submission:   e.Submission,
			Confidence:   e.Confidence,
			ModelVersion: e.ModelVersion,
			Normalized:   e.Normalized,
			CreatedAt:    e.CreatedAt,
		}
	}
	h.Success(c, resp)
}

// ListReceipts lists the oldest receipts in a status, SUBMITTED by default,
// so receipts that never reached extraction can be found.
// GET /ops/tenants/:tenant/receipts?status=SUBMITTED&limit=50
func (h *LedgerHandler) ListReceipts(c *gin.Context) {
	tenantID, ok := h.parseUUIDParam(c, "tenant")
	if !ok {
		return
	}
	limit, ok := h.parseLimit(c)
	if !ok {
		return
	}
	status := receipt.ReceiptStatusSubmitted
	if raw := c.Query("status"); raw != "" {
		status = receipt.ReceiptStatus(strings.ToUpper(raw))
	}
	receipts, err := h.submissions.ListByStatus(c.Request.Context(), tenantID, status, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]ReceiptSummaryResponse, len(receipts))
	for i, r := range receipts {
		out[i] = ReceiptSummaryResponse{
			ID:         r.ID,
			Status:     string(r.Status),
			Submission: r.Submission,
			HoldReason: r.HoldReason,
			CreatedAt:  r.CreatedAt,
			UpdatedAt:  r.UpdatedAt,
		}
	}
	h.Success(c, out)
}

func (h *LedgerHandler) parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 50, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		h.BadRequest(c, "Invalid limit")
		return 0, false
	}
	return n, true
}

func toReviewResponse(r *receipt.ReceiptReview) ReviewResponse {
	return ReviewResponse{
		ID:         r.ID,
		ReceiptID:  r.ReceiptID,
		Submission: r.Submission,
		HoldReason: r.HoldReason,
		Questions:  r.Questions,
		CreatedAt:  r.CreatedAt,
	}
}

func toSnapshotResponse(s *ledger.Snapshot) SnapshotResponse {
	details := make([]SnapshotDetailResponse, len(s.Details))
	for i, d := range s.Details {
		details[i] = SnapshotDetailResponse{
			MetricKey:    d.MetricKey,
			Value:        d.Value.StringFixed(2),
			EvidencePct:  d.EvidencePct.String(),
			EstimatedPct: d.EstimatedPct.String(),
		}
	}
	return SnapshotResponse{
		ID:             s.ID,
		PeriodType:     string(s.PeriodType),
		PeriodKey:      s.PeriodKey,
		CalculatedAt:   s.CalculatedAt,
		AuthorityScore: s.AuthorityScore,
		EvidencePct:    s.EvidencePct.String(),
		EstimatedPct:   s.EstimatedPct.String(),
		LineCount:      s.LineCount,
		EvidencedCount: s.EvidencedCount,
		Details:        details,
	}
}

func toRunResponse(r *reconciliation.Run) RunResponse {
	variances := make([]VarianceResponse, len(r.Variances))
	for i, v := range r.Variances {
		resp := VarianceResponse{
			MetricKey:      v.MetricKey,
			MonthlyTotal:   v.MonthlyTotal.StringFixed(2),
			YearlyTotal:    v.YearlyTotal.StringFixed(2),
			VarianceAmount: v.VarianceAmount.StringFixed(2),
			LedgerEntryID:  v.LedgerEntryID,
		}
		if v.PostedAmount != nil {
			resp.PostedAmount = v.PostedAmount.StringFixed(2)
		}
		variances[i] = resp
	}
	return RunResponse{
		ID:                    r.ID,
		Provider:              r.Provider,
		PeriodKey:             r.PeriodKey,
		Status:                string(r.Status),
		Revision:              r.Revision,
		MonthlyStatementCount: r.MonthlyStatementCount,
		VarianceAmount:        r.VarianceAmount.StringFixed(2),
		RanAt:                 r.RanAt,
		Variances:             variances,
	}
}
