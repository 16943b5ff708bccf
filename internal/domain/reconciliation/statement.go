package reconciliation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// StatementPeriodType is the span a platform statement covers
type StatementPeriodType string

const (
	StatementPeriodMonthly StatementPeriodType = "MONTHLY"
	StatementPeriodYearly  StatementPeriodType = "YEARLY"
)

// IsValid checks if the value is a valid StatementPeriodType
func (p StatementPeriodType) IsValid() bool {
	return p == StatementPeriodMonthly || p == StatementPeriodYearly
}

// StatementStatus tracks whether a statement is final
type StatementStatus string

const (
	StatementStatusDraft  StatementStatus = "DRAFT"
	StatementStatusPosted StatementStatus = "POSTED"
)

// Statement is a platform-issued income statement for one provider and period
type Statement struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Provider   string
	PeriodType StatementPeriodType
	PeriodKey  string
	Status     StatementStatus
	Lines      []StatementLine
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StatementLine is one described amount on a statement
type StatementLine struct {
	ID          uuid.UUID
	StatementID uuid.UUID
	LineNo      int
	Description string
	Amount      decimal.Decimal
}

// StatementLineInput describes a line when creating a statement
type StatementLineInput struct {
	Description string
	Amount      decimal.Decimal
}

// NewStatement creates a draft statement. Monthly keys are YYYY-MM, yearly keys are YYYY.
func NewStatement(tenantID uuid.UUID, provider string, periodType StatementPeriodType, periodKey string, lines []StatementLineInput) (*Statement, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	provider = NormalizeProvider(provider)
	if provider == "" {
		return nil, shared.NewDomainError("INVALID_PROVIDER", "Provider cannot be empty")
	}
	if !periodType.IsValid() {
		return nil, shared.NewDomainError("INVALID_PERIOD_TYPE", "Statement period type is not valid")
	}
	if _, err := statementYear(periodType, periodKey); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s := &Statement{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Provider:   provider,
		PeriodType: periodType,
		PeriodKey:  periodKey,
		Status:     StatementStatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, in := range lines {
		if strings.TrimSpace(in.Description) == "" {
			return nil, shared.NewDomainError("INVALID_LINE", fmt.Sprintf("Line %d has no description", i+1))
		}
		s.Lines = append(s.Lines, StatementLine{
			ID:          uuid.New(),
			StatementID: s.ID,
			LineNo:      i + 1,
			Description: strings.TrimSpace(in.Description),
			Amount:      in.Amount,
		})
	}
	return s, nil
}

// Post finalizes the statement so reconciliation will count it
func (s *Statement) Post() error {
	if s.Status != StatementStatusDraft {
		return shared.NewDomainError("INVALID_STATE", "Only draft statements can be posted")
	}
	s.Status = StatementStatusPosted
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// IsPosted returns true if the statement is final
func (s *Statement) IsPosted() bool {
	return s.Status == StatementStatusPosted
}

// Year returns the calendar year the statement belongs to
func (s *Statement) Year() int {
	y, _ := statementYear(s.PeriodType, s.PeriodKey)
	return y
}

// NormalizeProvider lower-cases and trims a provider name
func NormalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func statementYear(periodType StatementPeriodType, key string) (int, error) {
	invalid := shared.NewDomainError("INVALID_PERIOD_KEY", fmt.Sprintf("Period key %q is not valid for %s statements", key, periodType))
	switch periodType {
	case StatementPeriodMonthly:
		t, err := time.Parse("2006-01", key)
		if err != nil || len(key) != 7 {
			return 0, invalid
		}
		return t.Year(), nil
	case StatementPeriodYearly:
		y, err := strconv.Atoi(key)
		if err != nil || len(key) != 4 {
			return 0, invalid
		}
		return y, nil
	}
	return 0, invalid
}
