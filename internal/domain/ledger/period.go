package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/livestatement/backend/internal/domain/shared"
)

// PeriodType is the granularity of a snapshot
type PeriodType string

const (
	PeriodTypeMonthly PeriodType = "MONTHLY"
	PeriodTypeYTD     PeriodType = "YTD"
)

// IsValid checks if the period type is a valid PeriodType
func (p PeriodType) IsValid() bool {
	return p == PeriodTypeMonthly || p == PeriodTypeYTD
}

// String returns the string representation of PeriodType
func (p PeriodType) String() string {
	return string(p)
}

// ErrInvalidPeriodKey is returned for keys that do not match their period type
var ErrInvalidPeriodKey = shared.NewDomainError("INVALID_PERIOD_KEY", "Period key is not valid for the period type")

// Period is a half-open date range [Start, End)
type Period struct {
	Type  PeriodType
	Key   string
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the period
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// ResolvePeriod parses a period key. Monthly keys are YYYY-MM, YTD keys are YYYY.
func ResolvePeriod(periodType PeriodType, key string) (Period, error) {
	switch periodType {
	case PeriodTypeMonthly:
		if len(key) != 7 {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, key)
		}
		start, err := time.Parse("2006-01", key)
		if err != nil {
			return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, key)
		}
		return Period{Type: periodType, Key: key, Start: start, End: start.AddDate(0, 1, 0)}, nil
	case PeriodTypeYTD:
		year, err := parseYear(key)
		if err != nil {
			return Period{}, err
		}
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return Period{Type: periodType, Key: key, Start: start, End: start.AddDate(1, 0, 0)}, nil
	default:
		return Period{}, shared.NewDomainError("INVALID_PERIOD_TYPE", fmt.Sprintf("Unknown period type %q", periodType))
	}
}

// PeriodsFor returns the Monthly and YTD periods an entry date belongs to
func PeriodsFor(date time.Time) []Period {
	d := date.UTC()
	monthStart := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	yearStart := time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return []Period{
		{Type: PeriodTypeMonthly, Key: monthStart.Format("2006-01"), Start: monthStart, End: monthStart.AddDate(0, 1, 0)},
		{Type: PeriodTypeYTD, Key: strconv.Itoa(d.Year()), Start: yearStart, End: yearStart.AddDate(1, 0, 0)},
	}
}

func parseYear(key string) (int, error) {
	if len(key) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, key)
	}
	year, err := strconv.Atoi(key)
	if err != nil || year < 1900 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPeriodKey, key)
	}
	return year, nil
}
