package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePeriod(t *testing.T) {
	t.Run("monthly", func(t *testing.T) {
		p, err := ResolvePeriod(PeriodTypeMonthly, "2025-12")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), p.Start)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), p.End)
		assert.True(t, p.Contains(time.Date(2025, 12, 31, 23, 59, 0, 0, time.UTC)))
		assert.False(t, p.Contains(p.End))
	})

	t.Run("ytd", func(t *testing.T) {
		p, err := ResolvePeriod(PeriodTypeYTD, "2025")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), p.Start)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), p.End)
	})

	malformed := []struct {
		periodType PeriodType
		key        string
	}{
		{PeriodTypeMonthly, "2025-13"},
		{PeriodTypeMonthly, "2025-1"},
		{PeriodTypeMonthly, "2025"},
		{PeriodTypeMonthly, "abcd-ef"},
		{PeriodTypeYTD, "25"},
		{PeriodTypeYTD, "2025-01"},
		{PeriodTypeYTD, "20x5"},
	}
	for _, m := range malformed {
		t.Run(string(m.periodType)+" "+m.key, func(t *testing.T) {
			_, err := ResolvePeriod(m.periodType, m.key)
			assert.ErrorIs(t, err, ErrInvalidPeriodKey)
		})
	}

	t.Run("unknown type", func(t *testing.T) {
		_, err := ResolvePeriod("QUARTERLY", "2025-Q1")
		assert.Error(t, err)
	})
}

func TestPeriodsFor(t *testing.T) {
	periods := PeriodsFor(time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC))

	require.Len(t, periods, 2)
	assert.Equal(t, PeriodTypeMonthly, periods[0].Type)
	assert.Equal(t, "2025-12", periods[0].Key)
	assert.Equal(t, PeriodTypeYTD, periods[1].Type)
	assert.Equal(t, "2025", periods[1].Key)

	for _, p := range periods {
		resolved, err := ResolvePeriod(p.Type, p.Key)
		require.NoError(t, err)
		assert.Equal(t, resolved.Start, p.Start)
		assert.Equal(t, resolved.End, p.End)
	}
}
