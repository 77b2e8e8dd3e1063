package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/taskwatch/internal/models"
)

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		days int
		want models.RiskLevel
	}{
		{-30, models.RiskHigh},
		{-1, models.RiskHigh},
		{0, models.RiskHigh},
		{1, models.RiskHigh},
		{2, models.RiskMedium},
		{5, models.RiskMedium},
		{6, models.RiskLow},
		{90, models.RiskLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.days), "days=%d", tc.days)
	}
}

func TestEvaluateUsesCalendarDays(t *testing.T) {
	e := NewEvaluator(time.UTC)
	due := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)

	// Late in the evening two calendar days before is still d=2.
	now := time.Date(2026, 10, 17, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 2, e.DaysUntil(due, now))
	assert.Equal(t, models.RiskMedium, e.Evaluate(due, now))

	// One minute later the calendar advanced.
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, e.DaysUntil(due, now))
	assert.Equal(t, models.RiskHigh, e.Evaluate(due, now))
}

func TestEvaluateRespectsLocation(t *testing.T) {
	lima := time.FixedZone("PET", -5*3600)
	e := NewEvaluator(lima)
	due := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	// 02:00 UTC on the 18th is still the 17th in Lima.
	now := time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC), e.Today(now))
	assert.Equal(t, 3, e.DaysUntil(due, now))
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := NewEvaluator(time.UTC)
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	for d := -3; d <= 8; d++ {
		due := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
		first := e.Evaluate(due, now)
		assert.Equal(t, first, e.Evaluate(due, now))
		assert.Equal(t, Classify(d), first)
	}
}

func TestEvaluateTaskRejectsInvalidDueDate(t *testing.T) {
	e := NewEvaluator(time.UTC)
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	_, err := e.EvaluateTask(models.Task{ID: 1}, now)
	require.ErrorIs(t, err, ErrInvalidDueDate)

	zero := time.Time{}
	_, err = e.EvaluateTask(models.Task{ID: 2, DueDate: &zero}, now)
	require.ErrorIs(t, err, ErrInvalidDueDate)

	due := time.Date(2026, 10, 25, 0, 0, 0, 0, time.UTC)
	level, err := e.EvaluateTask(models.Task{ID: 3, DueDate: &due}, now)
	require.NoError(t, err)
	assert.Equal(t, models.RiskLow, level)
}
