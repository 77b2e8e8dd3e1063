package risk

import (
	"errors"
	"time"

	"github.com/stanstork/taskwatch/internal/models"
)

var ErrInvalidDueDate = errors.New("invalid due date")

const (
	// Tasks due in fewer than highWindowDays days (or overdue) are high risk.
	highWindowDays = 2
	// Tasks due within mediumWindowDays days are medium risk.
	mediumWindowDays = 5
)

// Classify maps a signed day distance to a risk tier.
func Classify(days int) models.RiskLevel {
	switch {
	case days < highWindowDays:
		return models.RiskHigh
	case days <= mediumWindowDays:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// Evaluator computes risk tiers against calendar days in a fixed location.
type Evaluator struct {
	loc *time.Location
}

func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{loc: loc}
}

func (e *Evaluator) Location() *time.Location {
	return e.loc
}

// Today is the calendar day of now in the evaluator's location.
func (e *Evaluator) Today(now time.Time) time.Time {
	return CalendarDay(now, e.loc)
}

// DaysUntil returns the whole number of calendar days from now to due;
// negative when due has passed.
func (e *Evaluator) DaysUntil(due, now time.Time) int {
	return int(DateOnly(due).Sub(e.Today(now)) / (24 * time.Hour))
}

// Evaluate is pure: the same (due, now) always yields the same tier.
func (e *Evaluator) Evaluate(due, now time.Time) models.RiskLevel {
	return Classify(e.DaysUntil(due, now))
}

// EvaluateTask validates the task's due date before evaluating it.
func (e *Evaluator) EvaluateTask(task models.Task, now time.Time) (models.RiskLevel, error) {
	if err := ValidateDueDate(task.DueDate); err != nil {
		return "", err
	}
	return e.Evaluate(*task.DueDate, now), nil
}

func ValidateDueDate(due *time.Time) error {
	if due == nil || due.IsZero() {
		return ErrInvalidDueDate
	}
	if y := due.Year(); y < 1900 || y > 9999 {
		return ErrInvalidDueDate
	}
	return nil
}
