// Package experiment runs single-factor elimination trials: the user avoids
// one trigger for a fixed number of days and the tracker measures how often
// they stuck to it and whether they felt better.
package experiment

import (
	"time"

	"mcp-meal-triggers/internal/triggers"
)

const (
	DefaultDurationDays = 7
	DefaultMinSample    = 7

	dayMillis = int64(24 * time.Hour / time.Millisecond)
)

type Status string

const StatusActive Status = "active"

// Experiment is the persisted snapshot of a running trial. Baseline fields
// copy the stats of the pattern the trial was started from.
type Experiment struct {
	Trigger       string            `json:"trigger"`
	Category      triggers.Category `json:"category"`
	CategoryLabel string            `json:"category_label"`
	Description   string            `json:"description"`
	StartDate     int64             `json:"start_date"` // epoch milliseconds
	DurationDays  int               `json:"duration_days"`
	Status        Status            `json:"status"`
	BaselineRate  int               `json:"baseline_rate"`
	BaselineTotal int               `json:"baseline_total"`
	BaselineBad   int               `json:"baseline_bad"`
}

// New snapshots p as the baseline of a trial starting at now.
func New(p triggers.Pattern, now time.Time, durationDays int) Experiment {
	if durationDays <= 0 {
		durationDays = DefaultDurationDays
	}
	return Experiment{
		Trigger:       p.Name,
		Category:      p.Category,
		CategoryLabel: p.CategoryLabel,
		Description:   p.Description,
		StartDate:     now.UnixMilli(),
		DurationDays:  durationDays,
		Status:        StatusActive,
		BaselineRate:  p.Rate,
		BaselineTotal: p.Total,
		BaselineBad:   p.Bad,
	}
}

// EndDate is the last instant, in epoch milliseconds, covered by the trial.
func (e *Experiment) EndDate() int64 {
	return e.StartDate + int64(e.DurationDays)*dayMillis
}
