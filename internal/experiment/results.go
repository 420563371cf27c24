package experiment

import (
	"fmt"
	"math"
	"time"

	"mcp-meal-triggers/internal/models"
)

// Results summarizes a trial so far. Improvement stays 0 until at least one
// compliant meal falls in the window.
type Results struct {
	TotalMeals             int    `json:"total_meals"`
	CompliantMealsCount    int    `json:"compliant_meals_count"`
	NonCompliantMealsCount int    `json:"non_compliant_meals_count"`
	ComplianceRate         int    `json:"compliance_rate"`
	CompliantBadRate       int    `json:"compliant_bad_rate"`
	OverallBadRate         int    `json:"overall_bad_rate"`
	BaselineBadRate        int    `json:"baseline_bad_rate"`
	Improvement            int    `json:"improvement"`
	ImprovementText        string `json:"improvement_text"`
	DaysElapsed            int    `json:"days_elapsed"`
	IsComplete             bool   `json:"is_complete"`
	SampleSizeWarning      string `json:"sample_size_warning,omitempty"`
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(n) / float64(total)))
}

// ComputeResults classifies every meal logged between the start of the
// trial and min(now, end) and compares the bad-outcome rate of compliant
// meals with the trial's baseline. minSample is the windowed meal count
// below which a warning is attached.
func ComputeResults(exp Experiment, meals []models.MealRecord, now time.Time, loc *time.Location, minSample int) Results {
	nowMs := now.UnixMilli()
	windowEnd := min(nowMs, exp.EndDate())

	var r Results
	var compliantBad, totalBad int
	for i := range meals {
		m := &meals[i]
		if m.CreatedAt < exp.StartDate || m.CreatedAt > windowEnd {
			continue
		}
		r.TotalMeals++
		bad := m.IsBad()
		if bad {
			totalBad++
		}
		if exp.Compliant(m, loc) {
			r.CompliantMealsCount++
			if bad {
				compliantBad++
			}
		} else {
			r.NonCompliantMealsCount++
		}
	}

	r.ComplianceRate = percent(r.CompliantMealsCount, r.TotalMeals)
	r.CompliantBadRate = percent(compliantBad, r.CompliantMealsCount)
	r.OverallBadRate = percent(totalBad, r.TotalMeals)
	r.BaselineBadRate = exp.BaselineRate
	if exp.BaselineRate > 0 && r.CompliantMealsCount > 0 {
		r.Improvement = int(math.Round(100 * float64(exp.BaselineRate-r.CompliantBadRate) / float64(exp.BaselineRate)))
	}
	r.ImprovementText = improvementText(&exp, &r)

	if nowMs > exp.StartDate {
		r.DaysElapsed = int((nowMs - exp.StartDate) / dayMillis)
	}
	r.IsComplete = r.DaysElapsed >= exp.DurationDays
	if r.TotalMeals < minSample {
		r.SampleSizeWarning = fmt.Sprintf("Only %d meals logged during this experiment. Log at least %d for a reliable result.", r.TotalMeals, minSample)
	}
	return r
}

func improvementText(exp *Experiment, r *Results) string {
	switch {
	case r.CompliantMealsCount == 0:
		return fmt.Sprintf("No meals without %s logged yet.", exp.Trigger)
	case exp.BaselineRate == 0:
		return "No baseline to compare against."
	case r.Improvement > 0:
		return fmt.Sprintf("%d%% fewer bad reactions while avoiding %s (%d%% vs %d%% before).", r.Improvement, exp.Trigger, r.CompliantBadRate, exp.BaselineRate)
	case r.Improvement < 0:
		return fmt.Sprintf("%d%% more bad reactions while avoiding %s. It may not be your trigger.", -r.Improvement, exp.Trigger)
	default:
		return "No change compared with before the experiment."
	}
}
