package experiment

import (
	"slices"
	"strings"
	"time"

	"mcp-meal-triggers/internal/models"
	"mcp-meal-triggers/internal/triggers"
)

// containsFunc reports whether a meal carries the trigger value of one
// category. A meal is compliant when it does not.
type containsFunc func(trigger string, m *models.MealRecord, loc *time.Location) bool

var checks = map[triggers.Category]containsFunc{
	triggers.CategoryTag: func(trigger string, m *models.MealRecord, _ *time.Location) bool {
		return m.HasTag(strings.ToLower(strings.TrimSpace(trigger)))
	},
	triggers.CategoryType: func(trigger string, m *models.MealRecord, _ *time.Location) bool {
		return m.MealType() == models.ParseMealType(trigger)
	},
	triggers.CategoryTime: func(trigger string, m *models.MealRecord, _ *time.Location) bool {
		bucket, ok := triggers.TimingBucket(m)
		return ok && bucket == trigger
	},
	triggers.CategoryHabit: func(_ string, m *models.MealRecord, _ *time.Location) bool {
		return m.IsUnfinished()
	},
	triggers.CategoryMacro: func(trigger string, m *models.MealRecord, _ *time.Location) bool {
		flag, ok := triggers.LookupMacroFlag(trigger)
		return ok && flag.Matches(m)
	},
	triggers.CategoryDay: func(trigger string, m *models.MealRecord, loc *time.Location) bool {
		return triggers.Weekday(m, loc) == trigger
	},
	triggers.CategoryCombo: func(trigger string, m *models.MealRecord, loc *time.Location) bool {
		return slices.Contains(triggers.Extract(m, loc), triggers.Factor{Category: triggers.CategoryCombo, Name: trigger})
	},
}

// Supported reports whether compliance can be judged for trials on c.
func Supported(c triggers.Category) bool {
	_, ok := checks[c]
	return ok
}

// Compliant reports whether the meal avoided the experiment's trigger.
func (e *Experiment) Compliant(m *models.MealRecord, loc *time.Location) bool {
	check, ok := checks[e.Category]
	if !ok {
		return true
	}
	return !check(e.Trigger, m, loc)
}
