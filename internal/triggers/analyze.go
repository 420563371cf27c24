// Package triggers mines a meal log for attributes that co-occur with feeling
// unwell (or well) more often than usual. The results are hypotheses, ranked
// by a lift-weighted score; nothing here is causal.
package triggers

import (
	"cmp"
	"slices"

	"mcp-meal-triggers/internal/models"
)

// Analysis is the output of one run over a meal log.
type Analysis struct {
	Patterns           []Pattern `json:"patterns"`
	PositivePatterns   []Pattern `json:"positive_patterns"`
	TopTrigger         *Pattern  `json:"top_trigger"`
	BaselineRate       int       `json:"baseline_rate"`
	BaselineGoodRate   int       `json:"baseline_good_rate"`
	TotalMealsAnalyzed int       `json:"total_meals_analyzed"`
}

// FindTrigger returns the negative pattern named name. Positive patterns
// are never triggers.
func (a *Analysis) FindTrigger(name string) (Pattern, bool) {
	for _, p := range a.Patterns {
		if p.Name == name {
			return p, true
		}
	}
	return Pattern{}, false
}

// Engine runs analyses with a fixed configuration. It holds no state between
// calls and is safe for concurrent use.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Config returns the thresholds the engine was built with.
func (e *Engine) Config() Config {
	return e.cfg
}

// Analyze runs the default engine.
func Analyze(meals []models.MealRecord, dismissed []DismissedPattern) Analysis {
	return NewEngine(DefaultConfig()).Analyze(meals, dismissed)
}

// Analyze scores every factor bucket in meals and returns the ranked
// negative and positive patterns, minus anything dismissed. Fewer than
// MinMeals records yield an empty result.
func (e *Engine) Analyze(meals []models.MealRecord, dismissed []DismissedPattern) Analysis {
	result := Analysis{
		Patterns:           []Pattern{},
		PositivePatterns:   []Pattern{},
		TotalMealsAnalyzed: len(meals),
	}
	if len(meals) < e.cfg.MinMeals {
		return result
	}

	base := ComputeBaseline(meals)
	result.BaselineRate = base.BadRate
	result.BaselineGoodRate = base.GoodRate

	var negative, positive []Pattern
	for _, b := range aggregate(meals, e.cfg.ExampleCap, e.cfg.Location) {
		if p, ok := e.cfg.score(b, Negative, base); ok {
			negative = append(negative, p)
		}
		if p, ok := e.cfg.score(b, Positive, base); ok {
			positive = append(positive, p)
		}
	}

	// Dismissals go first so a dismissed pattern never occupies a ranked slot.
	skip := newDismissalSet(dismissed)
	result.Patterns = rank(skip.filter(negative), e.cfg.MaxNegative)
	result.PositivePatterns = rank(skip.filter(positive), e.cfg.MaxPositive)
	if len(result.Patterns) > 0 {
		top := result.Patterns[0]
		result.TopTrigger = &top
	}
	return result
}

func rank(patterns []Pattern, limit int) []Pattern {
	slices.SortStableFunc(patterns, func(a, b Pattern) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Total, a.Total); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	if limit >= 0 && len(patterns) > limit {
		patterns = patterns[:limit]
	}
	if patterns == nil {
		return []Pattern{}
	}
	return patterns
}
