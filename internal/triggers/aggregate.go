package triggers

import (
	"time"

	"mcp-meal-triggers/internal/models"
)

// Example is a display excerpt of a meal that fed a pattern.
type Example struct {
	ID       string  `json:"id"`
	Name     string  `json:"name,omitempty"`
	Type     string  `json:"type"`
	Feeling  string  `json:"feeling"`
	Calories float64 `json:"calories,omitempty"`
	Time     string  `json:"time,omitempty"`
	Date     string  `json:"date"`
}

func newExample(m *models.MealRecord, loc *time.Location) Example {
	return Example{
		ID:       m.ID,
		Name:     m.Name,
		Type:     string(m.MealType()),
		Feeling:  string(m.Outcome()),
		Calories: m.Calories,
		Time:     m.Time,
		Date:     m.LoggedAt(loc).Format("2006-01-02"),
	}
}

// exampleList keeps the first limit examples it is given and ignores the rest.
type exampleList struct {
	limit int
	items []Example
}

func (l *exampleList) add(m *models.MealRecord, loc *time.Location) {
	if len(l.items) >= l.limit {
		return
	}
	l.items = append(l.items, newExample(m, loc))
}

func (l *exampleList) list() []Example {
	out := make([]Example, len(l.items))
	copy(out, l.items)
	return out
}

type bucket struct {
	factor       Factor
	total        int
	bad          int
	good         int
	badExamples  exampleList
	goodExamples exampleList
}

func (b *bucket) observe(m *models.MealRecord, loc *time.Location) {
	b.total++
	switch {
	case m.IsBad():
		b.bad++
		b.badExamples.add(m, loc)
	case m.IsGood():
		b.good++
		b.goodExamples.add(m, loc)
	}
}

// aggregate folds every meal into the buckets of the factors it carries.
// Buckets come back in order of first appearance.
func aggregate(meals []models.MealRecord, exampleCap int, loc *time.Location) []*bucket {
	index := make(map[Factor]*bucket)
	var ordered []*bucket
	for i := range meals {
		m := &meals[i]
		for _, f := range Extract(m, loc) {
			b, ok := index[f]
			if !ok {
				b = &bucket{
					factor:       f,
					badExamples:  exampleList{limit: exampleCap},
					goodExamples: exampleList{limit: exampleCap},
				}
				index[f] = b
				ordered = append(ordered, b)
			}
			b.observe(m, loc)
		}
	}
	return ordered
}

// Baseline holds the population-wide outcome rates used for lift.
type Baseline struct {
	Total    int
	Bad      int
	Good     int
	BadRate  int
	GoodRate int
}

// ComputeBaseline measures the share of bad and good outcomes over all meals.
func ComputeBaseline(meals []models.MealRecord) Baseline {
	var b Baseline
	for i := range meals {
		b.Total++
		switch {
		case meals[i].IsBad():
			b.Bad++
		case meals[i].IsGood():
			b.Good++
		}
	}
	b.BadRate = percent(b.Bad, b.Total)
	b.GoodRate = percent(b.Good, b.Total)
	return b
}
