package triggers

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-triggers/internal/models"
)

var day0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// meal builds one lunch per day so no weekday bucket reaches the sample floor
// in logs shorter than five weeks.
func meal(i int, tags string, feeling models.Feeling) models.MealRecord {
	return models.MealRecord{
		ID:        fmt.Sprintf("m%02d", i),
		CreatedAt: day0.AddDate(0, 0, i).UnixMilli(),
		Type:      "Lunch",
		Tags:      tags,
		Feeling:   feeling,
	}
}

func testEngine(mutate ...func(*Config)) *Engine {
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	for _, fn := range mutate {
		fn(&cfg)
	}
	return NewEngine(cfg)
}

// dairyLog: 25 meals, 6 tagged dairy of which 5 are bad; baseline 5/25 = 20%.
func dairyLog() []models.MealRecord {
	var meals []models.MealRecord
	for i := 0; i < 25; i++ {
		switch {
		case i < 5:
			meals = append(meals, meal(i, "dairy", models.FeelingSick))
		case i == 5:
			meals = append(meals, meal(i, "dairy", models.FeelingGood))
		default:
			meals = append(meals, meal(i, "", models.FeelingGood))
		}
	}
	return meals
}

func names(patterns []Pattern) []string {
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p.Name)
	}
	return out
}

func TestAnalyze_StrongTagBecomesTopTrigger(t *testing.T) {
	result := testEngine().Analyze(dairyLog(), nil)

	assert.Equal(t, 20, result.BaselineRate)
	assert.Equal(t, 80, result.BaselineGoodRate)
	assert.Equal(t, 25, result.TotalMealsAnalyzed)
	require.Equal(t, []string{"dairy"}, names(result.Patterns))

	dairy := result.Patterns[0]
	assert.Equal(t, CategoryTag, dairy.Category)
	assert.Equal(t, "Food/Ingredient", dairy.CategoryLabel)
	assert.Equal(t, 6, dairy.Total)
	assert.Equal(t, 5, dairy.Bad)
	assert.Equal(t, 1, dairy.Good)
	assert.Equal(t, 83, dairy.Rate)
	assert.Equal(t, 30, dairy.Confidence)
	assert.GreaterOrEqual(t, dairy.Lift, 4.0)
	assert.InDelta(t, 0.5*83+15*dairy.Lift+0.2*30, dairy.Score, 1e-9)
	assert.Len(t, dairy.Examples, 5)
	for _, ex := range dairy.Examples {
		assert.Equal(t, "sick", ex.Feeling)
	}

	assert.Contains(t, dairy.Description, "dairy")
	assert.Contains(t, dairy.Description, "5 of 6")
	assert.Contains(t, dairy.Description, "83%")
	assert.Contains(t, dairy.Description, "usual rate of 20%")
	assert.NotEmpty(t, dairy.Suggestion)

	require.NotNil(t, result.TopTrigger)
	assert.Equal(t, "dairy", result.TopTrigger.Name)
}

func TestAnalyze_BelowRateThresholdExcluded(t *testing.T) {
	var meals []models.MealRecord
	for i := 0; i < 12; i++ {
		tags := ""
		if i < 6 {
			tags = "coffee"
		}
		feeling := models.FeelingGood
		if i < 2 {
			feeling = models.FeelingBloated
		}
		meals = append(meals, meal(i, tags, feeling))
	}

	result := testEngine().Analyze(meals, nil)

	assert.NotContains(t, names(result.Patterns), "coffee")
	assert.Nil(t, result.TopTrigger)
}

func TestAnalyze_InsufficientData(t *testing.T) {
	var meals []models.MealRecord
	for i := 0; i < 8; i++ {
		meals = append(meals, meal(i, "gluten", models.FeelingSick))
	}
	meals = append(meals, meal(8, "", models.FeelingGood))

	result := testEngine().Analyze(meals, nil)

	assert.Empty(t, result.Patterns)
	assert.Empty(t, result.PositivePatterns)
	assert.Nil(t, result.TopTrigger)
	assert.Equal(t, 9, result.TotalMealsAnalyzed)
	assert.NotNil(t, result.Patterns, "empty list, not null")
}

func TestAnalyze_SampleFloor(t *testing.T) {
	// "spicy" is always bad but only occurs 4 times.
	var meals []models.MealRecord
	for i := 0; i < 20; i++ {
		tags := ""
		feeling := models.FeelingGood
		if i < 4 {
			tags, feeling = "spicy", models.FeelingSick
		}
		meals = append(meals, meal(i, tags, feeling))
	}

	result := testEngine().Analyze(meals, nil)

	assert.NotContains(t, names(result.Patterns), "spicy")
}

func TestAnalyze_MinimumOutcomes(t *testing.T) {
	// 5 occurrences, 2 bad: rate 40% clears the rate floor but not the outcome floor.
	var meals []models.MealRecord
	for i := 0; i < 30; i++ {
		tags := ""
		if i < 5 {
			tags = "beans"
		}
		feeling := models.FeelingGood
		if i < 2 {
			feeling = models.FeelingSick
		}
		meals = append(meals, meal(i, tags, feeling))
	}

	result := testEngine().Analyze(meals, nil)

	assert.NotContains(t, names(result.Patterns), "beans")
}

func TestAnalyze_DismissedNeverReturned(t *testing.T) {
	dismissed := []DismissedPattern{Dismiss("dairy", "lactose free already", day0)}

	result := testEngine().Analyze(dairyLog(), dismissed)

	assert.NotContains(t, names(result.Patterns), "dairy")
	assert.Nil(t, result.TopTrigger)
}

func TestAnalyze_DismissalAppliesBeforeTruncation(t *testing.T) {
	// Two triggers: dairy (5/6 bad) outranks onion (3/5 bad).
	meals := dairyLog()
	for i := 6; i < 11; i++ {
		meals[i].Tags = "onion"
		if i < 9 {
			meals[i].Feeling = models.FeelingBloated
		}
	}
	engine := testEngine(func(c *Config) { c.MaxNegative = 1 })

	all := engine.Analyze(meals, nil)
	require.Equal(t, []string{"dairy"}, names(all.Patterns))

	result := engine.Analyze(meals, []DismissedPattern{{Key: "dairy"}})
	require.Equal(t, []string{"onion"}, names(result.Patterns))
	assert.Equal(t, "onion", result.TopTrigger.Name)
}

func TestAnalyze_RankingAndTruncation(t *testing.T) {
	// Twelve tags, each on 5 meals with 3-5 bad outcomes, plus plenty of good
	// filler meals to keep the baseline low.
	var meals []models.MealRecord
	i := 0
	for tag := 0; tag < 12; tag++ {
		bad := 3 + tag%3
		for n := 0; n < 5; n++ {
			feeling := models.FeelingGood
			if n < bad {
				feeling = models.FeelingSick
			}
			meals = append(meals, meal(i, fmt.Sprintf("food%02d", tag), feeling))
			i++
		}
	}
	for n := 0; n < 100; n++ {
		meals = append(meals, meal(i, "", models.FeelingGood))
		i++
	}
	// Spread so that weekday buckets stay diluted by the filler.
	result := testEngine().Analyze(meals, nil)

	require.Len(t, result.Patterns, 10)
	for k := 1; k < len(result.Patterns); k++ {
		assert.GreaterOrEqual(t, result.Patterns[k-1].Score, result.Patterns[k].Score)
	}
	assert.Equal(t, result.Patterns[0].Name, result.TopTrigger.Name)
	assert.LessOrEqual(t, len(result.PositivePatterns), 5)
}

func TestAnalyze_PositivePatterns(t *testing.T) {
	var meals []models.MealRecord
	for i := 0; i < 20; i++ {
		switch {
		case i < 10:
			meals = append(meals, meal(i, "oats", models.FeelingGood))
		case i < 16:
			meals = append(meals, meal(i, "", models.FeelingSick))
		default:
			meals = append(meals, meal(i, "", models.FeelingGood))
		}
	}

	result := testEngine().Analyze(meals, nil)

	require.Equal(t, []string{"oats"}, names(result.PositivePatterns))
	oats := result.PositivePatterns[0]
	assert.Equal(t, Positive, oats.Polarity)
	assert.Equal(t, 100, oats.Rate)
	assert.Equal(t, 70, result.BaselineGoodRate)
	assert.InDelta(t, 1.4, oats.Lift, 1e-9)
	assert.Equal(t, 50, oats.Confidence)
	assert.Len(t, oats.Examples, 5)
	assert.True(t, strings.Contains(oats.Description, "10 of 10"))
	assert.NotContains(t, names(result.Patterns), "oats")
}

func TestAnalyze_Idempotent(t *testing.T) {
	meals := dairyLog()
	meals[7].Time = "22:00"
	meals[8].Finished = models.Bool(false)
	engine := testEngine()

	first := engine.Analyze(meals, nil)
	second := engine.Analyze(meals, nil)

	assert.Equal(t, first, second)
}

func TestAnalyze_DoesNotMutateInput(t *testing.T) {
	meals := dairyLog()
	before := make([]models.MealRecord, len(meals))
	copy(before, meals)

	testEngine().Analyze(meals, []DismissedPattern{{Key: "dairy"}})

	assert.Equal(t, before, meals)
}

func TestLift(t *testing.T) {
	assert.Equal(t, 0.0, Lift(50, 0))
	assert.Equal(t, 2.5, Lift(50, 20))

	for _, base := range []int{1, 7, 20, 33, 80} {
		prev := Lift(0, base)
		for rate := 1; rate <= 100; rate++ {
			cur := Lift(rate, base)
			assert.GreaterOrEqual(t, cur, prev, "rate %d base %d", rate, base)
			prev = cur
		}
	}
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 25, Confidence(5, 20))
	assert.Equal(t, 100, Confidence(20, 20))
	assert.Equal(t, 100, Confidence(45, 20))
}

func TestComputeBaseline(t *testing.T) {
	meals := []models.MealRecord{
		{Feeling: models.FeelingSick},
		{Feeling: models.FeelingOkay},
		{},
		{Feeling: models.FeelingGood},
	}

	base := ComputeBaseline(meals)

	assert.Equal(t, 25, base.BadRate)
	assert.Equal(t, 50, base.GoodRate)
	assert.Equal(t, Baseline{}, ComputeBaseline(nil))
}

func TestAnalysisFindTrigger(t *testing.T) {
	a := Analysis{
		Patterns:         []Pattern{{Name: "dairy", Polarity: Negative}},
		PositivePatterns: []Pattern{{Name: "oats", Polarity: Positive}},
	}

	p, ok := a.FindTrigger("dairy")
	require.True(t, ok)
	assert.Equal(t, Negative, p.Polarity)

	_, ok = a.FindTrigger("oats")
	assert.False(t, ok, "positive patterns are not triggers")

	_, ok = a.FindTrigger("kale")
	assert.False(t, ok)
}

func TestDescribe_HabitNamesFactor(t *testing.T) {
	p := Pattern{Name: NotFinishing, Category: CategoryHabit, Polarity: Negative, Bad: 4, Total: 5, Rate: 80}

	desc, _ := describe(&p, 20)

	assert.Contains(t, desc, NotFinishing)
}
