package experiment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcp-meal-triggers/internal/models"
	"mcp-meal-triggers/internal/triggers"
)

var start = time.Date(2024, 2, 5, 8, 0, 0, 0, time.UTC) // a Monday

type memStore struct {
	exp     *Experiment
	saves   int
	loadErr error
}

func (s *memStore) LoadExperiment(context.Context) (*Experiment, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.exp == nil {
		return nil, nil
	}
	exp := *s.exp
	return &exp, nil
}

func (s *memStore) SaveExperiment(_ context.Context, exp Experiment) error {
	s.saves++
	s.exp = &exp
	return nil
}

func (s *memStore) ClearExperiment(context.Context) error {
	s.exp = nil
	return nil
}

func dairyPattern() triggers.Pattern {
	return triggers.Pattern{
		Name:          "dairy",
		Category:      triggers.CategoryTag,
		CategoryLabel: triggers.CategoryTag.Label(),
		Description:   "You felt sick or bloated after 5 of 6 meals with dairy (83%).",
		Total:         6,
		Bad:           5,
		Rate:          83,
	}
}

func at(d time.Duration, tags string, feeling models.Feeling) models.MealRecord {
	ts := start.Add(d)
	return models.MealRecord{
		ID:        fmt.Sprintf("m%d", ts.Unix()),
		CreatedAt: ts.UnixMilli(),
		Type:      "Lunch",
		Tags:      tags,
		Feeling:   feeling,
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTracker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	tracker := NewTracker(store, WithClock(fixedClock(start)), WithLocation(time.UTC))

	state, err := tracker.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateNone, state)

	exp, err := tracker.Start(ctx, dairyPattern())
	require.NoError(t, err)
	assert.Equal(t, Experiment{
		Trigger:       "dairy",
		Category:      triggers.CategoryTag,
		CategoryLabel: "Food/Ingredient",
		Description:   dairyPattern().Description,
		StartDate:     start.UnixMilli(),
		DurationDays:  7,
		Status:        StatusActive,
		BaselineRate:  83,
		BaselineTotal: 6,
		BaselineBad:   5,
	}, exp)

	state, err = tracker.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateActive, state)
	assert.Equal(t, "active", state.String())

	stopped, err := tracker.Stop(ctx)
	require.NoError(t, err)
	assert.True(t, stopped)

	state, err = tracker.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateNone, state)

	stopped, err = tracker.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, stopped, "stop from NONE is a no-op")
}

func TestTracker_StartWhileActiveReplaces(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	tracker := NewTracker(store, WithClock(fixedClock(start)))

	_, err := tracker.Start(ctx, dairyPattern())
	require.NoError(t, err)

	late := triggers.Pattern{Name: triggers.LateNight, Category: triggers.CategoryTime, Rate: 60, Total: 10, Bad: 6}
	exp, err := tracker.Start(ctx, late)
	require.NoError(t, err)

	active, err := tracker.Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, exp, *active)
	assert.Equal(t, triggers.LateNight, active.Trigger)
	assert.Equal(t, 2, store.saves)
}

func TestTracker_ConfigurableDuration(t *testing.T) {
	tracker := NewTracker(&memStore{}, WithDuration(14), WithClock(fixedClock(start)))

	exp, err := tracker.Start(context.Background(), dairyPattern())

	require.NoError(t, err)
	assert.Equal(t, 14, exp.DurationDays)
	assert.Equal(t, start.AddDate(0, 0, 14).UnixMilli(), exp.EndDate())
}

func TestTracker_UnsupportedCategory(t *testing.T) {
	store := &memStore{}
	tracker := NewTracker(store)

	_, err := tracker.Start(context.Background(), triggers.Pattern{Name: "x", Category: "mood"})

	assert.ErrorIs(t, err, ErrUnsupportedCategory)
	assert.Nil(t, store.exp)
}

func TestTracker_RejectsPositivePattern(t *testing.T) {
	store := &memStore{}
	tracker := NewTracker(store)
	salad := triggers.Pattern{
		Name:     "salad",
		Category: triggers.CategoryTag,
		Polarity: triggers.Positive,
		Total:    6,
		Good:     6,
		Rate:     100,
	}

	_, err := tracker.Start(context.Background(), salad)

	assert.ErrorIs(t, err, ErrPositivePattern)
	assert.Nil(t, store.exp)
}

func TestTracker_ResultsWithoutExperiment(t *testing.T) {
	tracker := NewTracker(&memStore{})

	_, _, err := tracker.Results(context.Background(), nil)

	assert.ErrorIs(t, err, ErrNoActiveExperiment)
}

func TestTracker_StoreErrorsWrapped(t *testing.T) {
	boom := errors.New("disk gone")
	tracker := NewTracker(&memStore{loadErr: boom})

	_, err := tracker.Start(context.Background(), dairyPattern())
	assert.ErrorIs(t, err, boom)

	_, err = tracker.Stop(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestTracker_CleanWeekWithoutTrigger(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	tracker := NewTracker(store, WithClock(fixedClock(start)), WithLocation(time.UTC))
	_, err := tracker.Start(ctx, dairyPattern())
	require.NoError(t, err)

	var meals []models.MealRecord
	for day := 0; day < 7; day++ {
		meals = append(meals,
			at(time.Duration(day)*24*time.Hour+time.Hour, "rice, chicken", models.FeelingGood),
			at(time.Duration(day)*24*time.Hour+10*time.Hour, "salad", models.FeelingGood),
		)
	}

	week := NewTracker(store, WithClock(fixedClock(start.AddDate(0, 0, 7))), WithLocation(time.UTC))
	exp, res, err := week.Results(ctx, meals)
	require.NoError(t, err)

	assert.Equal(t, "dairy", exp.Trigger)
	assert.Equal(t, 14, res.TotalMeals)
	assert.Equal(t, 14, res.CompliantMealsCount)
	assert.Equal(t, 0, res.NonCompliantMealsCount)
	assert.Equal(t, 100, res.ComplianceRate)
	assert.Equal(t, 0, res.CompliantBadRate)
	assert.Equal(t, 0, res.OverallBadRate)
	assert.Equal(t, 83, res.BaselineBadRate)
	assert.Equal(t, 100, res.Improvement)
	assert.Contains(t, res.ImprovementText, "100% fewer")
	assert.Equal(t, 7, res.DaysElapsed)
	assert.True(t, res.IsComplete)
	assert.Empty(t, res.SampleSizeWarning)
}

func TestComputeResults_Window(t *testing.T) {
	exp := New(dairyPattern(), start, 7)
	end := start.AddDate(0, 0, 7)
	meals := []models.MealRecord{
		at(-time.Millisecond, "dairy", models.FeelingSick),               // before start
		at(0, "dairy", models.FeelingSick),                               // at start
		at(3*24*time.Hour, "", models.FeelingGood),                       // inside
		at(end.Sub(start), "", models.FeelingBloated),                    // at end
		at(end.Sub(start)+time.Millisecond, "dairy", models.FeelingSick), // after end
	}

	res := ComputeResults(exp, meals, end.Add(48*time.Hour), time.UTC, DefaultMinSample)

	assert.Equal(t, 3, res.TotalMeals)
	assert.Equal(t, 1, res.NonCompliantMealsCount)
	assert.Equal(t, 2, res.CompliantMealsCount)
	assert.Equal(t, 67, res.ComplianceRate)
	assert.Equal(t, 50, res.CompliantBadRate)
	assert.Equal(t, 67, res.OverallBadRate)
	assert.Equal(t, 40, res.Improvement) // (83-50)/83
	assert.Equal(t, 9, res.DaysElapsed)
	assert.True(t, res.IsComplete)
	assert.NotEmpty(t, res.SampleSizeWarning)
}

func TestComputeResults_WindowClampedToNow(t *testing.T) {
	exp := New(dairyPattern(), start, 7)
	now := start.Add(36 * time.Hour)
	meals := []models.MealRecord{
		at(time.Hour, "", models.FeelingGood),
		at(48*time.Hour, "", models.FeelingGood), // logged after now
	}

	res := ComputeResults(exp, meals, now, time.UTC, DefaultMinSample)

	assert.Equal(t, 1, res.TotalMeals)
	assert.Equal(t, 1, res.DaysElapsed)
	assert.False(t, res.IsComplete)
	assert.Contains(t, res.SampleSizeWarning, "Only 1 meals")
}

func TestComputeResults_NoCompliantMeals(t *testing.T) {
	exp := New(dairyPattern(), start, 7)
	meals := []models.MealRecord{at(time.Hour, "dairy", models.FeelingSick)}

	res := ComputeResults(exp, meals, start.Add(2*time.Hour), time.UTC, DefaultMinSample)

	assert.Equal(t, 0, res.ComplianceRate)
	assert.Equal(t, 0, res.Improvement)
	assert.Contains(t, res.ImprovementText, "No meals without dairy")
}

func TestComputeResults_Worse(t *testing.T) {
	exp := New(triggers.Pattern{Name: "dairy", Category: triggers.CategoryTag, Rate: 40}, start, 7)
	meals := []models.MealRecord{
		at(time.Hour, "", models.FeelingSick),
		at(2*time.Hour, "", models.FeelingGood),
		at(3*time.Hour, "", models.FeelingSick),
		at(4*time.Hour, "", models.FeelingSick),
	}

	res := ComputeResults(exp, meals, start.Add(5*time.Hour), time.UTC, DefaultMinSample)

	assert.Equal(t, 75, res.CompliantBadRate)
	assert.Equal(t, -88, res.Improvement)
	assert.Contains(t, res.ImprovementText, "88% more")
}

func TestComputeResults_ZeroBaseline(t *testing.T) {
	exp := New(triggers.Pattern{Name: "dairy", Category: triggers.CategoryTag}, start, 7)
	meals := []models.MealRecord{at(time.Hour, "", models.FeelingSick)}

	res := ComputeResults(exp, meals, start.Add(2*time.Hour), time.UTC, DefaultMinSample)

	assert.Equal(t, 0, res.Improvement)
}

func TestComputeResults_ClassificationIsComplete(t *testing.T) {
	tagsCycle := []string{"dairy", "", "dairy, bread", "bread", ""}
	timeCycle := []string{"22:00", "", "07:30", "13:00"}
	var meals []models.MealRecord
	for i := 0; i < 40; i++ {
		m := at(time.Duration(i)*4*time.Hour, tagsCycle[i%len(tagsCycle)], models.FeelingOkay)
		m.Time = timeCycle[i%len(timeCycle)]
		if i%3 == 0 {
			m.Finished = models.Bool(false)
		}
		meals = append(meals, m)
	}

	for _, p := range []triggers.Pattern{
		dairyPattern(),
		{Name: "Lunch", Category: triggers.CategoryType},
		{Name: triggers.LateNight, Category: triggers.CategoryTime},
		{Name: triggers.NotFinishing, Category: triggers.CategoryHabit},
		{Name: "Tuesday", Category: triggers.CategoryDay},
		{Name: "dairy + eating after 9pm", Category: triggers.CategoryCombo},
	} {
		res := ComputeResults(New(p, start, 7), meals, start.AddDate(0, 0, 30), time.UTC, DefaultMinSample)
		assert.Equal(t, res.TotalMeals, res.CompliantMealsCount+res.NonCompliantMealsCount, p.Name)
		assert.Equal(t, 40, res.TotalMeals, p.Name)
	}
}

func TestCompliant(t *testing.T) {
	monday := at(0, "Dairy, bread", models.FeelingGood)
	monday.Type = "dinner"
	monday.Time = "22:30"
	monday.Fats = 40
	monday.Finished = models.Bool(false)

	plain := at(24*time.Hour, "rice", models.FeelingGood) // Tuesday lunch, no time

	tests := []struct {
		category triggers.Category
		trigger  string
		monday   bool
		plain    bool
	}{
		{triggers.CategoryTag, "dairy", false, true},
		{triggers.CategoryType, "Dinner", false, true},
		{triggers.CategoryType, "Lunch", true, false},
		{triggers.CategoryTime, triggers.LateNight, false, true},
		{triggers.CategoryTime, triggers.EarlyMorning, true, true},
		{triggers.CategoryHabit, triggers.NotFinishing, false, true},
		{triggers.CategoryMacro, "high-fat meals (>30g)", false, true},
		{triggers.CategoryDay, "Monday", false, true},
		{triggers.CategoryCombo, "dairy + high-fat", false, true},
		{triggers.CategoryCombo, "Dinner + eating after 9pm", false, true},
		{"mood", "anything", true, true},
	}
	for _, tt := range tests {
		exp := Experiment{Trigger: tt.trigger, Category: tt.category}
		assert.Equal(t, tt.monday, exp.Compliant(&monday, time.UTC), "%s/%s monday", tt.category, tt.trigger)
		assert.Equal(t, tt.plain, exp.Compliant(&plain, time.UTC), "%s/%s plain", tt.category, tt.trigger)
	}
}

func TestSupportedCoversEveryCategory(t *testing.T) {
	for _, c := range []triggers.Category{
		triggers.CategoryTag, triggers.CategoryType, triggers.CategoryTime, triggers.CategoryHabit,
		triggers.CategoryMacro, triggers.CategoryDay, triggers.CategoryCombo,
	} {
		assert.True(t, Supported(c), c)
	}
	assert.False(t, Supported("mood"))
}
