package triggers

import (
	"time"

	"mcp-meal-triggers/internal/models"
)

// Category is the kind of meal attribute a factor describes.
type Category string

const (
	CategoryTag   Category = "tag"
	CategoryType  Category = "type"
	CategoryTime  Category = "time"
	CategoryHabit Category = "habit"
	CategoryMacro Category = "macro"
	CategoryDay   Category = "day"
	CategoryCombo Category = "combo"
)

var categoryLabels = map[Category]string{
	CategoryTag:   "Food/Ingredient",
	CategoryType:  "Meal Category",
	CategoryTime:  "Meal Timing",
	CategoryHabit: "Eating Habit",
	CategoryMacro: "Nutrition",
	CategoryDay:   "Day of Week",
	CategoryCombo: "Combined Pattern",
}

// Label is the human readable name of the category.
func (c Category) Label() string {
	if l, ok := categoryLabels[c]; ok {
		return l
	}
	return string(c)
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryLabels[c]
	return ok
}

// Factor is a single bucket key: a category and the value within it.
type Factor struct {
	Category Category
	Name     string
}

const (
	LateNight    = "eating after 9pm"
	EarlyMorning = "early morning meals"
	NotFinishing = "not finishing meals"
)

// MacroFlag is a nutrition threshold. Short is the stable key used inside
// combination names.
type MacroFlag struct {
	Name  string
	Short string
	match func(m *models.MealRecord) bool
}

// Matches reports whether the meal trips this flag.
func (f MacroFlag) Matches(m *models.MealRecord) bool {
	return f.match(m)
}

var macroFlags = []MacroFlag{
	{
		Name:  "high-fat meals (>30g)",
		Short: "high-fat",
		match: func(m *models.MealRecord) bool { return m.Fats > 30 },
	},
	{
		Name:  "large meals (>800 cal)",
		Short: "large-meal",
		match: func(m *models.MealRecord) bool { return m.Calories > 800 },
	},
	{
		Name:  "low-protein meals (<10g)",
		Short: "low-protein",
		match: func(m *models.MealRecord) bool { return m.Protein < 10 && m.Calories > 200 },
	},
	{
		Name:  "high-carb meals (>80g)",
		Short: "high-carb",
		match: func(m *models.MealRecord) bool { return m.Carbs > 80 },
	},
}

// MacroFlags returns every defined nutrition flag.
func MacroFlags() []MacroFlag {
	out := make([]MacroFlag, len(macroFlags))
	copy(out, macroFlags)
	return out
}

// LookupMacroFlag finds a flag by its display name.
func LookupMacroFlag(name string) (MacroFlag, bool) {
	for _, f := range macroFlags {
		if f.Name == name {
			return f, true
		}
	}
	return MacroFlag{}, false
}

// TimingBucket classifies the meal's clock time. Meals between 10:00 and
// 21:00, or without a time, have no bucket.
func TimingBucket(m *models.MealRecord) (string, bool) {
	h, ok := m.Hour()
	if !ok {
		return "", false
	}
	switch {
	case h >= 21 || h < 5:
		return LateNight, true
	case h < 10:
		return EarlyMorning, true
	}
	return "", false
}

// Weekday is the day of week the meal was logged on, in loc.
func Weekday(m *models.MealRecord, loc *time.Location) string {
	return m.LoggedAt(loc).Weekday().String()
}

// ComboName joins two factor values into a combination key.
func ComboName(a, b string) string {
	return a + " + " + b
}

// Extract derives every factor a meal contributes to. The result holds no
// duplicates.
func Extract(m *models.MealRecord, loc *time.Location) []Factor {
	tags := m.TagList()
	mealType := string(m.MealType())
	timing, hasTiming := TimingBucket(m)
	unfinished := m.IsUnfinished()

	var flags []MacroFlag
	for _, f := range macroFlags {
		if f.match(m) {
			flags = append(flags, f)
		}
	}

	factors := make([]Factor, 0, len(tags)*2+len(flags)+4)
	for _, tag := range tags {
		factors = append(factors, Factor{CategoryTag, tag})
	}
	factors = append(factors, Factor{CategoryType, mealType})
	if hasTiming {
		factors = append(factors, Factor{CategoryTime, timing})
	}
	if unfinished {
		factors = append(factors, Factor{CategoryHabit, NotFinishing})
	}
	for _, f := range flags {
		factors = append(factors, Factor{CategoryMacro, f.Name})
	}
	factors = append(factors, Factor{CategoryDay, Weekday(m, loc)})

	for _, tag := range tags {
		if hasTiming {
			factors = append(factors, Factor{CategoryCombo, ComboName(tag, timing)})
		}
		if unfinished {
			factors = append(factors, Factor{CategoryCombo, ComboName(tag, NotFinishing)})
		}
		for _, f := range flags {
			factors = append(factors, Factor{CategoryCombo, ComboName(tag, f.Short)})
		}
	}
	if hasTiming {
		factors = append(factors, Factor{CategoryCombo, ComboName(mealType, timing)})
	}
	return dedupe(factors)
}

func dedupe(factors []Factor) []Factor {
	seen := make(map[Factor]struct{}, len(factors))
	out := factors[:0]
	for _, f := range factors {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
