package models

import (
	"strconv"
	"strings"
	"time"
)

// MealRecord is one logged meal. Records are owned by the meal log and are
// never mutated by the analysis code.
type MealRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	CreatedAt int64   `json:"created_at"`     // epoch milliseconds
	Time      string  `json:"time,omitempty"` // "HH:MM", 24h
	Type      string  `json:"type,omitempty"`
	Tags      string  `json:"tags,omitempty"` // comma separated
	Calories  float64 `json:"calories,omitempty"`
	Protein   float64 `json:"protein,omitempty"`
	Carbs     float64 `json:"carbs,omitempty"`
	Fats      float64 `json:"fats,omitempty"`
	Finished  *bool   `json:"finished,omitempty"`
	Feeling   Feeling `json:"feeling,omitempty"`
}

type Feeling string

const (
	FeelingGood    Feeling = "good"
	FeelingOkay    Feeling = "okay"
	FeelingSick    Feeling = "sick"
	FeelingBloated Feeling = "bloated"
)

type MealType string

const (
	Breakfast MealType = "Breakfast"
	Lunch     MealType = "Lunch"
	Dinner    MealType = "Dinner"
	Snack     MealType = "Snack"
)

var mealTypes = map[string]MealType{
	"breakfast": Breakfast,
	"lunch":     Lunch,
	"dinner":    Dinner,
	"snack":     Snack,
}

// ParseMealType maps a free-form type string onto the known meal types.
// Anything empty or unrecognized is a Snack.
func ParseMealType(s string) MealType {
	if t, ok := mealTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return t
	}
	return Snack
}

// MealType returns the normalized meal type.
func (m *MealRecord) MealType() MealType {
	return ParseMealType(m.Type)
}

// Outcome returns the recorded feeling, defaulting to good when absent.
func (m *MealRecord) Outcome() Feeling {
	switch f := Feeling(strings.ToLower(strings.TrimSpace(string(m.Feeling)))); f {
	case FeelingGood, FeelingOkay, FeelingSick, FeelingBloated:
		return f
	case "":
		return FeelingGood
	default:
		return f
	}
}

// IsBad reports whether the meal was followed by a negative feeling.
func (m *MealRecord) IsBad() bool {
	f := m.Outcome()
	return f == FeelingSick || f == FeelingBloated
}

// IsGood reports whether the meal was followed by feeling good.
func (m *MealRecord) IsGood() bool {
	return m.Outcome() == FeelingGood
}

// IsUnfinished is true only for an explicit finished=false.
func (m *MealRecord) IsUnfinished() bool {
	return m.Finished != nil && !*m.Finished
}

// TagList splits, trims and lower-cases the tags, dropping empties and
// duplicates. Order of first appearance is kept.
func (m *MealRecord) TagList() []string {
	if m.Tags == "" {
		return nil
	}
	var tags []string
	seen := make(map[string]struct{})
	for _, raw := range strings.Split(m.Tags, ",") {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// HasTag reports whether tag (already normalized) is one of the meal's tags.
func (m *MealRecord) HasTag(tag string) bool {
	for _, t := range m.TagList() {
		if t == tag {
			return true
		}
	}
	return false
}

// Hour parses the hour out of Time. ok is false when Time is absent or
// malformed.
func (m *MealRecord) Hour() (hour int, ok bool) {
	s := strings.TrimSpace(m.Time)
	if s == "" {
		return 0, false
	}
	hh, _, found := strings.Cut(s, ":")
	if !found {
		return 0, false
	}
	h, err := strconv.Atoi(strings.TrimSpace(hh))
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	return h, true
}

// LoggedAt converts CreatedAt to a time in loc.
func (m *MealRecord) LoggedAt(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(m.CreatedAt).In(loc)
}

// Bool is a convenience for building records with an explicit Finished value.
func Bool(v bool) *bool {
	return &v
}
