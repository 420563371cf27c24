package triggers

import (
	"math"
	"time"
)

// Config holds the thresholds of an analysis run. DefaultConfig returns the
// production values.
type Config struct {
	MinMeals             int
	MinOccurrences       int
	MinOutcomes          int
	NegativeMinRate      int
	NegativeMinLift      float64
	PositiveMinRate      int
	PositiveMinLift      float64
	MaxNegative          int
	MaxPositive          int
	ConfidenceSaturation int
	ExampleCap           int
	Location             *time.Location
}

func DefaultConfig() Config {
	return Config{
		MinMeals:             10,
		MinOccurrences:       5,
		MinOutcomes:          3,
		NegativeMinRate:      35,
		NegativeMinLift:      1.5,
		PositiveMinRate:      60,
		PositiveMinLift:      1.2,
		MaxNegative:          10,
		MaxPositive:          5,
		ConfidenceSaturation: 20,
		ExampleCap:           5,
		Location:             time.Local,
	}
}

// Polarity tells whether a pattern tracks bad or good outcomes.
type Polarity string

const (
	Negative Polarity = "negative"
	Positive Polarity = "positive"
)

// Pattern is a scored association between a factor and an outcome.
type Pattern struct {
	Name          string    `json:"name"`
	Category      Category  `json:"category"`
	CategoryLabel string    `json:"category_label"`
	Polarity      Polarity  `json:"polarity"`
	Total         int       `json:"total"`
	Bad           int       `json:"bad"`
	Good          int       `json:"good"`
	Rate          int       `json:"rate"`
	Confidence    int       `json:"confidence"`
	Lift          float64   `json:"lift"`
	Score         float64   `json:"score"`
	Description   string    `json:"description"`
	Suggestion    string    `json:"suggestion"`
	Examples      []Example `json:"examples"`
}

// Factor returns the bucket key the pattern was scored from.
func (p *Pattern) Factor() Factor {
	return Factor{Category: p.Category, Name: p.Name}
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(n) / float64(total)))
}

// Confidence saturates at 100 once total reaches the saturation count.
func Confidence(total, saturation int) int {
	if saturation <= 0 {
		return 100
	}
	return min(100, int(math.Round(100*float64(total)/float64(saturation))))
}

// Lift is rate over baseline rounded to one decimal, or 0 with no baseline.
func Lift(rate, baseline int) float64 {
	if baseline <= 0 {
		return 0
	}
	return math.Round(float64(rate)/float64(baseline)*10) / 10
}

// Score weights lift heavily so rare strong correlations beat common weak ones.
func Score(rate int, lift float64, confidence int) float64 {
	return 0.5*float64(rate) + 15*lift + 0.2*float64(confidence)
}

// score converts a bucket into a pattern of the given polarity. ok is false
// when the bucket misses either the sample floor or the effect floor.
func (c Config) score(b *bucket, pol Polarity, base Baseline) (Pattern, bool) {
	if b.total < c.MinOccurrences {
		return Pattern{}, false
	}

	var (
		hits, baseRate, minRate int
		minLift                 float64
		examples                []Example
	)
	switch pol {
	case Negative:
		hits, baseRate, minRate, minLift = b.bad, base.BadRate, c.NegativeMinRate, c.NegativeMinLift
		examples = b.badExamples.list()
	case Positive:
		hits, baseRate, minRate, minLift = b.good, base.GoodRate, c.PositiveMinRate, c.PositiveMinLift
		examples = b.goodExamples.list()
	default:
		return Pattern{}, false
	}
	if hits < c.MinOutcomes {
		return Pattern{}, false
	}

	rate := percent(hits, b.total)
	lift := Lift(rate, baseRate)
	if rate < minRate || lift < minLift {
		return Pattern{}, false
	}
	conf := Confidence(b.total, c.ConfidenceSaturation)

	p := Pattern{
		Name:          b.factor.Name,
		Category:      b.factor.Category,
		CategoryLabel: b.factor.Category.Label(),
		Polarity:      pol,
		Total:         b.total,
		Bad:           b.bad,
		Good:          b.good,
		Rate:          rate,
		Confidence:    conf,
		Lift:          lift,
		Score:         Score(rate, lift, conf),
		Examples:      examples,
	}
	p.Description, p.Suggestion = describe(&p, baseRate)
	return p, true
}
