package triggers

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Patterns at or above this lift spell out the comparison to the baseline.
const compareLift = 2.0

var macroSuggestions = map[string]string{
	"high-fat":    "Try swapping in leaner options for a week and see if you feel lighter after meals.",
	"large-meal":  "Try splitting big meals into two smaller ones.",
	"low-protein": "Try adding a protein source to these meals to keep things steadier.",
	"high-carb":   "Try balancing carb-heavy meals with some protein or vegetables.",
}

func describe(p *Pattern, baseRate int) (string, string) {
	if p.Polarity == Positive {
		return describePositive(p, baseRate)
	}
	return describeNegative(p, baseRate)
}

func describeNegative(p *Pattern, baseRate int) (desc, suggestion string) {
	counts := fmt.Sprintf("%d of %d", p.Bad, p.Total)
	switch p.Category {
	case CategoryTag:
		desc = fmt.Sprintf("You felt sick or bloated after %s meals with %s (%d%%).", counts, p.Name, p.Rate)
		suggestion = fmt.Sprintf("Try cutting out %s for a week and track how you feel.", p.Name)
	case CategoryType:
		desc = fmt.Sprintf("%s left you feeling unwell %s times (%d%%).", p.Name, counts, p.Rate)
		suggestion = fmt.Sprintf("Look at what usually goes into your %s. Portion size or a recurring ingredient may be the cause.", strings.ToLower(p.Name))
	case CategoryTime:
		desc = fmt.Sprintf("%s were followed by discomfort %s times (%d%%).", timingSubject(p.Name), counts, p.Rate)
		if p.Name == LateNight {
			suggestion = "Try finishing your last meal before 9pm."
		} else {
			suggestion = "Try a lighter first meal, or eat a little later in the morning."
		}
	case CategoryHabit:
		desc = fmt.Sprintf("After %s you felt unwell %s times (%d%%).", p.Name, counts, p.Rate)
		suggestion = "Leaving food may be a sign it didn't agree with you. Note what you leave behind."
	case CategoryMacro:
		desc = fmt.Sprintf("%s left you feeling unwell %s times (%d%%).", capitalize(p.Name), counts, p.Rate)
		suggestion = "Try adjusting these meals for a week."
		if f, ok := LookupMacroFlag(p.Name); ok {
			suggestion = macroSuggestions[f.Short]
		}
	case CategoryDay:
		desc = fmt.Sprintf("Meals on %ss left you feeling unwell %s times (%d%%).", p.Name, counts, p.Rate)
		suggestion = fmt.Sprintf("Think about what is different about your %s routine.", p.Name)
	case CategoryCombo:
		desc = fmt.Sprintf("The combination %s left you feeling unwell %s times (%d%%).", p.Name, counts, p.Rate)
		suggestion = "Try keeping these apart for a while and see if it helps."
	default:
		desc = fmt.Sprintf("%s left you feeling unwell %s times (%d%%).", capitalize(p.Name), counts, p.Rate)
		suggestion = fmt.Sprintf("Try avoiding %s for a week.", p.Name)
	}
	if p.Lift >= compareLift && baseRate > 0 {
		desc += fmt.Sprintf(" That is %.1fx your usual rate of %d%%.", p.Lift, baseRate)
	}
	return desc, suggestion
}

func describePositive(p *Pattern, baseRate int) (desc, suggestion string) {
	counts := fmt.Sprintf("%d of %d", p.Good, p.Total)
	switch p.Category {
	case CategoryTag:
		desc = fmt.Sprintf("You felt good after %s meals with %s (%d%%).", counts, p.Name, p.Rate)
		suggestion = fmt.Sprintf("%s seems to agree with you.", capitalize(p.Name))
	case CategoryTime:
		desc = fmt.Sprintf("%s left you feeling good %s times (%d%%).", timingSubject(p.Name), counts, p.Rate)
		suggestion = "This timing works for you."
	case CategoryDay:
		desc = fmt.Sprintf("Meals on %ss left you feeling good %s times (%d%%).", p.Name, counts, p.Rate)
		suggestion = fmt.Sprintf("Whatever you do on %ss is working.", p.Name)
	default:
		desc = fmt.Sprintf("%s left you feeling good %s times (%d%%).", capitalize(p.Name), counts, p.Rate)
		suggestion = "Keep it up."
	}
	if p.Lift >= compareLift && baseRate > 0 {
		desc += fmt.Sprintf(" That is %.1fx your usual rate of %d%%.", p.Lift, baseRate)
	}
	return desc, suggestion
}

func timingSubject(name string) string {
	if name == LateNight {
		return "Meals after 9pm"
	}
	return capitalize(name)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
