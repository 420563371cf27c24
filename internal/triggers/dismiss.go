package triggers

import "time"

// DismissedPattern records a user rejecting a pattern. Dismissals never expire.
type DismissedPattern struct {
	Key         string    `json:"key"`
	Reason      string    `json:"reason,omitempty"`
	DismissedAt time.Time `json:"dismissed_at"`
}

// Dismiss builds the record for rejecting the pattern named key.
func Dismiss(key, reason string, now time.Time) DismissedPattern {
	return DismissedPattern{Key: key, Reason: reason, DismissedAt: now}
}

type dismissalSet map[string]struct{}

func newDismissalSet(dismissed []DismissedPattern) dismissalSet {
	set := make(dismissalSet, len(dismissed))
	for _, d := range dismissed {
		set[d.Key] = struct{}{}
	}
	return set
}

func (s dismissalSet) filter(patterns []Pattern) []Pattern {
	if len(s) == 0 {
		return patterns
	}
	out := patterns[:0]
	for _, p := range patterns {
		if _, ok := s[p.Name]; !ok {
			out = append(out, p)
		}
	}
	return out
}
