package recurrence

import (
	"strings"

	"orderlyflow/internal/model"
)

// Step is the distance between two consecutive occurrences. Exactly one of
// Days or Months is non-zero.
type Step struct {
	Days   int
	Months int
}

var patternAliases = map[string]model.Pattern{
	"daily":         model.PatternDaily,
	"weekly":        model.PatternWeekly,
	"bi-weekly":     model.PatternBiWeekly,
	"biweekly":      model.PatternBiWeekly,
	"monthly":       model.PatternMonthly,
	"quarterly":     model.PatternQuarterly,
	"semi-annually": model.PatternSemiAnnually,
	"semiannually":  model.PatternSemiAnnually,
	"annually":      model.PatternAnnually,
	"yearly":        model.PatternAnnually,
}

var steps = map[model.Pattern]Step{
	model.PatternDaily:        {Days: 1},
	model.PatternWeekly:       {Days: 7},
	model.PatternBiWeekly:     {Days: 14},
	model.PatternMonthly:      {Months: 1},
	model.PatternQuarterly:    {Months: 3},
	model.PatternSemiAnnually: {Months: 6},
	model.PatternAnnually:     {Months: 12},
}

// ParsePattern maps a user-supplied pattern name onto its canonical value.
// Comparison is case-insensitive and ignores surrounding whitespace.
// ok is false for empty or unrecognized names.
func ParsePattern(s string) (p model.Pattern, ok bool) {
	p, ok = patternAliases[strings.ToLower(strings.TrimSpace(s))]
	return p, ok
}

// StepFor returns the step of a pattern. Unrecognized patterns step one day,
// the same as daily, and report ok=false.
func StepFor(p model.Pattern) (Step, bool) {
	canon, ok := ParsePattern(string(p))
	if !ok {
		return steps[model.PatternDaily], false
	}
	return steps[canon], true
}
