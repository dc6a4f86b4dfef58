package models

import "time"

// UsageStats is an addable accumulator of token/request counts over an
// optional time window.
type UsageStats struct {
	InputTokens  int64
	OutputTokens int64
	Requests     int64
	ModelName    string
	PeriodStart  *time.Time
	PeriodEnd    *time.Time

	// nameConflict is sticky once two distinct non-empty ModelNames have been
	// summed together; it keeps ModelName-merging associative (see Add).
	nameConflict bool
}

// Add sums other into a copy of s component-wise; period bounds take the min
// of starts and the max of ends. Commutative and associative; the zero value
// is the identity (UsageStats{}.Add(x) == x).
//
// ModelName merges as: empty is the identity, a name combined with itself
// stays that name, and two distinct non-empty names collapse to "" with
// nameConflict latched true (and stays latched from then on, so the result
// doesn't depend on grouping). Picking either operand's name outright would
// make Add order-dependent whenever the two sides disagree.
func (s UsageStats) Add(other UsageStats) UsageStats {
	out := UsageStats{
		InputTokens:  s.InputTokens + other.InputTokens,
		OutputTokens: s.OutputTokens + other.OutputTokens,
		Requests:     s.Requests + other.Requests,
	}
	switch {
	case s.nameConflict || other.nameConflict:
		out.nameConflict = true
	case s.ModelName == "":
		out.ModelName = other.ModelName
	case other.ModelName == "":
		out.ModelName = s.ModelName
	case s.ModelName == other.ModelName:
		out.ModelName = s.ModelName
	default:
		out.nameConflict = true
	}
	out.PeriodStart = minTime(s.PeriodStart, other.PeriodStart)
	out.PeriodEnd = maxTime(s.PeriodEnd, other.PeriodEnd)
	return out
}

func minTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.Before(*b):
		return a
	default:
		return b
	}
}

func maxTime(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case a.After(*b):
		return a
	default:
		return b
	}
}
