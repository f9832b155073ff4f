// Package schedule is the date-sequence engine for recurring templates:
// pure calendar arithmetic, no I/O.
package schedule

import (
	"iter"

	"tally/internal/core"
)

// NextDate advances a calendar date by one period of the given frequency.
//
// Month-based frequencies use time.AddDate, which normalizes month-end
// overflow by rolling into the following month: Jan 31 + 1 month is Mar 3
// in a non-leap year (Feb 31 normalized), not Feb 28. That behavior is
// accepted as-is, not corrected.
//
// Unknown frequencies return the zero Date; callers validate the frequency
// before advancing.
func NextDate(d core.Date, f core.Frequency) core.Date {
	switch f {
	case core.Weekly:
		return core.Date{Time: d.AddDate(0, 0, 7)}
	case core.Biweekly:
		return core.Date{Time: d.AddDate(0, 0, 14)}
	case core.Monthly:
		return core.Date{Time: d.AddDate(0, 1, 0)}
	case core.Quarterly:
		return core.Date{Time: d.AddDate(0, 3, 0)}
	case core.Yearly:
		return core.Date{Time: d.AddDate(1, 0, 0)}
	default:
		return core.Date{}
	}
}

// ExpandWindow returns the occurrence dates of a start/frequency schedule
// that fall inside the generation window, in ascending order.
//
// The first element is start itself, or NextDate(resumeAfter, f) when
// resumeAfter is non-zero — "continue from where we left off, excluding what
// was already generated". The sequence stops after windowEnd (inclusive), so
// it is always finite; it is lazy and can be re-ranged from the beginning.
//
// Returns an error only for an unsupported frequency.
func ExpandWindow(start core.Date, f core.Frequency, windowEnd core.Date, resumeAfter core.Date) (iter.Seq[core.Date], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	first := start
	if !resumeAfter.IsZero() {
		first = NextDate(resumeAfter, f)
	}
	return func(yield func(core.Date) bool) {
		for d := first; !d.After(windowEnd); d = NextDate(d, f) {
			if !yield(d) {
				return
			}
		}
	}, nil
}
