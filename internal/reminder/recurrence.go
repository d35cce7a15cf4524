package reminder

import (
	"fmt"
	"strings"
	"time"

	"remindbot/internal/storage"
)

// NextOccurrence returns the occurrence after current for interval r.
//
// Month and year steps keep the wall-clock time and clamp the day to the last
// valid day of the target month: Jan 31 -> Feb 28 (29 in leap years), and
// Feb 29 -> Feb 28 in a non-leap year. The input is always the previous
// occurrence, so a clamped day carries forward (Jan 31 -> Feb 28 -> Mar 28).
func NextOccurrence(current time.Time, r storage.Recurrence) (time.Time, error) {
	switch r {
	case storage.RecurDaily:
		return current.AddDate(0, 0, 1), nil
	case storage.RecurWeekly:
		return current.AddDate(0, 0, 7), nil
	case storage.RecurMonthly:
		return addMonthsClamped(current, 1), nil
	case storage.RecurYearly:
		return addMonthsClamped(current, 12), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidRecurrence, r)
	}
}

// AdvancePast steps when forward until it is strictly after now.
// It is used for late fires and stale recurring events so missed occurrences
// are skipped instead of fired in a burst.
func AdvancePast(when time.Time, r storage.Recurrence, now time.Time) (time.Time, error) {
	next, err := NextOccurrence(when, r)
	if err != nil {
		return time.Time{}, err
	}
	for !next.After(now) {
		if next, err = NextOccurrence(next, r); err != nil {
			return time.Time{}, err
		}
	}
	return next, nil
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	hh, mm, ss := t.Clock()

	total := int(m) - 1 + months
	ty := y + total/12
	tm := time.Month(total%12 + 1)
	if last := daysIn(ty, tm); d > last {
		d = last
	}
	return time.Date(ty, tm, d, hh, mm, ss, t.Nanosecond(), t.Location())
}

// daysIn relies on time.Date normalising day 0 to the last day of the previous month.
func daysIn(y int, m time.Month) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ParseRecurrence maps user input to a recurrence code.
func ParseRecurrence(s string) (storage.Recurrence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "once":
		return storage.RecurNone, nil
	case "daily", "day", "d":
		return storage.RecurDaily, nil
	case "weekly", "week", "w":
		return storage.RecurWeekly, nil
	case "monthly", "month", "m":
		return storage.RecurMonthly, nil
	case "yearly", "year", "annually", "y":
		return storage.RecurYearly, nil
	default:
		return storage.RecurNone, fmt.Errorf("%w: %q", ErrInvalidRecurrence, s)
	}
}

// ValidRecurrence reports whether r is a code the calculator understands.
func ValidRecurrence(r storage.Recurrence) bool {
	return r >= storage.RecurNone && r <= storage.RecurYearly
}
