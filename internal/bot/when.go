package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrBadWhen = errors.New("unrecognized time")

const (
	layoutDateTime  = "2006-01-02 15:04"
	layoutDateTimeT = "2006-01-02T15:04"
	layoutDate      = "2006-01-02"
	layoutClock     = "15:04"
)

// ParseWhen reads a reminder time from the head of args and reports how many
// tokens it consumed. Accepted forms, all interpreted in loc:
//
//	"2026-03-01 09:00"   (one quoted token, or two tokens)
//	2026-03-01T09:00
//	09:00                the next time the clock shows 09:00
//	+90m, +2h30m, +3d    relative to now
func ParseWhen(args []string, now time.Time, loc *time.Location) (time.Time, int, error) {
	if len(args) == 0 {
		return time.Time{}, 0, fmt.Errorf("%w: missing time", ErrBadWhen)
	}
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	head := strings.TrimSpace(args[0])

	if strings.HasPrefix(head, "+") {
		d, err := parseRelative(head[1:])
		if err != nil {
			return time.Time{}, 0, err
		}
		return now.Add(d).Truncate(time.Second), 1, nil
	}
	for _, layout := range []string{layoutDateTime, layoutDateTimeT} {
		if t, err := time.ParseInLocation(layout, head, loc); err == nil {
			return t, 1, nil
		}
	}
	if _, err := time.ParseInLocation(layoutDate, head, loc); err == nil {
		if len(args) < 2 {
			return time.Time{}, 0, fmt.Errorf("%w: %q needs a time of day", ErrBadWhen, head)
		}
		t, err := time.ParseInLocation(layoutDateTime, head+" "+strings.TrimSpace(args[1]), loc)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("%w: %q", ErrBadWhen, head+" "+args[1])
		}
		return t, 2, nil
	}
	if c, err := time.Parse(layoutClock, head); err == nil {
		t := time.Date(now.Year(), now.Month(), now.Day(), c.Hour(), c.Minute(), 0, 0, loc)
		if !t.After(now) {
			t = time.Date(now.Year(), now.Month(), now.Day()+1, c.Hour(), c.Minute(), 0, 0, loc)
		}
		return t, 1, nil
	}
	return time.Time{}, 0, fmt.Errorf("%w: %q", ErrBadWhen, head)
}

// maxRelativeDays keeps +Nd well clear of time.Duration overflow.
const maxRelativeDays = 36500

// parseRelative accepts Go durations plus a whole-day "Nd" form.
func parseRelative(s string) (time.Duration, error) {
	var d time.Duration
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("%w: +%s", ErrBadWhen, s)
		}
		if n > maxRelativeDays {
			return 0, fmt.Errorf("%w: +%s is more than %d days ahead", ErrBadWhen, s, maxRelativeDays)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		var err error
		if d, err = time.ParseDuration(s); err != nil {
			return 0, fmt.Errorf("%w: +%s", ErrBadWhen, s)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: +%s is not in the future", ErrBadWhen, s)
	}
	return d, nil
}
