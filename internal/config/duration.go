package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxConfigDays bounds the day prefix of a config duration.
const maxConfigDays = 3650

// parseDuration reads a duration field. On top of time.ParseDuration it takes
// a leading whole-day part ("2d", "1d12h") because scheduler horizons are
// naturally written in days. Empty means def. An explicit zero is accepted
// only where zeroOK is set (e.g. no catch-up grace at all).
func parseDuration(path, raw string, def time.Duration, zeroOK bool) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	var d time.Duration
	if i := strings.IndexByte(s, 'd'); i > 0 {
		n, err := strconv.Atoi(s[:i])
		if err != nil || n < 0 || n > maxConfigDays {
			return 0, fmt.Errorf("%s: invalid day count in %q", path, raw)
		}
		d = time.Duration(n) * 24 * time.Hour
		s = s[i+1:]
	}
	if s != "" {
		rest, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
		}
		d += rest
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: duration %q is negative", path, raw)
	case d == 0 && !zeroOK:
		return 0, fmt.Errorf("%s: duration must be positive", path)
	}
	return d, nil
}
