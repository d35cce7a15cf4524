package router

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
)

var reqSeq atomic.Uint64

// newReqID returns a short, mostly unique id for correlating the log lines
// of one command: start time in base36 plus a process-wide sequence.
func newReqID() string {
	seq := reqSeq.Add(1)
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + strconv.FormatUint(seq, 36)
}

// closingQuote pairs opening quotes with their closers. Phone keyboards
// often turn "..." into “...”, so the typographic pairs count too.
var closingQuote = map[rune]rune{
	'"': '"',
	'\'': '\'',
	'“': '”',
	'‘': '’',
	'«': '»',
}

// tokenizeCommandLine splits a message into words. Quoted runs stay one
// word (so `/remind add "2026-03-01 09:00" dentist` keeps the date and time
// together) and a backslash escapes the next rune.
func tokenizeCommandLine(s string) []string {
	var (
		out     []string
		word    strings.Builder
		started bool
		closer  rune
		escaped bool
	)
	emit := func() {
		if started {
			out = append(out, word.String())
		}
		word.Reset()
		started = false
	}
	for _, r := range s {
		switch {
		case escaped:
			word.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped, started = true, true
		case closer != 0:
			if r == closer {
				closer = 0
			} else {
				word.WriteRune(r)
			}
		case unicode.IsSpace(r):
			emit()
		default:
			if c, ok := closingQuote[r]; ok {
				closer, started = c, true
				continue
			}
			word.WriteRune(r)
			started = true
		}
	}
	emit()
	return out
}

// parseFlags separates positionals from flags. Accepted forms are --k=v,
// --k v, a bare --k (bool), the same with a single dash for one-letter
// keys, and -abc for several bool letters. Words that look like negative
// numbers or durations ("-5m") stay positional and "--" ends flag parsing.
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}

	// value consumes the next word as a flag value unless it is a flag itself.
	value := func(i int) (string, bool) {
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			return args[i+1], true
		}
		return "", false
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		var key string
		switch {
		case a == "--":
			return append(pos, args[i+1:]...), flags, bools
		case strings.HasPrefix(a, "--"):
			key = a[2:]
		case len(a) > 1 && a[0] == '-' && !isDigit(a[1]):
			key = a[1:]
			if len(key) > 1 && !strings.Contains(key, "=") {
				for _, c := range key {
					bools[string(c)] = true
				}
				continue
			}
		default:
			pos = append(pos, a)
			continue
		}

		if k, v, ok := strings.Cut(key, "="); ok {
			flags[k] = v
			continue
		}
		if v, ok := value(i); ok {
			flags[key] = v
			i++
			continue
		}
		bools[key] = true
	}
	return pos, flags, bools
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
