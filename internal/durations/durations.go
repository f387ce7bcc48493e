// Package durations parses free-text durations such as "30s", "1h30m" or
// "2 часа 15 минут" and renders them back in a compact form.
package durations

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var (
	tokenRE        = regexp.MustCompile(`(\d+)\s*([\p{L}]+)`)
	millisRE       = regexp.MustCompile(`^(\d+)\s*ms$`)
	secondsFloatRE = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*s$`)
)

var exactUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"с": time.Second,

	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"м": time.Minute,

	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"ч": time.Hour,

	"d": Day, "day": Day, "days": Day,
	"день": Day, "дня": Day, "дней": Day, "дню": Day, "днём": Day, "днем": Day, "дне": Day, "дни": Day,
	"д": Day,

	"w": Week, "wk": Week, "week": Week, "weeks": Week,
	"н": Week,

	"mo": Month, "mth": Month, "month": Month, "months": Month,
	"мес": Month,

	"y": Year, "yr": Year, "year": Year, "years": Year,
	"г": Year, "год": Year, "года": Year, "лет": Year, "году": Year, "годом": Year, "годе": Year, "годы": Year,
}

// Russian stems whose inflected forms all share the same unit.
var unitStems = []struct {
	stem string
	unit time.Duration
}{
	{"сек", time.Second},
	{"мин", time.Minute},
	{"час", time.Hour},
	{"недел", Week},
	{"месяц", Month},
}

// Parse sums every recognized <integer><unit> token in text. Tokens with an
// unknown unit are skipped. The bool is false when nothing was recognized.
func Parse(text string) (time.Duration, bool) {
	var total time.Duration
	found := false
	for _, m := range tokenRE.FindAllStringSubmatch(text, -1) {
		unit, ok := lookupUnit(m[2])
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if n > 0 && unit > 0 && time.Duration(n) > time.Duration(math.MaxInt64)/unit {
			return 0, false
		}
		step := time.Duration(n) * unit
		if total > time.Duration(math.MaxInt64)-step {
			return 0, false
		}
		total += step
		found = true
	}
	return total, found
}

// ParseInterval accepts "<n>ms", "<n>s" with an optional fraction, or any
// Parse expression.
func ParseInterval(text string) (time.Duration, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return 0, false
	}
	if m := millisRE.FindStringSubmatch(text); m != nil {
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(n) * time.Millisecond, true
	}
	if m := secondsFloatRE.FindStringSubmatch(text); m != nil {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return time.Duration(f * float64(time.Second)), true
	}
	return Parse(text)
}

// Format renders d as "1d 2h 3m 4s", dropping zero units. Sub-second parts
// are truncated.
func Format(d time.Duration) string {
	return FormatSeconds(int64(d / time.Second))
}

func FormatSeconds(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	seconds %= 86400
	hours := seconds / 3600
	seconds %= 3600
	minutes := seconds / 60
	seconds %= 60

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, strconv.FormatInt(days, 10)+"d")
	}
	if hours > 0 {
		parts = append(parts, strconv.FormatInt(hours, 10)+"h")
	}
	if minutes > 0 {
		parts = append(parts, strconv.FormatInt(minutes, 10)+"m")
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, strconv.FormatInt(seconds, 10)+"s")
	}
	return strings.Join(parts, " ")
}

// Ceil rounds d up to a whole number of seconds.
func Ceil(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	if rem := d % time.Second; rem != 0 {
		d += time.Second - rem
	}
	return d
}

func lookupUnit(word string) (time.Duration, bool) {
	word = strings.ToLower(word)
	if unit, ok := exactUnits[word]; ok {
		return unit, true
	}
	for _, s := range unitStems {
		if strings.HasPrefix(word, s.stem) {
			return s.unit, true
		}
	}
	return 0, false
}
