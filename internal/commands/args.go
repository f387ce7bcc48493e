package commands

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/quailyquaily/pbot/internal/durations"
	"github.com/quailyquaily/pbot/internal/tasks"
)

// usageError is a validation failure whose text is shown to the user as is.
type usageError string

func (e usageError) Error() string {
	return string(e)
}

func usagef(format string, args ...any) error {
	return usageError(fmt.Sprintf(format, args...))
}

// Limits bound what a single command may request.
type Limits struct {
	MaxDuration time.Duration
	MaxSpam     int
	MaxMention  int
	MinInterval time.Duration
}

type Defaults struct {
	WakeMessages    int
	TimerSpam       int
	MentionInterval time.Duration
}

var (
	usernameRE = regexp.MustCompile(`^@\w+$`)

	spamPatterns = []struct {
		re      *regexp.Regexp
		hasUser bool
	}{
		{regexp.MustCompile(`^(@\w+)\s+"([^"]+)"\s+(\d+)$`), true},
		{regexp.MustCompile(`^(@\w+)\s+'([^']+)'\s+(\d+)$`), true},
		{regexp.MustCompile(`^"([^"]+)"\s+(\d+)$`), false},
		{regexp.MustCompile(`^'([^']+)'\s+(\d+)$`), false},
		{regexp.MustCompile(`^([^@\s]\S*)\s+(\d+)$`), false},
		{regexp.MustCompile(`^(@\w+)\s+(\S+)\s+(\d+)$`), true},
	}
)

type durationArgs struct {
	Duration time.Duration
	Count    int
	Warning  string
}

type reminderArgs struct {
	Duration time.Duration
	Text     string
}

type mentionArgs struct {
	Username string
	Count    int
	Interval time.Duration
	Warning  string
}

type spamArgs struct {
	TargetUser string
	Text       string
	Count      int
	Warning    string
}

type cancelArgs struct {
	All      bool
	Group    tasks.Group
	Selector string
}

type argParser struct {
	limits   Limits
	defaults Defaults
}

// durationCount parses "<duration> [count]". A trailing integer is the count;
// everything before it is the duration.
func (p argParser) durationCount(args string, defCount int, usage string) (durationArgs, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return durationArgs{}, usageError(usage)
	}
	count := defCount
	if len(fields) >= 2 {
		if n, err := strconv.Atoi(fields[len(fields)-1]); err == nil {
			count = n
			fields = fields[:len(fields)-1]
		}
	}
	d, err := p.duration(strings.Join(fields, " "))
	if err != nil {
		return durationArgs{}, err
	}
	count, warning := clampCount(count, p.limits.MaxSpam)
	return durationArgs{Duration: d, Count: count, Warning: warning}, nil
}

func (p argParser) timer(args string) (durationArgs, error) {
	return p.durationCount(args, p.defaults.TimerSpam, "❌ Usage: /timer <duration> [count], e.g. /timer 5m")
}

func (p argParser) wake(args string) (durationArgs, error) {
	return p.durationCount(args, p.defaults.WakeMessages, "❌ Usage: /wake <duration> [messages], e.g. /wake 8h 20")
}

// reminder parses "<duration> <text>". The duration is the first word.
func (p argParser) reminder(args string) (reminderArgs, error) {
	const usage = "❌ Usage: /remind <duration> <text>, e.g. /remind 30m call mom"
	word, rest := splitCommand(args)
	if word == "" {
		return reminderArgs{}, usageError(usage)
	}
	d, err := p.duration(word)
	if err != nil {
		return reminderArgs{}, err
	}
	text := strings.TrimSpace(stripQuotes(rest))
	if text == "" {
		return reminderArgs{}, usageError("❌ Reminder text is empty")
	}
	return reminderArgs{Duration: d, Text: text}, nil
}

func (p argParser) mention(args string) (mentionArgs, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return mentionArgs{}, usageError("❌ Usage: /mention @username <count> [interval], e.g. /mention @bob 10 1s")
	}
	if !usernameRE.MatchString(fields[0]) {
		return mentionArgs{}, usageError("❌ Username must start with @")
	}
	count, err := strconv.Atoi(fields[1])
	if err != nil {
		return mentionArgs{}, usagef("❌ Invalid count: %q", fields[1])
	}
	if count < 1 {
		return mentionArgs{}, usageError("❌ Count must be at least 1")
	}
	count, warning := clampCount(count, p.limits.MaxMention)

	interval := p.defaults.MentionInterval
	if len(fields) > 2 {
		raw := strings.Join(fields[2:], " ")
		parsed, ok := durations.ParseInterval(raw)
		if !ok {
			return mentionArgs{}, usagef("❌ Invalid interval: %q. Examples: 1s, 500ms", raw)
		}
		interval = parsed
	}
	if interval < p.limits.MinInterval {
		interval = p.limits.MinInterval
	}
	return mentionArgs{Username: fields[0], Count: count, Interval: interval, Warning: warning}, nil
}

func (p argParser) spam(args string) (spamArgs, error) {
	args = strings.TrimSpace(args)
	for _, pat := range spamPatterns {
		m := pat.re.FindStringSubmatch(args)
		if m == nil {
			continue
		}
		out := spamArgs{}
		rawCount := m[len(m)-1]
		if pat.hasUser {
			out.TargetUser = m[1]
			out.Text = m[2]
		} else {
			out.Text = m[1]
		}
		count, err := strconv.Atoi(rawCount)
		if err != nil {
			return spamArgs{}, usagef("❌ Invalid count: %q", rawCount)
		}
		if count < 1 {
			return spamArgs{}, usageError("❌ Count must be at least 1")
		}
		out.Count, out.Warning = clampCount(count, p.limits.MaxSpam)
		return out, nil
	}
	return spamArgs{}, usageError(`❌ Usage: /spam "text" 10 or /spam @username "text" 10`)
}

func (p argParser) cancel(args string) (cancelArgs, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return cancelArgs{}, usageError("❌ Usage: /cancel <timer|wake|mention|all> [id|number]")
	}
	if strings.EqualFold(fields[0], "all") {
		return cancelArgs{All: true}, nil
	}
	group, err := tasks.ParseGroup(fields[0])
	if err != nil {
		return cancelArgs{}, usagef("❌ Unknown type: %q. Use timer, wake, mention or all", fields[0])
	}
	out := cancelArgs{Group: group}
	if len(fields) > 1 {
		out.Selector = fields[1]
	}
	return out, nil
}

// listGroups returns the groups /list should show, in display order.
func (p argParser) listGroups(args string) ([]tasks.Group, error) {
	args = strings.TrimSpace(args)
	if args == "" || strings.EqualFold(args, "all") {
		return tasks.Groups(), nil
	}
	group, err := tasks.ParseGroup(args)
	if err != nil {
		return nil, usagef("❌ Unknown type: %q. Use timers, wake, mention or all", args)
	}
	return []tasks.Group{group}, nil
}

func (p argParser) duration(text string) (time.Duration, error) {
	d, ok := durations.Parse(text)
	if !ok || d <= 0 {
		return 0, usagef("❌ Invalid duration: %q. Examples: 30s, 5m, 1h30m", strings.TrimSpace(text))
	}
	if p.limits.MaxDuration > 0 && d > p.limits.MaxDuration {
		return 0, usagef("❌ Maximum duration is %s", durations.Format(p.limits.MaxDuration))
	}
	return d, nil
}

// clampCount pulls n into 1..max and explains an upper clamp.
func clampCount(n, max int) (int, string) {
	if n < 1 {
		return 1, ""
	}
	if max > 0 && n > max {
		return max, fmt.Sprintf("⚠️ count too large, clamped to %d", max)
	}
	return n, ""
}

func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {`'`, `'`}, {"“", "”"}, {"«", "»"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			return s[len(q[0]) : len(s)-len(q[1])]
		}
	}
	return s
}
