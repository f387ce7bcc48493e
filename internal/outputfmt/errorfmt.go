// Package outputfmt scrubs secrets out of error text before it is logged.
package outputfmt

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	absoluteURLInTextRE = regexp.MustCompile(`https?://[^\s"'<>]+`)
	// Bot API paths carry the token: /bot123456:AA.../sendMessage
	botTokenPathRE = regexp.MustCompile(`/bot\d+:[A-Za-z0-9_-]+`)
)

// RedactErrorForLog renders err without the bot token or sensitive query
// values. net/http errors quote the full request URL, token included.
func RedactErrorForLog(err error) string {
	if err == nil {
		return ""
	}
	return RedactText(err.Error())
}

// RedactText removes bot tokens anywhere in raw and, for absolute URLs,
// drops the host and redacts sensitive query values.
func RedactText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = absoluteURLInTextRE.ReplaceAllStringFunc(raw, sanitizeURLInText)
	return botTokenPathRE.ReplaceAllString(raw, "/bot[redacted]")
}

func sanitizeURLInText(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if strings.TrimSpace(u.Scheme) == "" || strings.TrimSpace(u.Host) == "" {
		return raw
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if q := redactSensitiveQuery(u.Query()); q != "" {
		path += "?" + q
	}
	return path
}

func redactSensitiveQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	for k := range q {
		if isSensitiveQueryKey(k) {
			q.Set(k, "[redacted]")
		}
	}
	return q.Encode()
}

func isSensitiveQueryKey(key string) bool {
	n := strings.ToLower(strings.TrimSpace(key))
	n = strings.ReplaceAll(strings.ReplaceAll(n, "-", ""), "_", "")
	if n == "" {
		return false
	}
	if n == "key" {
		return true
	}
	for _, marker := range []string{"apikey", "authorization", "token", "secret", "password"} {
		if strings.Contains(n, marker) {
			return true
		}
	}
	return false
}
