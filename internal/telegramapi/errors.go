package telegramapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// RequestError is a Bot API call that reached Telegram and was rejected, or
// came back with a non-2xx status.
type RequestError struct {
	Method      string
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
	RetryAfter  int
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	prefix := "telegram"
	if e.Method != "" {
		prefix = "telegram " + e.Method
	}
	desc := strings.TrimSpace(e.Description)
	if desc != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("%s http %d: %s", prefix, e.StatusCode, desc)
		}
		return prefix + ": " + desc
	}
	body := strings.TrimSpace(e.Body)
	if e.StatusCode > 0 {
		if body != "" {
			return fmt.Sprintf("%s http %d: %s", prefix, e.StatusCode, body)
		}
		return fmt.Sprintf("%s http %d", prefix, e.StatusCode)
	}
	if body != "" {
		return prefix + ": " + body
	}
	return "telegram request failed"
}

func descriptionOf(err error) string {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return strings.ToLower(strings.TrimSpace(reqErr.Description))
	}
	return ""
}

// IsNotModified reports the 400 Telegram returns when an edit would leave a
// message unchanged.
func IsNotModified(err error) bool {
	return strings.Contains(descriptionOf(err), "message is not modified")
}

// IsMessageGone reports errors meaning the target message no longer exists
// or can no longer be edited by the bot.
func IsMessageGone(err error) bool {
	desc := descriptionOf(err)
	if desc == "" {
		return false
	}
	for _, marker := range []string{
		"message to edit not found",
		"message to delete not found",
		"message to be replied not found",
		"message not found",
		"message_id_invalid",
		"message can't be edited",
		"message can't be deleted",
		"chat not found",
	} {
		if strings.Contains(desc, marker) {
			return true
		}
	}
	return false
}

// IsPollTimeoutError reports whether a getUpdates failure is only the long
// poll running out, which is not worth a warning.
func IsPollTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}
