// Package telegramapi is a small Bot API client covering what the bot needs:
// long polling, sending, editing and deleting messages.
package telegramapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL        = "https://api.telegram.org"
	defaultRequestTimeout = 60 * time.Second
	defaultPollTimeout    = 30 * time.Second
	maxRetryAfter         = 30 * time.Second
)

type Options struct {
	HTTPClient *http.Client
	BaseURL    string
	Token      string
	Logger     *slog.Logger

	// RateLimit is the steady number of outbound calls per second; zero
	// disables pacing. getUpdates is never paced.
	RateLimit float64
	RateBurst int
}

type Client struct {
	http    *http.Client
	baseURL string
	token   string
	logger  *slog.Logger
	limiter *rate.Limiter
}

func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(opts.Token),
		logger:  logger,
		limiter: limiter,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// call posts body as JSON to the named method and decodes the result into
// out when out is non-nil. A 429 with a short retry_after is retried once.
func (c *Client) call(ctx context.Context, method string, body any, out any) error {
	if c.limiter != nil && method != "getUpdates" {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	err := c.do(ctx, method, body, out)
	reqErr, ok := err.(*RequestError)
	if !ok || reqErr.StatusCode != http.StatusTooManyRequests || reqErr.RetryAfter <= 0 {
		return err
	}
	wait := time.Duration(reqErr.RetryAfter) * time.Second
	if wait > maxRetryAfter {
		return err
	}
	c.logger.Warn("telegram_rate_limited", "method", method, "retry_after", wait.String())
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return c.do(ctx, method, body, out)
}

func (c *Client) do(ctx context.Context, method string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("telegram %s: encode request: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	requestID := uuid.NewString()

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var env apiResponse
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.OK {
		reqErr := &RequestError{
			Method:      method,
			StatusCode:  resp.StatusCode,
			ErrorCode:   env.ErrorCode,
			Description: env.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
		if env.Parameters != nil {
			reqErr.RetryAfter = env.Parameters.RetryAfter
		}
		c.logger.Debug("telegram_request_rejected",
			"request_id", requestID,
			"method", method,
			"status", resp.StatusCode,
			"description", env.Description,
		)
		return reqErr
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var out User
	if err := c.call(ctx, "getMe", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetUpdates long-polls for new updates and returns them together with the
// offset for the next call.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []Update
	err := c.call(reqCtx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        secs,
		AllowedUpdates: []string{"message"},
	}, &updates)
	if err != nil {
		return nil, offset, err
	}
	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	var out Message
	err := c.call(ctx, "sendMessage", sendMessageRequest{
		ChatID:                chatID,
		Text:                  text,
		DisableWebPagePreview: true,
		ReplyToMessageID:      replyTo,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// EditMessageText treats "message is not modified" as success.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	err := c.call(ctx, "editMessageText", editMessageTextRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	}, nil)
	if IsNotModified(err) {
		return nil
	}
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", messageRefRequest{ChatID: chatID, MessageID: messageID}, nil)
}

// ProbeMessage checks that a bot message still exists by clearing its
// (absent) inline keyboard. Telegram answers "not modified" for a live
// message and "not found" for a deleted one.
func (c *Client) ProbeMessage(ctx context.Context, chatID, messageID int64) (bool, error) {
	err := c.call(ctx, "editMessageReplyMarkup", messageRefRequest{ChatID: chatID, MessageID: messageID}, nil)
	switch {
	case err == nil, IsNotModified(err):
		return true, nil
	case IsMessageGone(err):
		return false, nil
	default:
		return false, err
	}
}
