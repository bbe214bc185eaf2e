package card

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
)

// StatusClass classifies a dispatch outcome for metrics and retry
// decisions, matching the outbox's own retryable/non-retryable split.
type StatusClass string

const (
	StatusOK  StatusClass = "ok"
	Status429 StatusClass = "429"
	Status4xx StatusClass = "4xx"
	Status5xx StatusClass = "5xx"
	StatusNet StatusClass = "net"
)

// DispatchResult is the outcome of sending one card to one channel.
type DispatchResult struct {
	Class      StatusClass
	HTTPStatus int
	RetryAfter time.Duration
	Err        error
}

// Dispatcher sends a rendered card to a chat/channel.
type Dispatcher interface {
	Send(ctx context.Context, channelID, text string) DispatchResult
}

// TelegramDispatcher posts to the Telegram Bot API sendMessage endpoint.
// No teacher/pack Telegram SDK exists in the example corpus, so this
// talks to the HTTP API directly via net/http, using gjson (already a
// pack dependency) to read the response body instead of a full struct.
type TelegramDispatcher struct {
	httpClient *http.Client
	botToken   string
	apiBase    string
}

// NewTelegramDispatcher builds a dispatcher against the standard Telegram
// Bot API base URL.
func NewTelegramDispatcher(botToken string, timeout time.Duration) *TelegramDispatcher {
	return &TelegramDispatcher{
		httpClient: &http.Client{Timeout: timeout},
		botToken:   botToken,
		apiBase:    "https://api.telegram.org",
	}
}

func (d *TelegramDispatcher) Send(ctx context.Context, channelID, text string) DispatchResult {
	url := fmt.Sprintf("%s/bot%s/sendMessage", d.apiBase, d.botToken)
	body, err := json.Marshal(map[string]interface{}{
		"chat_id":    channelID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return DispatchResult{Class: StatusNet, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return DispatchResult{Class: StatusNet, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return DispatchResult{Class: StatusNet, Err: err}
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return DispatchResult{Class: StatusNet, HTTPStatus: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusOK {
		if ok := gjson.GetBytes(buf.Bytes(), "ok").Bool(); ok {
			return DispatchResult{Class: StatusOK, HTTPStatus: resp.StatusCode}
		}
	}

	class := classifyStatus(resp.StatusCode)
	result := DispatchResult{
		Class:      class,
		HTTPStatus: resp.StatusCode,
		Err:        fmt.Errorf("telegram dispatch failed: status %d: %s", resp.StatusCode, gjson.GetBytes(buf.Bytes(), "description").String()),
	}
	if class == Status429 {
		if retryAfter := gjson.GetBytes(buf.Bytes(), "parameters.retry_after").Int(); retryAfter > 0 {
			result.RetryAfter = time.Duration(retryAfter) * time.Second
		}
	}
	return result
}

func classifyStatus(status int) StatusClass {
	switch {
	case status == http.StatusTooManyRequests:
		return Status429
	case status >= 400 && status < 500:
		return Status4xx
	case status >= 500:
		return Status5xx
	default:
		return StatusNet
	}
}
