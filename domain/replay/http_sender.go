package replay

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// HTTPSender POSTs replay payloads to their provider endpoint over plain
// HTTP, the way original_source/scripts/replay_failed_only.py's
// send_request does with requests.post.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender builds an HTTPSender with the given per-request timeout.
func NewHTTPSender(timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &HTTPSender{client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, endpoint string, headers map[string]string, payload []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
