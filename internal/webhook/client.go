package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds one delivery when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Client posts JSON documents to webhook endpoints.
type Client struct {
	HTTP *http.Client
}

// New returns a client whose requests never outlive timeout.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{HTTP: &http.Client{Timeout: timeout}}
}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("webhook: status=%d body=%s", e.StatusCode, e.Body)
}

// PostJSON sends body as JSON and returns the response status code.
// Any status outside 2xx is reported as *HTTPError.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body any) (int, error) {
	if c == nil || c.HTTP == nil {
		return 0, errors.New("webhook: nil client")
	}
	if strings.TrimSpace(url) == "" {
		return 0, errors.New("webhook: empty url")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("webhook: marshal json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("webhook: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if strings.TrimSpace(k) == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook: do request: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return resp.StatusCode, nil
}
