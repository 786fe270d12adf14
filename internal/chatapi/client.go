// Package chatapi calls the remote chatbot endpoint.
package chatapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"parley/internal/domain"
)

const maxResponseBytes = 1 << 20

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Client implements ports.ChatClient. It posts one form-encoded question
// per call and never retries.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type answerPayload struct {
	Answer *json.RawMessage `json:"answer"`
	Error  string           `json:"error"`
}

// Ask returns the answer for question. Failures to reach the endpoint or a
// non-2xx status wrap domain.ErrTransport. A 2xx reply without a usable
// string answer wraps domain.ErrMalformedResponse.
func (c *Client) Ask(ctx context.Context, userID string, question string) (string, error) {
	form := url.Values{}
	form.Set("user_id", userID)
	form.Set("question", question)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", domain.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d: %s", domain.ErrTransport, resp.StatusCode, snippet(body))
	}

	return parseAnswer(body)
}

func parseAnswer(body []byte) (string, error) {
	var payload answerPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if payload.Answer == nil {
		if payload.Error != "" {
			return "", fmt.Errorf("%w: server error: %s", domain.ErrMalformedResponse, payload.Error)
		}
		return "", fmt.Errorf("%w: missing answer", domain.ErrMalformedResponse)
	}

	var answer string
	if err := json.Unmarshal(*payload.Answer, &answer); err != nil {
		return "", fmt.Errorf("%w: answer is not a string", domain.ErrMalformedResponse)
	}
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: empty answer", domain.ErrMalformedResponse)
	}
	return answer, nil
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		return text[:200] + "..."
	}
	return text
}
