// Package board is PRISM's Board Adapter: a small HTTP client over an
// external Kanban-style board, with bounded retry/backoff and an idempotent
// sync operation (spec.md §4.5).
package board

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/prism/internal/logging"
	"github.com/antigravity-dev/prism/internal/prismerr"
)

// TaskRecord is a board task as PRISM understands it.
type TaskRecord struct {
	BoardID  string   `json:"id"`
	Title    string   `json:"title"`
	Body     string   `json:"body,omitempty"`
	Status   string   `json:"status"`
	Criteria []string `json:"criteria,omitempty"`
}

// Client is the Board Adapter's interface (spec.md §4.5): list, create,
// fetch, and (optionally, by the board's own support) update status.
type Client interface {
	ListTasks(ctx context.Context, projectID string) ([]TaskRecord, error)
	CreateTask(ctx context.Context, projectID, title, body string) (string, error)
	GetTask(ctx context.Context, boardID string) (TaskRecord, error)
	UpdateTaskStatus(ctx context.Context, boardID, status string) error
}

// RetryPolicy bounds how an HTTPClient retries a transient failure.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Deadline bounds the whole operation, attempts and backoff waits
	// included. Exhausting it surfaces as ExternalUnavailable, per spec.md
	// §4.5's "deadline exhausted" rule.
	Deadline time.Duration
}

// DefaultRetryPolicy matches spec.md §4.5's "bounded total deadline,
// exponential backoff with jitter" description with conservative defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Deadline:    60 * time.Second,
	}
}

// HTTPClient is the default Client implementation: a thin REST wrapper.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      RetryPolicy
}

// NewHTTPClient builds a board client against baseURL, authenticating with
// token (a bearer token, empty to disable) and bounded by retry.
func NewHTTPClient(baseURL, token string, timeout time.Duration, retry RetryPolicy) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		retry:      retry,
	}
}

func (c *HTTPClient) ListTasks(ctx context.Context, projectID string) ([]TaskRecord, error) {
	var out []TaskRecord
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/projects/%s/tasks", projectID), nil, &out, "")
	return out, err
}

func (c *HTTPClient) CreateTask(ctx context.Context, projectID, title, body string) (string, error) {
	payload := map[string]string{"title": title, "body": body}
	var out TaskRecord
	// One idempotency key per logical call, reused across every retry
	// attempt doJSON makes, so a create that actually succeeded but whose
	// response was lost to a network error doesn't create a second task.
	idempotencyKey := uuid.NewString()
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/projects/%s/tasks", projectID), payload, &out, idempotencyKey); err != nil {
		return "", err
	}
	return out.BoardID, nil
}

func (c *HTTPClient) GetTask(ctx context.Context, boardID string) (TaskRecord, error) {
	var out TaskRecord
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/tasks/%s", boardID), nil, &out, "")
	return out, err
}

func (c *HTTPClient) UpdateTaskStatus(ctx context.Context, boardID, status string) error {
	payload := map[string]string{"status": status}
	return c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/tasks/%s", boardID), payload, nil, "")
}

// doJSON performs one logical board request, retrying transient failures
// under backoffDelay until retry.MaxAttempts or retry.Deadline is hit,
// whichever comes first.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}, idempotencyKey string) error {
	deadlineCtx, cancel := context.WithTimeout(ctx, c.retry.Deadline)
	defer cancel()

	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return prismerr.InvalidInput("encode board request body: %v", err)
		}
		bodyBytes = b
	}

	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(attempt-1, c.retry.BaseDelay, c.retry.MaxDelay)
			select {
			case <-time.After(delay):
			case <-deadlineCtx.Done():
				return prismerr.ExternalUnavailable(deadlineCtx.Err(), "board request deadline exceeded waiting to retry %s %s", method, path)
			}
		}

		resp, data, err := c.attempt(deadlineCtx, method, path, bodyBytes, idempotencyKey)
		if err != nil {
			lastErr = err
			logging.BoardDebug("doJSON: attempt %d %s %s transport error: %v", attempt, method, path, err)
			continue
		}

		if resp >= 200 && resp < 300 {
			if out != nil && len(data) > 0 {
				if err := json.Unmarshal(data, out); err != nil {
					return prismerr.Wrap(prismerr.KindInvalidInput, err, "decode board response for %s %s", method, path)
				}
			}
			return nil
		}

		if !retryableStatus(resp) {
			return prismerr.Wrap(prismerr.KindInvalidInput, fmt.Errorf("status %d: %s", resp, string(data)), "board rejected %s %s", method, path)
		}

		lastErr = fmt.Errorf("status %d: %s", resp, string(data))
		logging.BoardDebug("doJSON: attempt %d %s %s retryable status %d", attempt, method, path, resp)
	}

	return prismerr.ExternalUnavailable(lastErr, "board request exhausted %d attempts: %s %s", c.retry.MaxAttempts, method, path)
}

func (c *HTTPClient) attempt(ctx context.Context, method, path string, bodyBytes []byte, idempotencyKey string) (status int, data []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, data, nil
}
