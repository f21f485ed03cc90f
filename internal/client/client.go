// Package client is a Go client for the task scheduler's HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/requestid"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrBadInput = errors.New("bad request")
)

// APIError is any non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Is lets callers branch on errors.Is(err, client.ErrNotFound) and friends.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrBadInput:
		return e.StatusCode == http.StatusBadRequest
	}
	return false
}

type Task struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Operation       string    `json:"operation"`
	Type            string    `json:"type"`
	IntervalSeconds *int      `json:"interval_seconds,omitempty"`
	CronExpr        *string   `json:"cron_expr,omitempty"`
	NextExecution   time.Time `json:"next_execution"`
	Destination     string    `json:"destination"`
	Payload         *string   `json:"payload,omitempty"`
}

// TaskSpec is the body of a create or update. Zero fields are left out, so
// an update only touches what is set.
type TaskSpec struct {
	Name            string     `json:"name,omitempty"`
	Operation       string     `json:"operation,omitempty"`
	Type            string     `json:"type,omitempty"`
	IntervalSeconds *int       `json:"interval_seconds,omitempty"`
	CronExpr        *string    `json:"cron_expr,omitempty"`
	NextExecution   *time.Time `json:"next_execution,omitempty"`
	Destination     string     `json:"destination,omitempty"`
	Payload         *string    `json:"payload,omitempty"`
}

type Attempt struct {
	ID         int64     `json:"id"`
	TaskName   string    `json:"task_name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	OK         bool      `json:"ok"`
	StatusCode *int      `json:"status_code"`
	Error      *string   `json:"error"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client for the server at baseURL. A nil httpClient gets a
// default with a 30s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (c *Client) List(ctx context.Context) ([]Task, error) {
	var tasks []Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, nil, &tasks); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (c *Client) Get(ctx context.Context, name string) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodGet, "/tasks", byName(name), nil, &task); err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

func (c *Client) Create(ctx context.Context, spec TaskSpec) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, spec, &task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return &task, nil
}

func (c *Client) Update(ctx context.Context, name string, spec TaskSpec) (*Task, error) {
	var task Task
	if err := c.do(ctx, http.MethodPut, "/tasks", byName(name), spec, &task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return &task, nil
}

func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, "/tasks", byName(name), nil, nil); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// Attempts lists the newest attempts first. limit <= 0 uses the server default.
func (c *Client) Attempts(ctx context.Context, name string, limit int) ([]Attempt, error) {
	q := byName(name)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var attempts []Attempt
	if err := c.do(ctx, http.MethodGet, "/tasks/attempts", q, nil, &attempts); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attempts, nil
}

func byName(name string) url.Values {
	return url.Values{"name": []string{name}}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestid.Header, requestid.New())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(raw, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
