package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
	"github.com/ErlanBelekov/task-scheduler/internal/requestid"
)

// MaxDetailBytes caps how much of a response body is kept as Result.Detail.
const MaxDetailBytes = 4 << 10

// Dispatcher makes the outbound HTTP call for a due task. It never retries;
// what happens after a failure is up to the worker.
type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
}

func NewDispatcher(timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		client:  &http.Client{},
		timeout: timeout,
	}
}

type Result struct {
	OK         bool
	StatusCode int // 0 when no response was received
	Detail     string
	Duration   time.Duration
}

func (d *Dispatcher) Execute(ctx context.Context, destination string, op domain.Operation, payload *string) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var bodyReader io.Reader
	if payload != nil {
		bodyReader = strings.NewReader(*payload)
	}

	req, err := http.NewRequestWithContext(ctx, string(op), destination, bodyReader)
	if err != nil {
		return Result{Detail: fmt.Sprintf("build request: %v", err), Duration: time.Since(start)}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "task-scheduler")
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{Detail: fmt.Sprintf("do request: %v", err), Duration: time.Since(start)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxDetailBytes))
	_, _ = io.Copy(io.Discard, resp.Body) // drain so the connection can be reused by the pool

	detail := string(body)
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok && detail == "" {
		detail = resp.Status
	}

	return Result{
		OK:         ok,
		StatusCode: resp.StatusCode,
		Detail:     detail,
		Duration:   time.Since(start),
	}
}
