package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/ErlanBelekov/task-scheduler/internal/requestid"
)

func TestContextHandler_AddsContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := requestid.WithRequestID(context.Background(), "req-42")
	ctx = WithAttrs(ctx, slog.String("task", "ping"))
	logger.InfoContext(ctx, "dispatched")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if rec["request_id"] != "req-42" {
		t.Errorf("request_id = %v, want req-42", rec["request_id"])
	}
	if rec["task"] != "ping" {
		t.Errorf("task = %v, want ping", rec["task"])
	}
}

func TestContextHandler_NoContextValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "plain")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if _, ok := rec["request_id"]; ok {
		t.Error("unexpected request_id")
	}
}

func TestNew_JSONOutsideLocal(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "production", slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("shown", "k", "v")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "shown" || rec["k"] != "v" {
		t.Errorf("unexpected record %v", rec)
	}
}
