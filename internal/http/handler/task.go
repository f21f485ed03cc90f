package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ErlanBelekov/task-scheduler/internal/domain"
	"github.com/ErlanBelekov/task-scheduler/internal/usecase"
	"github.com/gin-gonic/gin"
)

type taskUsecaser interface {
	CreateTask(ctx context.Context, input usecase.CreateTaskInput) (*domain.Task, error)
	GetTask(ctx context.Context, name string) (*domain.Task, error)
	ListTasks(ctx context.Context) ([]*domain.Task, error)
	UpdateTask(ctx context.Context, name string, patch domain.TaskPatch) (*domain.Task, error)
	DeleteTask(ctx context.Context, name string) error
	ListAttempts(ctx context.Context, name string, limit int) ([]*domain.Attempt, error)
}

type TaskHandler struct {
	taskUsecase taskUsecaser
	logger      *slog.Logger
}

func NewTaskHandler(taskUsecase taskUsecaser, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{taskUsecase: taskUsecase, logger: logger.With("component", "task_handler")}
}

type createTaskRequest struct {
	Name            string          `json:"name"             binding:"required,max=256"`
	Operation       string          `json:"operation"        binding:"required"`
	Type            string          `json:"type"             binding:"required"`
	IntervalSeconds *int            `json:"interval_seconds" binding:"omitempty,min=1,max=315360000"`
	CronExpr        *string         `json:"cron_expr"        binding:"omitempty,max=256"`
	NextExecution   *time.Time      `json:"next_execution"`
	Destination     string          `json:"destination"      binding:"required,url,max=2048"`
	Payload         json.RawMessage `json:"payload"`
}

// Every field is optional; name, if present, must match the query.
type updateTaskRequest struct {
	Name            *string         `json:"name"             binding:"omitempty,max=256"`
	Operation       *string         `json:"operation"`
	Type            *string         `json:"type"`
	IntervalSeconds *int            `json:"interval_seconds" binding:"omitempty,min=1,max=315360000"`
	CronExpr        *string         `json:"cron_expr"        binding:"omitempty,max=256"`
	NextExecution   *time.Time      `json:"next_execution"`
	Destination     *string         `json:"destination"      binding:"omitempty,url,max=2048"`
	Payload         json.RawMessage `json:"payload"`
}

type taskResponse struct {
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

type attemptResponse struct {
	ID         int64     `json:"id"`
	TaskName   string    `json:"task_name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	OK         bool      `json:"ok"`
	StatusCode *int      `json:"status_code"`
	Error      *string   `json:"error"`
}

func toTaskResponse(t *domain.Task) taskResponse {
	return taskResponse{
		ID:              t.ID,
		Name:            t.Name,
		Operation:       string(t.Operation),
		Type:            string(t.Type),
		IntervalSeconds: t.IntervalSeconds,
		CronExpr:        t.CronExpr,
		NextExecution:   t.NextExecution,
		Destination:     t.Destination,
		Payload:         t.Payload,
	}
}

// List serves GET /tasks, or a single task when ?name= is given.
func (h *TaskHandler) List(ctx *gin.Context) {
	if name, ok := ctx.GetQuery("name"); ok {
		h.get(ctx, name)
		return
	}

	tasks, err := h.taskUsecase.ListTasks(ctx.Request.Context())
	if err != nil {
		h.internalError(ctx, "list tasks", err)
		return
	}

	resp := make([]taskResponse, len(tasks))
	for i, t := range tasks {
		resp[i] = toTaskResponse(t)
	}
	ctx.JSON(http.StatusOK, resp)
}

func (h *TaskHandler) get(ctx *gin.Context, name string) {
	if name == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errNameRequired})
		return
	}

	task, err := h.taskUsecase.GetTask(ctx.Request.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTaskNotFound})
			return
		}
		h.internalError(ctx, "get task", err, "task", name)
		return
	}

	ctx.JSON(http.StatusOK, toTaskResponse(task))
}

func (h *TaskHandler) Create(ctx *gin.Context) {
	var req createTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := payloadString(req.Payload)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskUsecase.CreateTask(ctx.Request.Context(), usecase.CreateTaskInput{
		Name:            req.Name,
		Operation:       req.Operation,
		Type:            req.Type,
		IntervalSeconds: req.IntervalSeconds,
		CronExpr:        req.CronExpr,
		NextExecution:   req.NextExecution,
		Destination:     req.Destination,
		Payload:         payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidTask):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrDuplicateTask):
			ctx.JSON(http.StatusConflict, gin.H{"error": errDuplicateTask})
		default:
			h.internalError(ctx, "create task", err, "task", req.Name)
		}
		return
	}

	ctx.JSON(http.StatusCreated, toTaskResponse(task))
}

func (h *TaskHandler) Update(ctx *gin.Context) {
	name := ctx.Query("name")
	if name == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errNameRequired})
		return
	}

	var req updateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payload, err := payloadString(req.Payload)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task, err := h.taskUsecase.UpdateTask(ctx.Request.Context(), name, domain.TaskPatch{
		Name:            req.Name,
		Operation:       req.Operation,
		Type:            req.Type,
		IntervalSeconds: req.IntervalSeconds,
		CronExpr:        req.CronExpr,
		NextExecution:   req.NextExecution,
		Destination:     req.Destination,
		Payload:         payload,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTaskNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTaskNotFound})
		case errors.Is(err, domain.ErrInvalidTask):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.internalError(ctx, "update task", err, "task", name)
		}
		return
	}

	ctx.JSON(http.StatusOK, toTaskResponse(task))
}

func (h *TaskHandler) Delete(ctx *gin.Context) {
	name := ctx.Query("name")
	if name == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errNameRequired})
		return
	}

	if err := h.taskUsecase.DeleteTask(ctx.Request.Context(), name); err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTaskNotFound})
			return
		}
		h.internalError(ctx, "delete task", err, "task", name)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": msgTaskDeleted})
}

func (h *TaskHandler) ListAttempts(ctx *gin.Context) {
	name := ctx.Query("name")
	if name == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errNameRequired})
		return
	}

	var limit int
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidLimit})
			return
		}
		limit = n
	}

	attempts, err := h.taskUsecase.ListAttempts(ctx.Request.Context(), name, limit)
	if err != nil {
		h.internalError(ctx, "list attempts", err, "task", name)
		return
	}

	resp := make([]attemptResponse, len(attempts))
	for i, a := range attempts {
		resp[i] = attemptResponse{
			ID:         a.ID,
			TaskName:   a.TaskName,
			StartedAt:  a.StartedAt,
			DurationMS: a.DurationMS,
			OK:         a.OK,
			StatusCode: a.StatusCode,
			Error:      a.Error,
		}
	}
	ctx.JSON(http.StatusOK, resp)
}

func (h *TaskHandler) internalError(ctx *gin.Context, msg string, err error, args ...any) {
	h.logger.ErrorContext(ctx.Request.Context(), msg, append(args, "error", err)...)
	ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
}

// payloadString accepts either a JSON string, stored unquoted, or any other
// JSON value, stored as its compact text. null and absent both mean no payload.
func payloadString(raw json.RawMessage) (*string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
		return &s, nil
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	s := buf.String()
	return &s, nil
}
