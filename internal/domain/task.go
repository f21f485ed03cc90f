package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrDuplicateTask = errors.New("task with this name already exists")
	ErrInvalidTask   = errors.New("invalid task")
	// ErrStaleTask is returned when a conditional write finds the record was
	// modified after it was read.
	ErrStaleTask = errors.New("task was modified concurrently")
)

type Operation string

const (
	OperationGet    Operation = "GET"
	OperationPost   Operation = "POST"
	OperationPut    Operation = "PUT"
	OperationDelete Operation = "DELETE"
)

// ParseOperation accepts the verb in any case ("get", "Post", ...).
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToUpper(strings.TrimSpace(s)))
	switch op {
	case OperationGet, OperationPost, OperationPut, OperationDelete:
		return op, nil
	}
	return "", fmt.Errorf("%w: unsupported operation %q", ErrInvalidTask, s)
}

type Type string

const (
	TypeSingle   Type = "single"
	TypeInterval Type = "interval"
	TypeCron     Type = "cron"
)

func ParseType(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case TypeSingle, TypeInterval, TypeCron:
		return t, nil
	}
	return "", fmt.Errorf("%w: unsupported type %q", ErrInvalidTask, s)
}

// Recurring reports whether the scheduler keeps the task after dispatching it.
func (t Type) Recurring() bool {
	return t == TypeInterval || t == TypeCron
}

// MaxIntervalSeconds caps interval_seconds at ten years, far below the point
// where the interval would overflow a time.Duration.
const MaxIntervalSeconds = 10 * 365 * 24 * 60 * 60

type Task struct {
	ID              int64
	Name            string
	Operation       Operation
	Type            Type
	IntervalSeconds *int    // set iff Type == TypeInterval
	CronExpr        *string // set iff Type == TypeCron
	NextExecution   time.Time
	Destination     string
	Payload         *string // nil means no body
	Version         int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the cross-field rules of a task record.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if _, err := ParseOperation(string(t.Operation)); err != nil {
		return err
	}
	if _, err := ParseType(string(t.Type)); err != nil {
		return err
	}
	if err := validateDestination(t.Destination); err != nil {
		return err
	}
	if t.NextExecution.IsZero() {
		return fmt.Errorf("%w: next_execution is required", ErrInvalidTask)
	}

	switch t.Type {
	case TypeInterval:
		if t.IntervalSeconds == nil || *t.IntervalSeconds <= 0 {
			return fmt.Errorf("%w: interval_seconds must be a positive integer for interval tasks", ErrInvalidTask)
		}
		if *t.IntervalSeconds > MaxIntervalSeconds {
			return fmt.Errorf("%w: interval_seconds must be at most %d", ErrInvalidTask, MaxIntervalSeconds)
		}
	case TypeCron:
		if t.CronExpr == nil {
			return fmt.Errorf("%w: cron_expr is required for cron tasks", ErrInvalidTask)
		}
		if _, err := cron.ParseStandard(*t.CronExpr); err != nil {
			return fmt.Errorf("%w: cron_expr: %v", ErrInvalidTask, err)
		}
	}
	return nil
}

// NextAfter returns when a recurring task fires next, measured from the
// moment it was dispatched. ok is false for single tasks.
func (t *Task) NextAfter(dispatchedAt time.Time) (next time.Time, ok bool, err error) {
	switch t.Type {
	case TypeInterval:
		if t.IntervalSeconds == nil || *t.IntervalSeconds <= 0 {
			return time.Time{}, false, fmt.Errorf("%w: interval_seconds missing on stored task", ErrInvalidTask)
		}
		if *t.IntervalSeconds > MaxIntervalSeconds {
			return time.Time{}, false, fmt.Errorf("%w: interval_seconds out of range on stored task", ErrInvalidTask)
		}
		next := dispatchedAt.Add(time.Duration(*t.IntervalSeconds) * time.Second)
		// Round up so storage precision never pulls the task before the full interval.
		return NormalizeTime(next.Add(time.Millisecond - time.Nanosecond)), true, nil
	case TypeCron:
		if t.CronExpr == nil {
			return time.Time{}, false, fmt.Errorf("%w: cron_expr missing on stored task", ErrInvalidTask)
		}
		sched, err := cron.ParseStandard(*t.CronExpr)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("%w: cron_expr: %v", ErrInvalidTask, err)
		}
		return NormalizeTime(sched.Next(dispatchedAt)), true, nil
	case TypeSingle:
		return time.Time{}, false, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: unsupported type %q", ErrInvalidTask, t.Type)
}

// TaskPatch carries the fields of a partial update; nil means "leave as is".
type TaskPatch struct {
	Name            *string
	Operation       *string
	Type            *string
	IntervalSeconds *int
	CronExpr        *string
	NextExecution   *time.Time
	Destination     *string
	Payload         *string
}

// Apply merges the patch into t. The merged record is not validated here.
func (p TaskPatch) Apply(t *Task) error {
	if p.Name != nil && *p.Name != t.Name {
		return fmt.Errorf("%w: name is immutable", ErrInvalidTask)
	}
	if p.Operation != nil {
		op, err := ParseOperation(*p.Operation)
		if err != nil {
			return err
		}
		t.Operation = op
	}
	if p.Type != nil {
		typ, err := ParseType(*p.Type)
		if err != nil {
			return err
		}
		t.Type = typ
	}
	if p.IntervalSeconds != nil {
		v := *p.IntervalSeconds
		t.IntervalSeconds = &v
	}
	if p.CronExpr != nil {
		v := *p.CronExpr
		t.CronExpr = &v
	}
	if p.NextExecution != nil {
		t.NextExecution = NormalizeTime(*p.NextExecution)
	}
	if p.Destination != nil {
		t.Destination = *p.Destination
	}
	if p.Payload != nil {
		v := *p.Payload
		t.Payload = &v
	}

	t.Normalize()
	return nil
}

// Normalize puts t in its stored form: upper-case verb, UTC millisecond
// timestamps, and no schedule fields that belong to another type.
func (t *Task) Normalize() {
	t.Operation = Operation(strings.ToUpper(string(t.Operation)))
	t.Type = Type(strings.ToLower(string(t.Type)))
	t.NextExecution = NormalizeTime(t.NextExecution)

	switch t.Type {
	case TypeSingle:
		t.IntervalSeconds, t.CronExpr = nil, nil
	case TypeInterval:
		t.CronExpr = nil
	case TypeCron:
		t.IntervalSeconds = nil
	}
}

// NormalizeTime is the precision every store keeps timestamps at.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func validateDestination(dest string) error {
	u, err := url.Parse(dest)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: destination must be an absolute http(s) URL", ErrInvalidTask)
	}
	return nil
}
