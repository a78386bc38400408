package domain

import (
	"time"
)

type ExecutionStatus string

const (
	StatusPending  ExecutionStatus = "PENDING"
	StatusRunning  ExecutionStatus = "RUNNING"
	StatusSuccess  ExecutionStatus = "SUCCESS"
	StatusFailed   ExecutionStatus = "FAILED"
	StatusRetrying ExecutionStatus = "RETRYING"
)

// Terminal reports whether status can never be rewritten: SUCCESS and
// FAILED are monotone once reached.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ErrorKind classifies why an HTTP attempt did not succeed. It is recorded
// data on an Outcome/Execution, not a Go error value.
type ErrorKind string

const (
	ErrorNone              ErrorKind = ""
	ErrorTimeout           ErrorKind = "Timeout"
	ErrorConnectionRefused ErrorKind = "ConnectionRefused"
	ErrorDNS               ErrorKind = "DNS"
	ErrorTLS               ErrorKind = "TLS"
	ErrorBadStatus         ErrorKind = "BadStatus"
	ErrorOther             ErrorKind = "Other"
)

// Execution is one durable row per attempt, audited from PENDING through a
// terminal or RETRYING status. ScheduledTime is always the origin instant of
// the occurrence, not the instant this particular attempt was enqueued.
type Execution struct {
	ID             string
	JobID          string
	ScheduledTime  time.Time
	ActualStartAt  *time.Time
	FinishedAt     *time.Time
	Status         ExecutionStatus
	HTTPStatus     *int
	DurationMS     *int64
	Attempt        int
	ErrorMessage   *string
}

// Drift is actual_start_time - scheduled_time. Defined only once the
// attempt has started; callers must check ActualStartAt != nil first.
func (e *Execution) Drift() time.Duration {
	if e.ActualStartAt == nil {
		return 0
	}
	return e.ActualStartAt.Sub(e.ScheduledTime)
}
