package domain

import (
	"time"
)

// ExecutionType controls what happens to a job after repeated HTTP failures.
type ExecutionType string

const (
	AtLeastOnce ExecutionType = "AT_LEAST_ONCE"
	AtMostOnce  ExecutionType = "AT_MOST_ONCE"
)

// Job is the durable, user-defined definition of a recurring HTTP callback.
// Schedule and TargetURL are validated at creation time; a Job that fails
// validation is never persisted and never enters the scheduler's queue.
type Job struct {
	ID            string        `json:"id"`
	Schedule      string        `json:"schedule"`
	TargetURL     string        `json:"targetUrl"`
	ExecutionType ExecutionType `json:"executionType"`
	Active        bool          `json:"active"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}
