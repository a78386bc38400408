// Package notify gives operators a concrete channel for occurrences that
// exhaust their retries: it informs, it never disables or mutates the job.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/callcron/scheduler/internal/domain"
	"github.com/callcron/scheduler/internal/email"
)

// Notifier is told about an occurrence that reached terminal FAILED after
// exhausting retries.
type Notifier interface {
	NotifyFailure(ctx context.Context, job *domain.Job, exec *domain.Execution) error
}

// OperatorAlert sends one email per terminal-FAILED occurrence to a fixed
// operator address. It never returns an error that should stop the
// scheduler loop; callers log failures and continue.
type OperatorAlert struct {
	sender   email.Sender
	toEmail  string
	logger   *slog.Logger
}

func NewOperatorAlert(sender email.Sender, toEmail string, logger *slog.Logger) *OperatorAlert {
	return &OperatorAlert{sender: sender, toEmail: toEmail, logger: logger.With("component", "notify")}
}

func (n *OperatorAlert) NotifyFailure(ctx context.Context, job *domain.Job, exec *domain.Execution) error {
	if n.toEmail == "" {
		return nil
	}
	subject := fmt.Sprintf("job %s failed after %d attempts", job.ID, exec.Attempt)
	body := fmt.Sprintf(
		"Job %s (%s) reached a terminal FAILED state.\nOccurrence scheduled for: %s\nAttempt: %d\nError: %s",
		job.ID, job.TargetURL, exec.ScheduledTime.Format("2006-01-02T15:04:05Z"), exec.Attempt, errMessage(exec),
	)
	if err := n.sender.Send(ctx, n.toEmail, subject, body); err != nil {
		return fmt.Errorf("notify failure: %w", err)
	}
	return nil
}

func errMessage(exec *domain.Execution) string {
	if exec.ErrorMessage == nil {
		return "(none recorded)"
	}
	return *exec.ErrorMessage
}
