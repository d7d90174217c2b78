package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeBranchNotification delivers operational notices to branch staff.
	TaskTypeBranchNotification = "notify:branch"
)

// BranchNotificationPayload describes a notification for branch staff.
type BranchNotificationPayload struct {
	BranchID int64  `json:"branch_id"`
	Subject  string `json:"subject"`
	Message  string `json:"message"`
}

// NewBranchNotificationTask constructs an Asynq task.
func NewBranchNotificationTask(payload BranchNotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeBranchNotification, data), nil
}

// BranchNotificationJob processes branch notification tasks.
type BranchNotificationJob struct {
	logger *slog.Logger
}

// NewBranchNotificationJob constructs the job.
func NewBranchNotificationJob(logger *slog.Logger) *BranchNotificationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BranchNotificationJob{logger: logger}
}

// Handle delivers the notification. Delivery is currently the structured
// log stream the branch dashboards tail; SMS delivery hangs off the same
// task type once a gateway account exists.
func (j *BranchNotificationJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload BranchNotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	j.logger.Info("branch notification",
		slog.Int64("branch_id", payload.BranchID),
		slog.String("subject", payload.Subject),
		slog.String("message", payload.Message))
	return nil
}

// Notifier enqueues branch notifications, decoupling the counter from
// delivery. Satisfies the teller notifier port.
type Notifier struct {
	client *Client
	logger *slog.Logger
}

// NewNotifier constructs Notifier.
func NewNotifier(client *Client, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, logger: logger}
}

// NotifyBranch queues a notification for branch staff.
func (n *Notifier) NotifyBranch(ctx context.Context, branchID int64, subject, message string) error {
	if n == nil || n.client == nil {
		return nil
	}
	_, err := n.client.EnqueueBranchNotification(ctx, BranchNotificationPayload{
		BranchID: branchID,
		Subject:  subject,
		Message:  message,
	})
	return err
}
