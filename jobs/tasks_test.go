package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
)

func TestBranchNotificationTaskRoundTrip(t *testing.T) {
	task, err := NewBranchNotificationTask(BranchNotificationPayload{
		BranchID: 10,
		Subject:  "Float below threshold",
		Message:  "momo MTN balance GHS 120.00 is below the GHS 500.00 floor",
	})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeBranchNotification, task.Type())

	var payload BranchNotificationPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, int64(10), payload.BranchID)
}

func TestBranchNotificationJobSkipsBadPayload(t *testing.T) {
	job := NewBranchNotificationJob(nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeBranchNotification, []byte("{broken")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	task, err := NewBranchNotificationTask(BranchNotificationPayload{BranchID: 10, Subject: "s", Message: "m"})
	require.NoError(t, err)
	assert.NoError(t, job.Handle(context.Background(), task))
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	assert.NoError(t, n.NotifyBranch(context.Background(), 10, "s", "m"))
}

type stubLister struct {
	accounts []liquidity.LiquidityAccount
}

func (s *stubLister) BelowMinThreshold(context.Context) ([]liquidity.LiquidityAccount, error) {
	return s.accounts, nil
}

func TestFloatThresholdJobNoAccounts(t *testing.T) {
	job := NewFloatThresholdJob(&stubLister{}, nil, nil)
	assert.NoError(t, job.Handle(context.Background(), NewFloatThresholdTask()))
}
