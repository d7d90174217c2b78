package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
	"github.com/tellerdesk/tellerdesk/internal/shared"
)

// TaskTypeFloatThreshold triggers the float threshold scan.
const TaskTypeFloatThreshold = "liquidity:threshold_scan"

// NewFloatThresholdTask constructs an Asynq task for the threshold scan.
func NewFloatThresholdTask() *asynq.Task {
	return asynq.NewTask(TaskTypeFloatThreshold, nil, asynq.Queue(QueueDefault))
}

// thresholdLister is the slice of the liquidity service the scan needs.
type thresholdLister interface {
	BelowMinThreshold(ctx context.Context) ([]liquidity.LiquidityAccount, error)
}

// FloatThresholdJob warns branch staff when a float or till drops under its
// configured floor, so rebalancing happens before customers are turned away.
type FloatThresholdJob struct {
	floats   thresholdLister
	notifier *Notifier
	logger   *slog.Logger
}

// NewFloatThresholdJob constructs the job.
func NewFloatThresholdJob(floats thresholdLister, notifier *Notifier, logger *slog.Logger) *FloatThresholdJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &FloatThresholdJob{floats: floats, notifier: notifier, logger: logger}
}

// Handle fans notifications out per account with bounded concurrency.
func (j *FloatThresholdJob) Handle(ctx context.Context, t *asynq.Task) error {
	accounts, err := j.floats.BelowMinThreshold(ctx)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return nil
	}

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(4)
	for _, account := range accounts {
		group.Go(func() error {
			message := fmt.Sprintf("%s %s balance %s is below the %s floor",
				account.Kind, account.Provider,
				shared.FormatAmount("GHS", account.CurrentBalance.InexactFloat64()),
				shared.FormatAmount("GHS", account.MinThreshold.InexactFloat64()))
			if err := j.notifier.NotifyBranch(ctx, account.BranchID, "Float below threshold", message); err != nil {
				j.logger.Warn("threshold notification failed",
					slog.Int64("account_id", account.ID), slog.Any("error", err))
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	j.logger.Info("float threshold scan finished", slog.Int("accounts_below_floor", len(accounts)))
	return nil
}
