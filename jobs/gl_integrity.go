package jobs

import (
	"context"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskTypeGLIntegrity triggers the nightly general ledger integrity scan.
const TaskTypeGLIntegrity = "gl:integrity"

// NewGLIntegrityTask constructs an Asynq task for the integrity scan.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskTypeGLIntegrity, nil, asynq.Queue(QueueDefault))
}

// GLIntegrityJob verifies that every posted transaction balances and that
// account balances agree with the journal lines behind them.
type GLIntegrityJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewGLIntegrityJob constructs the job.
func NewGLIntegrityJob(pool *pgxpool.Pool, logger *slog.Logger) *GLIntegrityJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &GLIntegrityJob{pool: pool, logger: logger}
}

// Handle runs both checks. Findings are logged, never repaired; a human
// decides what an unbalanced ledger means.
func (j *GLIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	unbalanced, err := j.unbalancedTransactions(ctx)
	if err != nil {
		return err
	}
	drifted, err := j.driftedAccounts(ctx)
	if err != nil {
		return err
	}
	j.logger.Info("gl integrity scan finished",
		slog.Int("unbalanced_transactions", unbalanced),
		slog.Int("drifted_accounts", drifted))
	return nil
}

func (j *GLIntegrityJob) unbalancedTransactions(ctx context.Context) (int, error) {
	rows, err := j.pool.Query(ctx, `SELECT e.transaction_id, SUM(e.debit), SUM(e.credit)
FROM gl_journal_entries e GROUP BY e.transaction_id
HAVING ABS(SUM(e.debit) - SUM(e.credit)) > 0.01`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		var id int64
		var debit, credit float64
		if err := rows.Scan(&id, &debit, &credit); err != nil {
			return count, err
		}
		count++
		j.logger.Warn("unbalanced gl transaction",
			slog.Int64("transaction_id", id),
			slog.Float64("debit", debit),
			slog.Float64("credit", credit))
	}
	return count, rows.Err()
}

// driftedAccounts compares stored balances to the signed sum of the journal
// lines per account. Every account carries balance = sum(debit) - sum(credit).
func (j *GLIntegrityJob) driftedAccounts(ctx context.Context) (int, error) {
	rows, err := j.pool.Query(ctx, `SELECT a.id, a.code, a.balance,
COALESCE(SUM(e.debit - e.credit), 0)
FROM gl_accounts a LEFT JOIN gl_journal_entries e ON e.account_id = a.id
GROUP BY a.id, a.code, a.balance`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		var id int64
		var code string
		var stored, derived float64
		if err := rows.Scan(&id, &code, &stored, &derived); err != nil {
			return count, err
		}
		if math.Abs(stored-derived) <= 0.01 {
			continue
		}
		count++
		j.logger.Warn("gl account balance drift",
			slog.Int64("account_id", id),
			slog.String("code", code),
			slog.Float64("stored", stored),
			slog.Float64("derived", derived))
	}
	return count, rows.Err()
}
