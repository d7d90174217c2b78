package teller

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tellerdesk/tellerdesk/internal/shared"
)

// ErrDuplicateReference indicates the client reference was already recorded.
var ErrDuplicateReference = errors.New("teller: duplicate transaction reference")

// Repository persists counter transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const transactionColumns = `id, reference, module, tx_type, amount::text, fee::text, branch_id, branch_code, provider,
float_account_id, till_account_id, payment_account_id, customer_name, customer_phone, description,
status, version, gl_status, created_by, created_at, updated_at, reversed_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var amount, fee string
	err := row.Scan(&t.ID, &t.Reference, &t.Module, &t.Type, &amount, &fee, &t.BranchID, &t.BranchCode, &t.Provider,
		&t.FloatAccountID, &t.TillAccountID, &t.PaymentAccountID, &t.CustomerName, &t.CustomerPhone, &t.Description,
		&t.Status, &t.Version, &t.GLStatus, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.ReversedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return Transaction{}, err
	}
	if t.Fee, err = decimal.NewFromString(fee); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Insert stores a new transaction. References are unique per module.
func (r *Repository) Insert(ctx context.Context, t Transaction) (Transaction, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO source_transactions
(reference, module, tx_type, amount, fee, branch_id, branch_code, provider, float_account_id, till_account_id,
 payment_account_id, customer_name, customer_phone, description, status, version, gl_status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1,$16,$17)
RETURNING id, version, created_at, updated_at`,
		t.Reference, t.Module, t.Type, t.Amount.String(), t.Fee.String(), t.BranchID, t.BranchCode, t.Provider,
		t.FloatAccountID, t.TillAccountID, t.PaymentAccountID, t.CustomerName, t.CustomerPhone, t.Description,
		t.Status, t.GLStatus, t.CreatedBy)
	if err := row.Scan(&t.ID, &t.Version, &t.CreatedAt, &t.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Transaction{}, ErrDuplicateReference
		}
		return Transaction{}, err
	}
	return t, nil
}

// GetByID loads one transaction.
func (r *Repository) GetByID(ctx context.Context, id int64) (Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM source_transactions WHERE id=$1`, id)
	return scanTransaction(row)
}

// GetByReference loads a transaction by module and client reference.
func (r *Repository) GetByReference(ctx context.Context, module, reference string) (Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM source_transactions WHERE module=$1 AND reference=$2`, module, reference)
	return scanTransaction(row)
}

// UpdateAmounts rewrites amount, fee and description and bumps the version.
func (r *Repository) UpdateAmounts(ctx context.Context, id int64, amount, fee decimal.Decimal, description string) (int, error) {
	var version int
	row := r.pool.QueryRow(ctx, `UPDATE source_transactions
SET amount=$2, fee=$3, description=$4, version=version+1, updated_at=NOW()
WHERE id=$1 RETURNING version`, id, amount.String(), fee.String(), description)
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return version, nil
}

// SetStatus transitions the lifecycle status.
func (r *Repository) SetStatus(ctx context.Context, id int64, status TransactionStatus, reversedAt *time.Time) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE source_transactions SET status=$2, reversed_at=$3, updated_at=NOW() WHERE id=$1`,
		id, status, reversedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetGLStatus records the outcome of the GL posting attempt.
func (r *Repository) SetGLStatus(ctx context.Context, id int64, glStatus string) error {
	_, err := r.pool.Exec(ctx, `UPDATE source_transactions SET gl_status=$2, updated_at=NOW() WHERE id=$1`, id, glStatus)
	return err
}

// ListByBranch returns a page of transactions, newest first, optionally
// filtered by module and status.
func (r *Repository) ListByBranch(ctx context.Context, branchID int64, module, status string, p shared.Pagination) ([]Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM source_transactions
WHERE branch_id=$1 AND ($2 = '' OR module = $2) AND ($3 = '' OR status = $3)
ORDER BY id DESC LIMIT $4 OFFSET $5`, branchID, module, status, p.Limit(), p.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}
