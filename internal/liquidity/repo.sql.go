package liquidity

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists liquidity accounts and their ledger lines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetAccountForUpdate(ctx context.Context, id int64) (LiquidityAccount, error)
	UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error
	InsertLedgerLine(ctx context.Context, line LedgerLine) (LedgerLine, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("liquidity repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const accountColumns = `id, branch_id, kind, provider, account_number, current_balance::text, min_threshold::text, max_threshold::text, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (LiquidityAccount, error) {
	var a LiquidityAccount
	var balance, minT, maxT string
	err := row.Scan(&a.ID, &a.BranchID, &a.Kind, &a.Provider, &a.AccountNumber, &balance, &minT, &maxT, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return LiquidityAccount{}, err
	}
	if a.CurrentBalance, err = decimal.NewFromString(balance); err != nil {
		return LiquidityAccount{}, err
	}
	if a.MinThreshold, err = decimal.NewFromString(minT); err != nil {
		return LiquidityAccount{}, err
	}
	if a.MaxThreshold, err = decimal.NewFromString(maxT); err != nil {
		return LiquidityAccount{}, err
	}
	return a, nil
}

// GetAccount fetches one liquidity account.
func (r *Repository) GetAccount(ctx context.Context, id int64) (LiquidityAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM liquidity_accounts WHERE id=$1`, id)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return LiquidityAccount{}, ErrAccountNotFound
	}
	return account, err
}

// FindAccount locates the active account for branch, kind and provider.
func (r *Repository) FindAccount(ctx context.Context, branchID int64, kind AccountKind, provider string) (LiquidityAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM liquidity_accounts
WHERE branch_id=$1 AND kind=$2 AND provider=$3 AND is_active`, branchID, kind, provider)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return LiquidityAccount{}, ErrAccountNotFound
	}
	return account, err
}

// ListByBranch returns all accounts for a branch.
func (r *Repository) ListByBranch(ctx context.Context, branchID int64) ([]LiquidityAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM liquidity_accounts WHERE branch_id=$1 ORDER BY kind, provider`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []LiquidityAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// BelowMinThreshold returns active accounts whose balance dropped under the
// configured floor, for the background threshold scan.
func (r *Repository) BelowMinThreshold(ctx context.Context) ([]LiquidityAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM liquidity_accounts
WHERE is_active AND min_threshold > 0 AND current_balance < min_threshold ORDER BY branch_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []LiquidityAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// CreateAccount inserts a new account, one per branch+kind+provider.
func (r *Repository) CreateAccount(ctx context.Context, account LiquidityAccount) (LiquidityAccount, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO liquidity_accounts (branch_id, kind, provider, account_number, current_balance, min_threshold, max_threshold, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE) RETURNING id, created_at, updated_at`,
		account.BranchID, account.Kind, account.Provider, account.AccountNumber,
		account.CurrentBalance.String(), account.MinThreshold.String(), account.MaxThreshold.String())
	if err := row.Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return LiquidityAccount{}, ErrAccountExists
		}
		return LiquidityAccount{}, err
	}
	account.IsActive = true
	return account, nil
}

// DeactivateAccount soft-disables an account.
func (r *Repository) DeactivateAccount(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE liquidity_accounts SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes an account and its ledger lines.
func (r *Repository) DeleteAccount(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM liquidity_ledger WHERE account_id=$1`, id); err != nil {
		return err
	}
	cmd, err := r.pool.Exec(ctx, `DELETE FROM liquidity_accounts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, id int64) (LiquidityAccount, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM liquidity_accounts WHERE id=$1 FOR UPDATE`, id)
	account, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return LiquidityAccount{}, ErrAccountNotFound
	}
	return account, err
}

func (r *txRepository) UpdateBalance(ctx context.Context, id int64, balance decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE liquidity_accounts SET current_balance=$2, updated_at=NOW() WHERE id=$1`, id, balance.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) InsertLedgerLine(ctx context.Context, line LedgerLine) (LedgerLine, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO liquidity_ledger (account_id, line_type, amount, balance_before, balance_after, reference, description, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		line.AccountID, line.Type, line.Amount.String(), line.BalanceBefore.String(), line.BalanceAfter.String(),
		line.Reference, line.Description, line.CreatedBy)
	if err := row.Scan(&line.ID, &line.CreatedAt); err != nil {
		return LedgerLine{}, err
	}
	return line, nil
}
