package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tellerdesk/tellerdesk/internal/shared"
)

// Repository persists GL accounts, mappings, transactions and journal lines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations that must share one transaction so a
// posting commits atomically or not at all.
type TxRepository interface {
	GetTransactionBySource(ctx context.Context, sourceID uuid.UUID, module, txType string) (GLTransaction, error)
	InsertTransaction(ctx context.Context, txn GLTransaction) (GLTransaction, error)
	InsertEntries(ctx context.Context, transactionID int64, entries []JournalEntry) error
	IncrementBalance(ctx context.Context, accountID int64, delta float64) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
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

// ActiveMappings returns the active mappings for a transaction type and
// branch, scoped to one float account. NULL float ids are their own scope,
// hence IS NOT DISTINCT FROM rather than equality.
func (r *Repository) ActiveMappings(ctx context.Context, txType string, branchID int64, floatAccountID *int64) ([]GLMapping, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_type, gl_account_id, mapping_type, branch_id, float_account_id, is_active, created_at
FROM gl_mappings WHERE transaction_type=$1 AND branch_id=$2 AND float_account_id IS NOT DISTINCT FROM $3 AND is_active`,
		txType, branchID, floatAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mappings []GLMapping
	for rows.Next() {
		var m GLMapping
		if err := rows.Scan(&m.ID, &m.TransactionType, &m.GLAccountID, &m.MappingType, &m.BranchID, &m.FloatAccountID, &m.IsActive, &m.CreatedAt); err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

const accountColumns = `id, code, name, type, branch_id, balance, is_active, created_at, updated_at`

func scanGLAccount(row pgx.Row) (GLAccount, error) {
	var a GLAccount
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.BranchID, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// AccountsByID loads the accounts for a mapping result keyed by id.
func (r *Repository) AccountsByID(ctx context.Context, ids []int64) (map[int64]GLAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make(map[int64]GLAccount, len(ids))
	for rows.Next() {
		account, err := scanGLAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts[account.ID] = account
	}
	return accounts, rows.Err()
}

// GetAccount fetches one GL account.
func (r *Repository) GetAccount(ctx context.Context, id int64) (GLAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE id=$1`, id)
	account, err := scanGLAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return GLAccount{}, ErrAccountNotFound
	}
	return account, err
}

// GetAccountByCode fetches a GL account by code within a branch.
func (r *Repository) GetAccountByCode(ctx context.Context, branchID int64, code string) (GLAccount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE branch_id=$1 AND code=$2`, branchID, code)
	account, err := scanGLAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return GLAccount{}, ErrAccountNotFound
	}
	return account, err
}

// ListAccounts returns a page of GL accounts for a branch.
func (r *Repository) ListAccounts(ctx context.Context, branchID int64, p shared.Pagination) ([]GLAccount, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM gl_accounts WHERE branch_id=$1 ORDER BY code LIMIT $2 OFFSET $3`,
		branchID, p.Limit(), p.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []GLAccount
	for rows.Next() {
		account, err := scanGLAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// CreateAccount inserts a chart of accounts node. Codes are unique per
// branch; a duplicate maps to ErrAccountExists so concurrent provisioners
// fall back to a re-read.
func (r *Repository) CreateAccount(ctx context.Context, account GLAccount) (GLAccount, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO gl_accounts (code, name, type, branch_id, balance, is_active)
VALUES ($1,$2,$3,$4,0,TRUE) RETURNING id, balance, created_at, updated_at`,
		account.Code, account.Name, account.Type, account.BranchID)
	if err := row.Scan(&account.ID, &account.Balance, &account.CreatedAt, &account.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return GLAccount{}, ErrAccountExists
		}
		return GLAccount{}, err
	}
	account.IsActive = true
	return account, nil
}

// CreateMapping inserts a mapping row; duplicates of the mapping tuple map
// to ErrMappingExists.
func (r *Repository) CreateMapping(ctx context.Context, m GLMapping) (GLMapping, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO gl_mappings (transaction_type, gl_account_id, mapping_type, branch_id, float_account_id, is_active)
VALUES ($1,$2,$3,$4,$5,TRUE) RETURNING id, created_at`,
		m.TransactionType, m.GLAccountID, m.MappingType, m.BranchID, m.FloatAccountID)
	if err := row.Scan(&m.ID, &m.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return GLMapping{}, ErrMappingExists
		}
		return GLMapping{}, err
	}
	m.IsActive = true
	return m, nil
}

// DeleteMappingsForFloatAccount removes every mapping scoped to a float
// account, the cascade step when the float account itself is deleted.
func (r *Repository) DeleteMappingsForFloatAccount(ctx context.Context, floatAccountID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM gl_mappings WHERE float_account_id=$1`, floatAccountID)
	return err
}

// GetTransactionBySource finds a posted transaction by its idempotency key,
// outside any transaction. Used for the cheap pre-check before posting.
func (r *Repository) GetTransactionBySource(ctx context.Context, sourceID uuid.UUID, module, txType string) (GLTransaction, error) {
	row := r.pool.QueryRow(ctx, transactionBySourceSQL, sourceID, module, txType)
	return scanTransaction(row)
}

// GetTransactionWithEntries loads a transaction header and its journal
// lines, ordered as posted.
func (r *Repository) GetTransactionWithEntries(ctx context.Context, sourceID uuid.UUID, module, txType string) (GLTransaction, error) {
	txn, err := r.GetTransactionBySource(ctx, sourceID, module, txType)
	if err != nil {
		return GLTransaction{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT e.id, e.transaction_id, e.account_id, a.code, e.debit, e.credit, e.description
FROM gl_journal_entries e JOIN gl_accounts a ON a.id = e.account_id
WHERE e.transaction_id=$1 ORDER BY e.id`, txn.ID)
	if err != nil {
		return GLTransaction{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var entry JournalEntry
		if err := rows.Scan(&entry.ID, &entry.TransactionID, &entry.AccountID, &entry.AccountCode, &entry.Debit, &entry.Credit, &entry.Description); err != nil {
			return GLTransaction{}, err
		}
		txn.Entries = append(txn.Entries, entry)
	}
	return txn, rows.Err()
}

// ListTransactions returns recent transactions for a branch-agnostic audit
// view, filtered by module when set.
func (r *Repository) ListTransactions(ctx context.Context, module string, since time.Time, p shared.Pagination) ([]GLTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_date, source_module, source_transaction_id, source_transaction_type, description, status, created_by, created_at
FROM gl_transactions WHERE ($1 = '' OR source_module = $1) AND transaction_date >= $2
ORDER BY id DESC LIMIT $3 OFFSET $4`, module, since, p.Limit(), p.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txns []GLTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

const transactionBySourceSQL = `SELECT id, transaction_date, source_module, source_transaction_id, source_transaction_type, description, status, created_by, created_at
FROM gl_transactions WHERE source_transaction_id=$1 AND source_module=$2 AND source_transaction_type=$3`

func scanTransaction(row pgx.Row) (GLTransaction, error) {
	var t GLTransaction
	err := row.Scan(&t.ID, &t.Date, &t.SourceModule, &t.SourceTransactionID, &t.SourceTransactionType, &t.Description, &t.Status, &t.CreatedBy, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return GLTransaction{}, ErrTransactionNotFound
	}
	return t, err
}

func (r *txRepository) GetTransactionBySource(ctx context.Context, sourceID uuid.UUID, module, txType string) (GLTransaction, error) {
	row := r.tx.QueryRow(ctx, transactionBySourceSQL, sourceID, module, txType)
	return scanTransaction(row)
}

func (r *txRepository) InsertTransaction(ctx context.Context, txn GLTransaction) (GLTransaction, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO gl_transactions (transaction_date, source_module, source_transaction_id, source_transaction_type, description, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		txn.Date, txn.SourceModule, txn.SourceTransactionID, txn.SourceTransactionType, txn.Description, txn.Status, txn.CreatedBy)
	if err := row.Scan(&txn.ID, &txn.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return GLTransaction{}, ErrSourceConflict
		}
		return GLTransaction{}, err
	}
	return txn, nil
}

func (r *txRepository) InsertEntries(ctx context.Context, transactionID int64, entries []JournalEntry) error {
	for _, entry := range entries {
		_, err := r.tx.Exec(ctx, `INSERT INTO gl_journal_entries (transaction_id, account_id, debit, credit, description)
VALUES ($1,$2,$3,$4,$5)`, transactionID, entry.AccountID, entry.Debit, entry.Credit, entry.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

// IncrementBalance applies a relative balance move so concurrent postings to
// the same account never clobber each other. Delta is debit minus credit, the
// same signed sum the journal lines carry for every account type.
func (r *txRepository) IncrementBalance(ctx context.Context, accountID int64, delta float64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE gl_accounts
SET balance = balance + $2, updated_at=NOW()
WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
