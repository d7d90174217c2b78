// Package teller is the transaction management facade the branch counter
// uses. It validates customer transactions, moves float and till balances
// through the liquidity ledger, and posts the GL entries best-effort.
package teller

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
)

// TransactionStatus tracks the lifecycle of a counter transaction.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "completed"
	StatusReversed  TransactionStatus = "reversed"
	StatusDeleted   TransactionStatus = "deleted"
)

// Transaction is one customer-facing event recorded at the counter. Amount
// and Fee are immutable history only through the liquidity ledger and GL;
// the row itself is updated in place on edit, with Version counting edits.
type Transaction struct {
	ID               int64
	Reference        string
	Module           liquidity.Module
	Type             liquidity.TxKind
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	BranchID         int64
	BranchCode       string
	Provider         string
	FloatAccountID   int64
	TillAccountID    int64
	PaymentAccountID *int64
	CustomerName     string
	CustomerPhone    string
	Description      string
	Status           TransactionStatus
	Version          int
	GLStatus         string
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ReversedAt       *time.Time
}

var (
	// ErrNotFound indicates no transaction for the given id or reference.
	ErrNotFound = errors.New("teller: transaction not found")
	// ErrAlreadyReversed guards double reversal.
	ErrAlreadyReversed = errors.New("teller: transaction already reversed")
	// ErrAlreadyDeleted guards operations on deleted transactions.
	ErrAlreadyDeleted = errors.New("teller: transaction already deleted")
	// ErrNotEditable indicates the transaction is not in an editable state.
	ErrNotEditable = errors.New("teller: transaction not editable")
	// ErrValidation marks rejected input.
	ErrValidation = errors.New("teller: invalid input")
)
