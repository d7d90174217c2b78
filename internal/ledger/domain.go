package ledger

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// MappingType names the ledger role an account plays for a transaction type.
type MappingType string

const (
	MappingMain      MappingType = "main"
	MappingLiability MappingType = "liability"
	MappingRevenue   MappingType = "revenue"
	MappingFee       MappingType = "fee"
	MappingExpense   MappingType = "expense"
	MappingAsset     MappingType = "asset"
)

// TransactionStatus enumerates GL transaction lifecycle values. Headers are
// immutable once posted; reversals create a second header.
type TransactionStatus string

const (
	TransactionStatusPosted TransactionStatus = "posted"
)

// GLAccount models a chart of accounts node. Balance is mutated only by
// journal posting, never edited directly.
type GLAccount struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	BranchID  int64
	Balance   float64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GLMapping binds a ledger role for a transaction type and branch to a
// concrete account. A NULL float account id is its own key: the generic
// fallback mapping for the branch.
type GLMapping struct {
	ID              int64
	TransactionType string
	GLAccountID     int64
	MappingType     MappingType
	BranchID        int64
	FloatAccountID  *int64
	IsActive        bool
	CreatedAt       time.Time
}

// GLTransaction captures posting metadata. The idempotency key is
// (SourceTransactionID, SourceModule, SourceTransactionType).
type GLTransaction struct {
	ID                    int64
	Date                  time.Time
	SourceModule          string
	SourceTransactionID   uuid.UUID
	SourceTransactionType string
	Description           string
	Status                TransactionStatus
	CreatedBy             string
	CreatedAt             time.Time
	Entries               []JournalEntry
}

// JournalEntry stores a debit or credit amount for an account. Exactly one
// of Debit/Credit is non-zero after zero-line filtering.
type JournalEntry struct {
	ID            int64
	TransactionID int64
	AccountID     int64
	AccountCode   string
	Debit         float64
	Credit        float64
	Description   string
}

// AccountRef is the (id, code) pair needed to emit a journal line.
type AccountRef struct {
	ID   int64
	Code string
}

// ResolvedAccounts holds the accounts resolved per ledger role for one
// posting. Nil fields mean the role has no mapping for this branch.
type ResolvedAccounts struct {
	Main      *AccountRef
	Liability *AccountRef
	Revenue   *AccountRef
	Fee       *AccountRef
	Expense   *AccountRef
	Asset     *AccountRef
}

// Empty reports whether nothing resolved at all.
func (a ResolvedAccounts) Empty() bool {
	return a.Main == nil && a.Liability == nil && a.Revenue == nil &&
		a.Fee == nil && a.Expense == nil && a.Asset == nil
}

// Get returns the account for a role, nil when unmapped.
func (a ResolvedAccounts) Get(mt MappingType) *AccountRef {
	switch mt {
	case MappingMain:
		return a.Main
	case MappingLiability:
		return a.Liability
	case MappingRevenue:
		return a.Revenue
	case MappingFee:
		return a.Fee
	case MappingExpense:
		return a.Expense
	case MappingAsset:
		return a.Asset
	}
	return nil
}

// Set assigns the account for a role.
func (a *ResolvedAccounts) Set(mt MappingType, ref *AccountRef) {
	switch mt {
	case MappingMain:
		a.Main = ref
	case MappingLiability:
		a.Liability = ref
	case MappingRevenue:
		a.Revenue = ref
	case MappingFee:
		a.Fee = ref
	case MappingExpense:
		a.Expense = ref
	case MappingAsset:
		a.Asset = ref
	}
}

// balanceTolerance absorbs float rounding when checking debit == credit.
const balanceTolerance = 0.01

var (
	// ErrUnbalanced indicates debit != credit; an entry template bug.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrMappingUnavailable indicates required accounts could not be
	// resolved. Callers skip the posting rather than fail the transaction.
	ErrMappingUnavailable = errors.New("ledger: account mapping unavailable")
	// ErrTransactionNotFound indicates no GL transaction for the source key.
	ErrTransactionNotFound = errors.New("ledger: transaction not found")
	// ErrSourceConflict indicates the idempotency key already exists.
	ErrSourceConflict = errors.New("ledger: source posting conflict")
	// ErrAccountExists indicates an account code collision on create.
	ErrAccountExists = errors.New("ledger: account already exists")
	// ErrMappingExists indicates a mapping tuple collision on create.
	ErrMappingExists = errors.New("ledger: mapping already exists")
	// ErrAccountNotFound indicates a missing GL account.
	ErrAccountNotFound = errors.New("ledger: account not found")
)

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

// NormalizeSourceID coerces a raw source transaction id into uuid form.
// Legacy callers submit non-uuid ids; those get a deterministic surrogate so
// repeated postings for the same source still collide on the idempotency key.
func NormalizeSourceID(module, raw string) uuid.UUID {
	if id, err := uuid.Parse(raw); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.Nil, []byte(module+":"+raw))
}
