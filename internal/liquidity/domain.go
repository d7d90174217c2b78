package liquidity

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Module enumerates the branch service lines that move float.
type Module string

const (
	ModuleMomo          Module = "momo"
	ModuleAgencyBanking Module = "agency_banking"
	ModuleEZwich        Module = "e_zwich"
	ModulePower         Module = "power"
	ModuleJumia         Module = "jumia"
)

// TxKind is the canonical transaction kind after collapsing the raw
// customer-facing type strings each service submits.
type TxKind string

const (
	KindCashIn        TxKind = "cash-in"
	KindCashOut       TxKind = "cash-out"
	KindDeposit       TxKind = "deposit"
	KindWithdrawal    TxKind = "withdrawal"
	KindInterbank     TxKind = "interbank"
	KindCardIssuance  TxKind = "card_issuance"
	KindSale          TxKind = "sale"
	KindPodCollection TxKind = "pod_collection"
	KindSettlement    TxKind = "settlement"
)

// AccountKind enumerates liquidity account categories per branch.
type AccountKind string

const (
	AccountCashInTill    AccountKind = "cash-in-till"
	AccountMomo          AccountKind = "momo"
	AccountAgencyBanking AccountKind = "agency-banking"
	AccountEZwich        AccountKind = "e-zwich"
	AccountPower         AccountKind = "power"
	AccountJumia         AccountKind = "jumia"
)

// LedgerLineType enumerates movements recorded against a liquidity account.
type LedgerLineType string

const (
	LineDeposit    LedgerLineType = "deposit"
	LineWithdrawal LedgerLineType = "withdrawal"
	LineReversal   LedgerLineType = "reversal"
	LineAdjustment LedgerLineType = "adjustment"
)

// LiquidityAccount is a branch-scoped internal balance: a service float or
// the physical cash till.
type LiquidityAccount struct {
	ID             int64
	BranchID       int64
	Kind           AccountKind
	Provider       string
	AccountNumber  string
	CurrentBalance decimal.Decimal
	MinThreshold   decimal.Decimal
	MaxThreshold   decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LedgerLine records one balance movement with before/after snapshots.
type LedgerLine struct {
	ID            int64
	AccountID     int64
	Type          LedgerLineType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Reference     string
	Description   string
	CreatedBy     string
	CreatedAt     time.Time
}

var (
	// ErrUnknownModule indicates an unrecognised service module.
	ErrUnknownModule = errors.New("liquidity: unknown service module")
	// ErrUnknownTransactionType indicates a type string no module accepts.
	ErrUnknownTransactionType = errors.New("liquidity: unknown transaction type")
	// ErrAccountNotFound indicates a missing liquidity account.
	ErrAccountNotFound = errors.New("liquidity: account not found")
	// ErrAccountExists indicates the branch already has this account.
	ErrAccountExists = errors.New("liquidity: account already exists for branch")
	// ErrAccountInactive indicates the account was deactivated.
	ErrAccountInactive = errors.New("liquidity: account is inactive")
	// ErrInsufficientBalance indicates the movement would overdraw the account.
	ErrInsufficientBalance = errors.New("liquidity: insufficient balance")
)

// ParseKind collapses a raw transaction type into the canonical kind for the
// module, accepting the legacy aliases still submitted by older clients
// (interbank_transfer, pod_payment).
func ParseKind(module Module, raw string) (TxKind, error) {
	switch module {
	case ModuleMomo:
		switch raw {
		case "cash-in", "deposit":
			return KindCashIn, nil
		case "cash-out", "withdrawal":
			return KindCashOut, nil
		}
	case ModuleAgencyBanking:
		switch raw {
		case "deposit":
			return KindDeposit, nil
		case "withdrawal":
			return KindWithdrawal, nil
		case "interbank", "interbank_transfer":
			return KindInterbank, nil
		}
	case ModuleEZwich:
		switch raw {
		case "withdrawal":
			return KindWithdrawal, nil
		case "card_issuance":
			return KindCardIssuance, nil
		}
	case ModulePower:
		switch raw {
		case "sale":
			return KindSale, nil
		}
	case ModuleJumia:
		switch raw {
		case "pod_collection", "pod_payment":
			return KindPodCollection, nil
		case "settlement":
			return KindSettlement, nil
		}
	default:
		return "", ErrUnknownModule
	}
	return "", ErrUnknownTransactionType
}

// FloatAccountKind returns the liquidity account kind holding the float for
// a service module.
func FloatAccountKind(module Module) (AccountKind, error) {
	switch module {
	case ModuleMomo:
		return AccountMomo, nil
	case ModuleAgencyBanking:
		return AccountAgencyBanking, nil
	case ModuleEZwich:
		return AccountEZwich, nil
	case ModulePower:
		return AccountPower, nil
	case ModuleJumia:
		return AccountJumia, nil
	}
	return "", ErrUnknownModule
}

// ModuleOf is the inverse of FloatAccountKind. The cash till belongs to the
// branch, not a module, and reports false.
func ModuleOf(kind AccountKind) (Module, bool) {
	switch kind {
	case AccountMomo:
		return ModuleMomo, true
	case AccountAgencyBanking:
		return ModuleAgencyBanking, true
	case AccountEZwich:
		return ModuleEZwich, true
	case AccountPower:
		return ModulePower, true
	case AccountJumia:
		return ModuleJumia, true
	}
	return "", false
}
