package liquidity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tellerdesk/tellerdesk/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, id int64) (LiquidityAccount, error)
	FindAccount(ctx context.Context, branchID int64, kind AccountKind, provider string) (LiquidityAccount, error)
	ListByBranch(ctx context.Context, branchID int64) ([]LiquidityAccount, error)
	BelowMinThreshold(ctx context.Context) ([]LiquidityAccount, error)
	CreateAccount(ctx context.Context, account LiquidityAccount) (LiquidityAccount, error)
	DeactivateAccount(ctx context.Context, id int64) error
	DeleteAccount(ctx context.Context, id int64) error
}

// AuditPort records account lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MappingCleaner removes GL mappings scoped to a deleted float account.
type MappingCleaner interface {
	DeleteMappingsForFloatAccount(ctx context.Context, floatAccountID int64) error
}

// Service manages liquidity account lifecycle and balance movements.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	mappings MappingCleaner
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, mappings MappingCleaner) *Service {
	return &Service{repo: repo, audit: audit, mappings: mappings, now: time.Now}
}

// CreateAccountInput describes a new liquidity account.
type CreateAccountInput struct {
	BranchID       int64
	Kind           AccountKind
	Provider       string
	AccountNumber  string
	OpeningBalance decimal.Decimal
	MinThreshold   decimal.Decimal
	MaxThreshold   decimal.Decimal
	ActorID        string
}

// CreateAccount provisions one account per branch+kind(+provider).
func (s *Service) CreateAccount(ctx context.Context, input CreateAccountInput) (LiquidityAccount, error) {
	if input.BranchID == 0 {
		return LiquidityAccount{}, errors.New("liquidity: branch required")
	}
	if input.Kind == "" {
		return LiquidityAccount{}, errors.New("liquidity: account kind required")
	}
	if input.OpeningBalance.IsNegative() {
		return LiquidityAccount{}, errors.New("liquidity: opening balance must not be negative")
	}
	account, err := s.repo.CreateAccount(ctx, LiquidityAccount{
		BranchID:       input.BranchID,
		Kind:           input.Kind,
		Provider:       input.Provider,
		AccountNumber:  input.AccountNumber,
		CurrentBalance: input.OpeningBalance,
		MinThreshold:   input.MinThreshold,
		MaxThreshold:   input.MaxThreshold,
	})
	if err != nil {
		return LiquidityAccount{}, err
	}
	s.record(ctx, input.ActorID, "liquidity.account.create", account, "")
	return account, nil
}

// Deactivate soft-disables an account; its history is kept.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID string) error {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeactivateAccount(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "liquidity.account.deactivate", account, "")
	return nil
}

// Delete removes an account and cascades GL mapping cleanup.
func (s *Service) Delete(ctx context.Context, id int64, actorID string) error {
	account, err := s.repo.GetAccount(ctx, id)
	if err != nil {
		return err
	}
	if s.mappings != nil {
		if err := s.mappings.DeleteMappingsForFloatAccount(ctx, id); err != nil {
			return fmt.Errorf("liquidity: cascade mapping cleanup: %w", err)
		}
	}
	if err := s.repo.DeleteAccount(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "liquidity.account.delete", account, "mappings removed")
	return nil
}

// ApplyDeltaInput describes one balance movement.
type ApplyDeltaInput struct {
	AccountID   int64
	Delta       decimal.Decimal
	Type        LedgerLineType
	Reference   string
	Description string
	ActorID     string
}

// ApplyDelta moves an account balance under a row lock, recording a ledger
// line with before/after snapshots. Negative deltas that would overdraw the
// account are rejected before any mutation.
func (s *Service) ApplyDelta(ctx context.Context, input ApplyDeltaInput) (LedgerLine, error) {
	if input.AccountID == 0 {
		return LedgerLine{}, errors.New("liquidity: account id required")
	}
	if input.Delta.IsZero() {
		return LedgerLine{}, errors.New("liquidity: delta must be non zero")
	}
	var line LedgerLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccountForUpdate(ctx, input.AccountID)
		if err != nil {
			return err
		}
		if !account.IsActive {
			return ErrAccountInactive
		}
		after := account.CurrentBalance.Add(input.Delta)
		if after.IsNegative() {
			return ErrInsufficientBalance
		}
		if err := tx.UpdateBalance(ctx, account.ID, after); err != nil {
			return err
		}
		line, err = tx.InsertLedgerLine(ctx, LedgerLine{
			AccountID:     account.ID,
			Type:          input.Type,
			Amount:        input.Delta,
			BalanceBefore: account.CurrentBalance,
			BalanceAfter:  after,
			Reference:     input.Reference,
			Description:   input.Description,
			CreatedBy:     input.ActorID,
		})
		return err
	})
	return line, err
}

// AccountDelta is one movement inside a multi-account batch.
type AccountDelta struct {
	AccountID   int64
	Delta       decimal.Decimal
	Type        LedgerLineType
	Description string
}

// ApplyDeltas moves several account balances in one transaction. Accounts
// are locked in ascending id order and every movement is validated before
// any balance changes, so a batch either lands fully or not at all.
func (s *Service) ApplyDeltas(ctx context.Context, reference, actorID string, deltas []AccountDelta) ([]LedgerLine, error) {
	if len(deltas) == 0 {
		return nil, nil
	}
	ordered := make([]AccountDelta, 0, len(deltas))
	for _, d := range deltas {
		if d.AccountID == 0 {
			return nil, errors.New("liquidity: account id required")
		}
		if d.Delta.IsZero() {
			continue
		}
		ordered = append(ordered, d)
	}
	if len(ordered) == 0 {
		return nil, nil
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].AccountID < ordered[j].AccountID })

	var lines []LedgerLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		// Running balances per account so repeated deltas against the same
		// account stack instead of overwriting each other.
		opening := make(map[int64]decimal.Decimal, len(ordered))
		running := make(map[int64]decimal.Decimal, len(ordered))
		for _, d := range ordered {
			balance, locked := running[d.AccountID]
			if !locked {
				account, err := tx.GetAccountForUpdate(ctx, d.AccountID)
				if err != nil {
					return err
				}
				if !account.IsActive {
					return ErrAccountInactive
				}
				opening[d.AccountID] = account.CurrentBalance
				balance = account.CurrentBalance
			}
			balance = balance.Add(d.Delta)
			if balance.IsNegative() {
				return fmt.Errorf("%w: account %d", ErrInsufficientBalance, d.AccountID)
			}
			running[d.AccountID] = balance
		}
		for _, d := range ordered {
			before := opening[d.AccountID]
			after := before.Add(d.Delta)
			if err := tx.UpdateBalance(ctx, d.AccountID, after); err != nil {
				return err
			}
			line, err := tx.InsertLedgerLine(ctx, LedgerLine{
				AccountID:     d.AccountID,
				Type:          d.Type,
				Amount:        d.Delta,
				BalanceBefore: before,
				BalanceAfter:  after,
				Reference:     reference,
				Description:   d.Description,
				CreatedBy:     actorID,
			})
			if err != nil {
				return err
			}
			opening[d.AccountID] = after
			lines = append(lines, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// GetAccount fetches one account by id.
func (s *Service) GetAccount(ctx context.Context, id int64) (LiquidityAccount, error) {
	return s.repo.GetAccount(ctx, id)
}

// FindAccount locates the active account for branch, kind and provider.
func (s *Service) FindAccount(ctx context.Context, branchID int64, kind AccountKind, provider string) (LiquidityAccount, error) {
	return s.repo.FindAccount(ctx, branchID, kind, provider)
}

// ListByBranch returns all accounts for a branch.
func (s *Service) ListByBranch(ctx context.Context, branchID int64) ([]LiquidityAccount, error) {
	return s.repo.ListByBranch(ctx, branchID)
}

// BelowMinThreshold lists active accounts under their configured floor.
func (s *Service) BelowMinThreshold(ctx context.Context) ([]LiquidityAccount, error) {
	return s.repo.BelowMinThreshold(ctx)
}

func (s *Service) record(ctx context.Context, actorID, action string, account LiquidityAccount, note string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		UserID:      actorID,
		ActionType:  action,
		EntityType:  "liquidity_account",
		EntityID:    fmt.Sprintf("%d", account.ID),
		BranchID:    account.BranchID,
		Severity:    shared.SeverityLow,
		Status:      shared.AuditStatusSuccess,
		Description: fmt.Sprintf("%s %s account", account.Kind, account.Provider),
		Details: map[string]any{
			"kind":     account.Kind,
			"provider": account.Provider,
			"note":     note,
		},
		At: s.now(),
	})
}
