package teller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tellerdesk/tellerdesk/internal/ledger"
	"github.com/tellerdesk/tellerdesk/internal/liquidity"
	"github.com/tellerdesk/tellerdesk/internal/shared"
)

// RepositoryPort abstracts transaction persistence for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, t Transaction) (Transaction, error)
	GetByID(ctx context.Context, id int64) (Transaction, error)
	GetByReference(ctx context.Context, module, reference string) (Transaction, error)
	UpdateAmounts(ctx context.Context, id int64, amount, fee decimal.Decimal, description string) (int, error)
	SetStatus(ctx context.Context, id int64, status TransactionStatus, reversedAt *time.Time) error
	SetGLStatus(ctx context.Context, id int64, glStatus string) error
	ListByBranch(ctx context.Context, branchID int64, module, status string, p shared.Pagination) ([]Transaction, error)
}

// FloatPort is the liquidity surface the counter needs.
type FloatPort interface {
	FindAccount(ctx context.Context, branchID int64, kind liquidity.AccountKind, provider string) (liquidity.LiquidityAccount, error)
	GetAccount(ctx context.Context, id int64) (liquidity.LiquidityAccount, error)
	ApplyDeltas(ctx context.Context, reference, actorID string, deltas []liquidity.AccountDelta) ([]liquidity.LedgerLine, error)
}

// GLPort posts, reverses and adjusts GL transactions.
type GLPort interface {
	Post(ctx context.Context, in ledger.PostingRequest) (ledger.PostResult, error)
	Reverse(ctx context.Context, in ledger.ReverseRequest) (ledger.PostResult, error)
	Adjust(ctx context.Context, in ledger.AdjustRequest) (ledger.PostResult, error)
}

// NotifierPort delivers operational notifications to branch staff.
type NotifierPort interface {
	NotifyBranch(ctx context.Context, branchID int64, subject, message string) error
}

// IdempotencyPort deduplicates client submissions by reference.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditPort records audit events.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// NamerPort resolves user ids to display names for notifications.
type NamerPort interface {
	DisplayName(ctx context.Context, userIDOrEmail string) string
}

// Service is the transaction management facade: it applies the cash effect
// through the liquidity ledger, persists the counter record, and posts the
// GL entries. A failed cash effect fails the whole operation; a failed GL
// posting never does.
type Service struct {
	repo     RepositoryPort
	floats   FloatPort
	gl       GLPort
	notifier NotifierPort
	idem     IdempotencyPort
	audit    AuditPort
	namer    NamerPort
	log      *slog.Logger
	now      func() time.Time
}

// NewService builds Service. notifier, idem, audit and namer may be nil.
func NewService(repo RepositoryPort, floats FloatPort, gl GLPort, notifier NotifierPort, idem IdempotencyPort, audit AuditPort, namer NamerPort, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, floats: floats, gl: gl, notifier: notifier, idem: idem, audit: audit, namer: namer, log: log, now: time.Now}
}

// CreateInput describes one counter transaction.
type CreateInput struct {
	Module           liquidity.Module
	Type             string
	Reference        string
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	BranchID         int64
	BranchCode       string
	Provider         string
	PaymentAccountID *int64
	CustomerName     string
	CustomerPhone    string
	Description      string
	ActorID          string
}

// Result bundles the stored transaction with the liquidity lines written
// and the GL posting outcome.
type Result struct {
	Transaction Transaction
	Lines       []liquidity.LedgerLine
	GL          ledger.PostResult
}

// Create records a customer transaction: balances move first, the counter
// row second, GL posting last. A failed counter row write backs the balance
// moves out again. Resubmitting the same reference returns the original
// transaction unchanged.
func (s *Service) Create(ctx context.Context, in CreateInput) (Result, error) {
	kind, err := liquidity.ParseKind(in.Module, in.Type)
	if err != nil {
		return Result{}, err
	}
	if err := s.validate(in); err != nil {
		return Result{}, err
	}

	idemKey := shared.IdempotencyKey("teller", string(in.Module), in.Reference)
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, idemKey, string(in.Module)); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				existing, lookupErr := s.repo.GetByReference(ctx, string(in.Module), in.Reference)
				if lookupErr != nil {
					return Result{}, lookupErr
				}
				return Result{Transaction: existing, GL: ledger.PostResult{Status: ledger.StatusAlreadyPosted}}, nil
			}
			return Result{}, err
		}
	}

	result, err := s.create(ctx, in, kind)
	if err != nil && s.idem != nil {
		// Release the key so a corrected resubmission is not locked out.
		_ = s.idem.Delete(ctx, idemKey)
	}
	return result, err
}

func (s *Service) create(ctx context.Context, in CreateInput, kind liquidity.TxKind) (Result, error) {
	effect, err := liquidity.ComputeEffect(in.Module, kind, in.Amount, in.Fee)
	if err != nil {
		return Result{}, err
	}

	floatKind, err := liquidity.FloatAccountKind(in.Module)
	if err != nil {
		return Result{}, err
	}
	floatAccount, err := s.floats.FindAccount(ctx, in.BranchID, floatKind, in.Provider)
	if err != nil {
		return Result{}, fmt.Errorf("%w: no %s float for branch %d", ErrValidation, in.Module, in.BranchID)
	}
	till, err := s.floats.FindAccount(ctx, in.BranchID, liquidity.AccountCashInTill, "")
	if err != nil {
		return Result{}, fmt.Errorf("%w: no cash till for branch %d", ErrValidation, in.BranchID)
	}

	var payment *liquidity.LiquidityAccount
	var paymentGLCode string
	if kind == liquidity.KindSettlement {
		if in.PaymentAccountID == nil {
			return Result{}, fmt.Errorf("%w: settlement requires a payment account", ErrValidation)
		}
		account, err := s.floats.GetAccount(ctx, *in.PaymentAccountID)
		if err != nil {
			return Result{}, err
		}
		payment = &account
		if module, ok := liquidity.ModuleOf(account.Kind); ok {
			paymentGLCode = ledger.AccountCode(module, in.BranchCode, account.Provider, ledger.MappingMain)
		}
	}

	deltas := s.effectDeltas(effect, floatAccount.ID, till.ID, in.Description, forwardLineType)
	if payment != nil {
		deltas = append(deltas, liquidity.AccountDelta{
			AccountID:   payment.ID,
			Delta:       in.Amount.Neg(),
			Type:        liquidity.LineWithdrawal,
			Description: "Settlement payment: " + in.Description,
		})
	}
	lines, err := s.floats.ApplyDeltas(ctx, in.Reference, in.ActorID, deltas)
	if err != nil {
		return Result{}, err
	}

	txn := Transaction{
		Reference:        in.Reference,
		Module:           in.Module,
		Type:             kind,
		Amount:           in.Amount,
		Fee:              in.Fee,
		BranchID:         in.BranchID,
		BranchCode:       in.BranchCode,
		Provider:         in.Provider,
		FloatAccountID:   floatAccount.ID,
		TillAccountID:    till.ID,
		PaymentAccountID: in.PaymentAccountID,
		CustomerName:     in.CustomerName,
		CustomerPhone:    in.CustomerPhone,
		Description:      in.Description,
		Status:           StatusCompleted,
		GLStatus:         "pending",
		CreatedBy:        in.ActorID,
	}
	txn, err = s.repo.Insert(ctx, txn)
	if err != nil {
		s.revertDeltas(ctx, in.Reference, in.ActorID, deltas)
		return Result{}, err
	}

	glResult := s.postGL(ctx, txn, effect, paymentGLCode)
	s.recordAudit(ctx, in.ActorID, "teller.transaction.create", txn, shared.SeverityLow, nil)
	return Result{Transaction: txn, Lines: lines, GL: glResult}, nil
}

// EditInput carries the new values for an edited transaction.
type EditInput struct {
	ID          int64
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	Description string
	ActorID     string
}

// Edit rewrites amount and fee, moving only the difference through the
// liquidity ledger and posting a GL adjustment for the net change.
func (s *Service) Edit(ctx context.Context, in EditInput) (Result, error) {
	txn, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return Result{}, err
	}
	if err := s.editable(txn); err != nil {
		return Result{}, err
	}
	if !in.Amount.IsPositive() || in.Fee.IsNegative() {
		return Result{}, fmt.Errorf("%w: amount must be positive and fee non negative", ErrValidation)
	}

	oldEffect, err := liquidity.ComputeEffect(txn.Module, txn.Type, txn.Amount, txn.Fee)
	if err != nil {
		return Result{}, err
	}
	newEffect, err := liquidity.ComputeEffect(txn.Module, txn.Type, in.Amount, in.Fee)
	if err != nil {
		return Result{}, err
	}
	diff := newEffect.Sub(oldEffect)

	description := in.Description
	if description == "" {
		description = txn.Description
	}
	deltas := s.effectDeltas(diff, txn.FloatAccountID, txn.TillAccountID, "Edit: "+description, func(decimal.Decimal) liquidity.LedgerLineType {
		return liquidity.LineAdjustment
	})
	if txn.Type == liquidity.KindSettlement && txn.PaymentAccountID != nil {
		deltas = append(deltas, liquidity.AccountDelta{
			AccountID:   *txn.PaymentAccountID,
			Delta:       txn.Amount.Sub(in.Amount),
			Type:        liquidity.LineAdjustment,
			Description: "Edit settlement payment: " + description,
		})
	}
	lines, err := s.floats.ApplyDeltas(ctx, txn.Reference, in.ActorID, deltas)
	if err != nil {
		return Result{}, err
	}

	version, err := s.repo.UpdateAmounts(ctx, txn.ID, in.Amount, in.Fee, description)
	if err != nil {
		s.revertDeltas(ctx, txn.Reference, in.ActorID, deltas)
		return Result{}, err
	}

	glResult, err := s.gl.Adjust(ctx, ledger.AdjustRequest{
		Module:          txn.Module,
		TransactionType: string(txn.Type),
		SourceID:        txn.Reference,
		Reference:       strconv.Itoa(version),
		OldAmount:       txn.Amount.InexactFloat64(),
		OldFee:          txn.Fee.InexactFloat64(),
		NewAmount:       in.Amount.InexactFloat64(),
		NewFee:          in.Fee.InexactFloat64(),
		BranchID:        txn.BranchID,
		BranchCode:      txn.BranchCode,
		Provider:        txn.Provider,
		FloatAccountID:  &txn.FloatAccountID,
		Description:     "Adjustment: " + description,
		UserID:          in.ActorID,
	})
	if err != nil {
		s.log.Error("gl adjustment failed", slog.Int64("transaction_id", txn.ID), slog.Any("error", err))
		glResult = ledger.PostResult{Status: ledger.StatusSkipped, Reason: err.Error()}
	}
	_ = s.repo.SetGLStatus(ctx, txn.ID, string(glResult.Status))

	before := txn
	txn.Amount, txn.Fee, txn.Description, txn.Version = in.Amount, in.Fee, description, version
	s.recordAudit(ctx, in.ActorID, "teller.transaction.edit", txn, shared.SeverityMedium, map[string]any{
		"old_amount": before.Amount.String(),
		"old_fee":    before.Fee.String(),
	})
	return Result{Transaction: txn, Lines: lines, GL: glResult}, nil
}

// Reverse backs out a completed transaction: balances return to their prior
// state and a mirror GL transaction is posted.
func (s *Service) Reverse(ctx context.Context, id int64, reason, actorID string) (Result, error) {
	txn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	switch txn.Status {
	case StatusReversed:
		return Result{}, ErrAlreadyReversed
	case StatusDeleted:
		return Result{}, ErrAlreadyDeleted
	}

	lines, err := s.backOut(ctx, txn, "Reversal: "+reason, actorID)
	if err != nil {
		return Result{}, err
	}
	reversedAt := s.now()
	if err := s.repo.SetStatus(ctx, txn.ID, StatusReversed, &reversedAt); err != nil {
		return Result{}, err
	}
	txn.Status = StatusReversed
	txn.ReversedAt = &reversedAt

	glResult := s.reverseGL(ctx, txn, reason, actorID)
	s.notifyReversal(ctx, txn, reason, actorID)
	s.recordAudit(ctx, actorID, "teller.transaction.reverse", txn, shared.SeverityHigh, map[string]any{"reason": reason})
	return Result{Transaction: txn, Lines: lines, GL: glResult}, nil
}

// Delete removes a transaction from the books. A completed transaction has
// its effects backed out first; one already reversed is only marked.
func (s *Service) Delete(ctx context.Context, id int64, actorID string) (Result, error) {
	txn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if txn.Status == StatusDeleted {
		return Result{}, ErrAlreadyDeleted
	}

	var lines []liquidity.LedgerLine
	var glResult ledger.PostResult
	if txn.Status == StatusCompleted {
		lines, err = s.backOut(ctx, txn, "Deletion of "+txn.Reference, actorID)
		if err != nil {
			return Result{}, err
		}
		glResult = s.reverseGL(ctx, txn, "deleted", actorID)
	}
	if err := s.repo.SetStatus(ctx, txn.ID, StatusDeleted, txn.ReversedAt); err != nil {
		return Result{}, err
	}
	txn.Status = StatusDeleted
	s.recordAudit(ctx, actorID, "teller.transaction.delete", txn, shared.SeverityHigh, nil)
	return Result{Transaction: txn, Lines: lines, GL: glResult}, nil
}

// Get loads one transaction.
func (s *Service) Get(ctx context.Context, id int64) (Transaction, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of branch transactions.
func (s *Service) List(ctx context.Context, branchID int64, module, status string, p shared.Pagination) ([]Transaction, error) {
	return s.repo.ListByBranch(ctx, branchID, module, status, p)
}

func (s *Service) validate(in CreateInput) error {
	switch {
	case in.Reference == "":
		return fmt.Errorf("%w: reference required", ErrValidation)
	case in.BranchID == 0 || in.BranchCode == "":
		return fmt.Errorf("%w: branch required", ErrValidation)
	case !in.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	case in.Fee.IsNegative():
		return fmt.Errorf("%w: fee must not be negative", ErrValidation)
	}
	return nil
}

func (s *Service) editable(txn Transaction) error {
	switch txn.Status {
	case StatusReversed:
		return ErrAlreadyReversed
	case StatusDeleted:
		return ErrAlreadyDeleted
	case StatusCompleted:
		return nil
	}
	return ErrNotEditable
}

// backOut applies the negated effect of a transaction, including the
// settlement payment leg.
func (s *Service) backOut(ctx context.Context, txn Transaction, description, actorID string) ([]liquidity.LedgerLine, error) {
	effect, err := liquidity.ComputeEffect(txn.Module, txn.Type, txn.Amount, txn.Fee)
	if err != nil {
		return nil, err
	}
	deltas := s.effectDeltas(effect.Negate(), txn.FloatAccountID, txn.TillAccountID, description, func(decimal.Decimal) liquidity.LedgerLineType {
		return liquidity.LineReversal
	})
	if txn.Type == liquidity.KindSettlement && txn.PaymentAccountID != nil {
		deltas = append(deltas, liquidity.AccountDelta{
			AccountID:   *txn.PaymentAccountID,
			Delta:       txn.Amount,
			Type:        liquidity.LineReversal,
			Description: description,
		})
	}
	return s.floats.ApplyDeltas(ctx, txn.Reference, actorID, deltas)
}

// revertDeltas backs out balance moves already applied when the counter row
// write fails afterwards, so balances never drift from the recorded
// transactions.
func (s *Service) revertDeltas(ctx context.Context, reference, actorID string, applied []liquidity.AccountDelta) {
	reverted := make([]liquidity.AccountDelta, 0, len(applied))
	for _, d := range applied {
		reverted = append(reverted, liquidity.AccountDelta{
			AccountID:   d.AccountID,
			Delta:       d.Delta.Neg(),
			Type:        liquidity.LineReversal,
			Description: "Back out: " + d.Description,
		})
	}
	if _, err := s.floats.ApplyDeltas(ctx, reference, actorID, reverted); err != nil {
		s.log.Error("balance back out failed",
			slog.String("reference", reference), slog.Any("error", err))
	}
}

func forwardLineType(delta decimal.Decimal) liquidity.LedgerLineType {
	if delta.IsPositive() {
		return liquidity.LineDeposit
	}
	return liquidity.LineWithdrawal
}

func (s *Service) effectDeltas(effect liquidity.Effect, floatID, tillID int64, description string, lineType func(decimal.Decimal) liquidity.LedgerLineType) []liquidity.AccountDelta {
	var deltas []liquidity.AccountDelta
	if !effect.Liquidity.IsZero() {
		deltas = append(deltas, liquidity.AccountDelta{
			AccountID:   floatID,
			Delta:       effect.Liquidity,
			Type:        lineType(effect.Liquidity),
			Description: description,
		})
	}
	if !effect.CashTill.IsZero() {
		deltas = append(deltas, liquidity.AccountDelta{
			AccountID:   tillID,
			Delta:       effect.CashTill,
			Type:        lineType(effect.CashTill),
			Description: description,
		})
	}
	return deltas
}

// postGL attempts the forward GL posting. GL failures are logged and
// surfaced as a skipped result, never as a transaction failure.
func (s *Service) postGL(ctx context.Context, txn Transaction, effect liquidity.Effect, paymentGLCode string) ledger.PostResult {
	result, err := s.gl.Post(ctx, ledger.PostingRequest{
		Module:             txn.Module,
		TransactionType:    string(txn.Type),
		SourceID:           txn.Reference,
		Amount:             txn.Amount.InexactFloat64(),
		Fee:                txn.Fee.InexactFloat64(),
		BranchID:           txn.BranchID,
		BranchCode:         txn.BranchCode,
		Provider:           txn.Provider,
		FloatAccountID:     &txn.FloatAccountID,
		PaymentAccountCode: paymentGLCode,
		CashTillDelta:      effect.CashTill.InexactFloat64(),
		Description:        txn.Description,
		UserID:             txn.CreatedBy,
	})
	if err != nil {
		s.log.Error("gl posting failed", slog.Int64("transaction_id", txn.ID), slog.Any("error", err))
		result = ledger.PostResult{Status: ledger.StatusSkipped, Reason: err.Error()}
	}
	_ = s.repo.SetGLStatus(ctx, txn.ID, string(result.Status))
	return result
}

func (s *Service) reverseGL(ctx context.Context, txn Transaction, reason, actorID string) ledger.PostResult {
	result, err := s.gl.Reverse(ctx, ledger.ReverseRequest{
		Module:          txn.Module,
		TransactionType: string(txn.Type),
		SourceID:        txn.Reference,
		Description:     "Reversal (" + reason + "): " + txn.Description,
		UserID:          actorID,
	})
	if err != nil {
		s.log.Error("gl reversal failed", slog.Int64("transaction_id", txn.ID), slog.Any("error", err))
		result = ledger.PostResult{Status: ledger.StatusSkipped, Reason: err.Error()}
	}
	_ = s.repo.SetGLStatus(ctx, txn.ID, "reversal_"+string(result.Status))
	return result
}

func (s *Service) notifyReversal(ctx context.Context, txn Transaction, reason, actorID string) {
	if s.notifier == nil {
		return
	}
	actor := actorID
	if s.namer != nil {
		actor = s.namer.DisplayName(ctx, actorID)
	}
	message := fmt.Sprintf("%s %s of %s (ref %s) was reversed by %s: %s",
		txn.Module, txn.Type, shared.FormatAmount("GHS", txn.Amount.InexactFloat64()), txn.Reference, actor, reason)
	if err := s.notifier.NotifyBranch(ctx, txn.BranchID, "Transaction reversed", message); err != nil {
		s.log.Warn("reversal notification failed", slog.Int64("branch_id", txn.BranchID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID, action string, txn Transaction, severity shared.AuditSeverity, extra map[string]any) {
	if s.audit == nil {
		return
	}
	details := map[string]any{
		"module":    string(txn.Module),
		"type":      string(txn.Type),
		"reference": txn.Reference,
		"amount":    txn.Amount.String(),
		"fee":       txn.Fee.String(),
	}
	for k, v := range extra {
		details[k] = v
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		UserID:      actorID,
		ActionType:  action,
		EntityType:  "source_transaction",
		EntityID:    strconv.FormatInt(txn.ID, 10),
		Description: txn.Description,
		Details:     details,
		Severity:    severity,
		Status:      shared.AuditStatusSuccess,
		BranchID:    txn.BranchID,
	})
}
