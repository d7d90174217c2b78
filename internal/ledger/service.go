package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
	"github.com/tellerdesk/tellerdesk/internal/shared"
)

// Store is the persistence surface of the posting service, implemented by
// *Repository and the in-memory fake in tests.
type Store interface {
	ProvisionStore
	ResolveStore
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransactionBySource(ctx context.Context, sourceID uuid.UUID, module, txType string) (GLTransaction, error)
	GetTransactionWithEntries(ctx context.Context, sourceID uuid.UUID, module, txType string) (GLTransaction, error)
	GetAccount(ctx context.Context, id int64) (GLAccount, error)
	ListAccounts(ctx context.Context, branchID int64, p shared.Pagination) ([]GLAccount, error)
	ListTransactions(ctx context.Context, module string, since time.Time, p shared.Pagination) ([]GLTransaction, error)
}

// AuditPort records audit events.
type AuditPort interface {
	Record(ctx context.Context, entry shared.AuditLog) error
}

// MetricsPort counts posting outcomes.
type MetricsPort interface {
	ObservePosting(module, status string)
}

// PostStatus reports the outcome of a posting attempt.
type PostStatus string

const (
	// StatusPosted means a new GL transaction was committed.
	StatusPosted PostStatus = "posted"
	// StatusAlreadyPosted means the idempotency key matched an earlier
	// transaction; nothing changed.
	StatusAlreadyPosted PostStatus = "already_posted"
	// StatusSkipped means mappings or source data were unavailable and the
	// posting was deliberately not made. The business transaction proceeds.
	StatusSkipped PostStatus = "skipped"
)

// PostResult is the outcome handed back to callers.
type PostResult struct {
	Status        PostStatus
	TransactionID int64
	Reason        string
}

// Service orchestrates the posting pipeline: canonicalize, resolve accounts,
// build balanced entries, and commit header, lines and balance moves in one
// transaction.
type Service struct {
	store    Store
	resolver *Resolver
	audit    AuditPort
	metrics  MetricsPort
	log      *slog.Logger
	now      func() time.Time
}

// NewService constructs Service. metrics may be nil.
func NewService(store Store, resolver *Resolver, audit AuditPort, metrics MetricsPort, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, resolver: resolver, audit: audit, metrics: metrics, log: log, now: time.Now}
}

// PostingRequest describes one business transaction to post.
type PostingRequest struct {
	Module             liquidity.Module
	TransactionType    string
	SourceID           string
	Amount             float64
	Fee                float64
	BranchID           int64
	BranchCode         string
	Provider           string
	FloatAccountID     *int64
	PaymentAccountCode string
	CashTillDelta      float64
	Description        string
	UserID             string
	Date               time.Time
}

// Post records the GL transaction for a business event. Missing mappings
// produce a Skipped result rather than an error so cash handling is never
// blocked by chart configuration.
func (s *Service) Post(ctx context.Context, in PostingRequest) (PostResult, error) {
	kind, err := liquidity.ParseKind(in.Module, in.TransactionType)
	if err != nil {
		return PostResult{}, err
	}
	sourceID := NormalizeSourceID(string(in.Module), in.SourceID)
	txType := string(kind)

	if existing, err := s.store.GetTransactionBySource(ctx, sourceID, string(in.Module), txType); err == nil {
		return s.finish(in.Module, PostResult{Status: StatusAlreadyPosted, TransactionID: existing.ID}), nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return PostResult{}, err
	}

	resolved, err := s.resolver.Resolve(ctx, ResolveInput{
		Module:         in.Module,
		RawType:        txType,
		BranchID:       in.BranchID,
		BranchCode:     in.BranchCode,
		Provider:       in.Provider,
		FloatAccountID: in.FloatAccountID,
	})
	if err != nil {
		return PostResult{}, err
	}

	entryInput := EntryInput{
		Module:      in.Module,
		Kind:        kind,
		Amount:      in.Amount,
		Fee:         in.Fee,
		Description: in.Description,
	}
	if kind == liquidity.KindSettlement {
		ref, err := s.paymentAccount(ctx, in)
		if err != nil {
			return PostResult{}, err
		}
		if ref == nil {
			return s.finish(in.Module, PostResult{Status: StatusSkipped, Reason: "payment account not found"}), nil
		}
		entryInput.PaymentAccount = ref
	}

	entries, err := BuildEntries(entryInput, resolved)
	if errors.Is(err, ErrMappingUnavailable) {
		s.log.Warn("gl posting skipped, mappings unavailable",
			slog.String("module", string(in.Module)),
			slog.String("type", txType),
			slog.Int64("branch_id", in.BranchID))
		return s.finish(in.Module, PostResult{Status: StatusSkipped, Reason: "account mapping unavailable"}), nil
	}
	if err != nil {
		return PostResult{}, err
	}

	tillLines, err := s.tillPair(ctx, in, resolved)
	if err != nil {
		return PostResult{}, err
	}
	entries = append(entries, tillLines...)

	txn := GLTransaction{
		Date:                  s.date(in.Date),
		SourceModule:          string(in.Module),
		SourceTransactionID:   sourceID,
		SourceTransactionType: txType,
		Description:           in.Description,
		Status:                TransactionStatusPosted,
		CreatedBy:             in.UserID,
	}
	result, err := s.commit(ctx, txn, entries)
	if err != nil {
		return PostResult{}, err
	}
	if result.Status == StatusPosted {
		s.recordAudit(ctx, in.UserID, "gl_posting", result.TransactionID, in, txType)
	}
	return s.finish(in.Module, result), nil
}

// ReverseRequest identifies the original posting to reverse.
type ReverseRequest struct {
	Module          liquidity.Module
	TransactionType string
	SourceID        string
	Description     string
	UserID          string
	Date            time.Time
}

// Reverse posts a mirror transaction with debits and credits swapped from
// the original's persisted lines. A missing original produces Skipped.
func (s *Service) Reverse(ctx context.Context, in ReverseRequest) (PostResult, error) {
	kind, err := liquidity.ParseKind(in.Module, StripReversal(in.TransactionType))
	if err != nil {
		return PostResult{}, err
	}
	sourceID := NormalizeSourceID(string(in.Module), in.SourceID)
	origType := string(kind)
	reversalType := ReversalPrefix + origType

	if existing, err := s.store.GetTransactionBySource(ctx, sourceID, string(in.Module), reversalType); err == nil {
		return s.finish(in.Module, PostResult{Status: StatusAlreadyPosted, TransactionID: existing.ID}), nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return PostResult{}, err
	}

	original, err := s.store.GetTransactionWithEntries(ctx, sourceID, string(in.Module), origType)
	if errors.Is(err, ErrTransactionNotFound) {
		s.log.Warn("gl reversal skipped, original not posted",
			slog.String("module", string(in.Module)),
			slog.String("type", origType),
			slog.String("source_id", in.SourceID))
		return s.finish(in.Module, PostResult{Status: StatusSkipped, Reason: "original transaction not posted"}), nil
	}
	if err != nil {
		return PostResult{}, err
	}

	description := in.Description
	if description == "" {
		description = "Reversal of " + original.Description
	}
	txn := GLTransaction{
		Date:                  s.date(in.Date),
		SourceModule:          string(in.Module),
		SourceTransactionID:   sourceID,
		SourceTransactionType: reversalType,
		Description:           description,
		Status:                TransactionStatusPosted,
		CreatedBy:             in.UserID,
	}
	result, err := s.commit(ctx, txn, BuildReversalEntries(original.Entries))
	if err != nil {
		return PostResult{}, err
	}
	if result.Status == StatusPosted {
		s.recordAudit(ctx, in.UserID, "gl_reversal", result.TransactionID, PostingRequest{
			Module: in.Module, SourceID: in.SourceID, Description: description,
		}, reversalType)
	}
	return s.finish(in.Module, result), nil
}

// AdjustRequest carries the before and after values of an edited
// transaction. Reference distinguishes successive edits of the same source.
type AdjustRequest struct {
	Module          liquidity.Module
	TransactionType string
	SourceID        string
	Reference       string
	OldAmount       float64
	OldFee          float64
	NewAmount       float64
	NewFee          float64
	BranchID        int64
	BranchCode      string
	Provider        string
	FloatAccountID  *int64
	Description     string
	UserID          string
	Date            time.Time
}

// Adjust posts only the net per-account difference between the old and new
// values, so an edit never double-counts the original posting.
func (s *Service) Adjust(ctx context.Context, in AdjustRequest) (PostResult, error) {
	kind, err := liquidity.ParseKind(in.Module, in.TransactionType)
	if err != nil {
		return PostResult{}, err
	}
	txType := string(kind)
	adjustType := AdjustmentPrefix + txType
	sourceID := NormalizeSourceID(string(in.Module), in.SourceID+":"+in.Reference)

	if existing, err := s.store.GetTransactionBySource(ctx, sourceID, string(in.Module), adjustType); err == nil {
		return s.finish(in.Module, PostResult{Status: StatusAlreadyPosted, TransactionID: existing.ID}), nil
	} else if !errors.Is(err, ErrTransactionNotFound) {
		return PostResult{}, err
	}

	resolved, err := s.resolver.Resolve(ctx, ResolveInput{
		Module:         in.Module,
		RawType:        txType,
		BranchID:       in.BranchID,
		BranchCode:     in.BranchCode,
		Provider:       in.Provider,
		FloatAccountID: in.FloatAccountID,
	})
	if err != nil {
		return PostResult{}, err
	}

	oldIn := EntryInput{Module: in.Module, Kind: kind, Amount: in.OldAmount, Fee: in.OldFee, Description: in.Description}
	newIn := EntryInput{Module: in.Module, Kind: kind, Amount: in.NewAmount, Fee: in.NewFee, Description: in.Description}
	entries, err := BuildAdjustmentEntries(oldIn, newIn, resolved)
	if errors.Is(err, ErrMappingUnavailable) {
		return s.finish(in.Module, PostResult{Status: StatusSkipped, Reason: "account mapping unavailable"}), nil
	}
	if err != nil {
		return PostResult{}, err
	}
	if len(entries) == 0 {
		return s.finish(in.Module, PostResult{Status: StatusSkipped, Reason: "no net change"}), nil
	}

	txn := GLTransaction{
		Date:                  s.date(in.Date),
		SourceModule:          string(in.Module),
		SourceTransactionID:   sourceID,
		SourceTransactionType: adjustType,
		Description:           in.Description,
		Status:                TransactionStatusPosted,
		CreatedBy:             in.UserID,
	}
	result, err := s.commit(ctx, txn, entries)
	if err != nil {
		return PostResult{}, err
	}
	if result.Status == StatusPosted {
		s.recordAudit(ctx, in.UserID, "gl_adjustment", result.TransactionID, PostingRequest{
			Module: in.Module, SourceID: in.SourceID, Amount: in.NewAmount, Fee: in.NewFee,
			BranchID: in.BranchID, Description: in.Description,
		}, adjustType)
	}
	return s.finish(in.Module, result), nil
}

// GetTransaction loads a posted transaction with lines by source key.
func (s *Service) GetTransaction(ctx context.Context, module liquidity.Module, rawType, sourceID string) (GLTransaction, error) {
	kind, err := liquidity.ParseKind(module, StripReversal(rawType))
	if err != nil {
		return GLTransaction{}, err
	}
	txType := string(kind)
	switch {
	case strings.HasPrefix(rawType, ReversalPrefix):
		txType = ReversalPrefix + txType
	case strings.HasPrefix(rawType, AdjustmentPrefix):
		txType = AdjustmentPrefix + txType
	}
	return s.store.GetTransactionWithEntries(ctx, NormalizeSourceID(string(module), sourceID), string(module), txType)
}

// ListTransactions returns recent postings.
func (s *Service) ListTransactions(ctx context.Context, module string, since time.Time, p shared.Pagination) ([]GLTransaction, error) {
	return s.store.ListTransactions(ctx, module, since, p)
}

// ListAccounts returns the chart of accounts for a branch.
func (s *Service) ListAccounts(ctx context.Context, branchID int64, p shared.Pagination) ([]GLAccount, error) {
	return s.store.ListAccounts(ctx, branchID, p)
}

// commit writes header, lines and balance moves atomically. A unique
// violation on the header means another worker posted the same source
// concurrently; the winner's transaction is reported as AlreadyPosted.
func (s *Service) commit(ctx context.Context, txn GLTransaction, entries []JournalEntry) (PostResult, error) {
	if err := VerifyBalanced(entries); err != nil {
		return PostResult{}, err
	}
	var result PostResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertTransaction(ctx, txn)
		if err != nil {
			return err
		}
		if err := tx.InsertEntries(ctx, inserted.ID, entries); err != nil {
			return err
		}
		for _, entry := range entries {
			if err := tx.IncrementBalance(ctx, entry.AccountID, entry.Debit-entry.Credit); err != nil {
				return err
			}
		}
		result = PostResult{Status: StatusPosted, TransactionID: inserted.ID}
		return nil
	})
	if errors.Is(err, ErrSourceConflict) {
		existing, lookupErr := s.store.GetTransactionBySource(ctx, txn.SourceTransactionID, txn.SourceModule, txn.SourceTransactionType)
		if lookupErr != nil {
			return PostResult{}, err
		}
		return PostResult{Status: StatusAlreadyPosted, TransactionID: existing.ID}, nil
	}
	if err != nil {
		return PostResult{}, err
	}
	return result, nil
}

// tillPair emits the balanced pair moving branch till cash against the
// module counterpart. The pair is skipped when no till account or
// counterpart resolves; the float-side entries stand on their own.
func (s *Service) tillPair(ctx context.Context, in PostingRequest, resolved ResolvedAccounts) ([]JournalEntry, error) {
	delta := round2(in.CashTillDelta)
	if delta == 0 {
		return nil, nil
	}
	till, err := s.resolver.ResolveTill(ctx, in.BranchID, in.BranchCode)
	if err != nil {
		return nil, err
	}
	counterpart := resolved.Liability
	if counterpart == nil {
		counterpart = resolved.Main
	}
	if till == nil || counterpart == nil {
		return nil, nil
	}
	description := "Till cash movement: " + in.Description
	if delta > 0 {
		return pair(*till, *counterpart, delta, description), nil
	}
	return pair(*counterpart, *till, -delta, description), nil
}

func (s *Service) paymentAccount(ctx context.Context, in PostingRequest) (*AccountRef, error) {
	if in.PaymentAccountCode == "" {
		return nil, nil
	}
	account, err := s.store.GetAccountByCode(ctx, in.BranchID, in.PaymentAccountCode)
	if errors.Is(err, ErrAccountNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &AccountRef{ID: account.ID, Code: account.Code}, nil
}

func (s *Service) date(d time.Time) time.Time {
	if d.IsZero() {
		return s.now()
	}
	return d
}

func (s *Service) finish(module liquidity.Module, result PostResult) PostResult {
	if s.metrics != nil {
		s.metrics.ObservePosting(string(module), string(result.Status))
	}
	return result
}

func (s *Service) recordAudit(ctx context.Context, userID, action string, transactionID int64, in PostingRequest, txType string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		UserID:      userID,
		ActionType:  action,
		EntityType:  "gl_transaction",
		EntityID:    fmt.Sprintf("%d", transactionID),
		Description: in.Description,
		Details: map[string]any{
			"module":    string(in.Module),
			"type":      txType,
			"source_id": in.SourceID,
			"amount":    in.Amount,
			"fee":       in.Fee,
		},
		Severity: shared.SeverityLow,
		Status:   shared.AuditStatusSuccess,
		BranchID: in.BranchID,
	})
}
