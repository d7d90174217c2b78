package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
)

// ProvisionStore is the persistence surface the provisioner needs.
type ProvisionStore interface {
	GetAccountByCode(ctx context.Context, branchID int64, code string) (GLAccount, error)
	CreateAccount(ctx context.Context, account GLAccount) (GLAccount, error)
	CreateMapping(ctx context.Context, m GLMapping) (GLMapping, error)
	ActiveMappings(ctx context.Context, txType string, branchID int64, floatAccountID *int64) ([]GLMapping, error)
}

// Provisioner creates the GL accounts and mappings a module needs at a
// branch on first use, so branches never require manual chart setup before
// transacting. All operations are idempotent: re-running against an already
// provisioned branch changes nothing.
type Provisioner struct {
	store ProvisionStore
	cache *MappingCache
	log   *slog.Logger
}

// NewProvisioner constructs Provisioner.
func NewProvisioner(store ProvisionStore, cache *MappingCache, log *slog.Logger) *Provisioner {
	if log == nil {
		log = slog.Default()
	}
	return &Provisioner{store: store, cache: cache, log: log}
}

// EnsureMappings guarantees every required ledger role for the module has an
// account and an active mapping under the module's canonical type, scoped to
// the given float account. Missing roles are filled in; existing ones are
// left untouched. Reversal types receive replicas of the same mappings.
func (p *Provisioner) EnsureMappings(ctx context.Context, module liquidity.Module, branchID int64, branchCode, provider string, floatAccountID *int64) error {
	canonical := CanonicalType(module)
	existing, err := p.store.ActiveMappings(ctx, canonical, branchID, floatAccountID)
	if err != nil {
		return err
	}
	present := make(map[MappingType]bool, len(existing))
	for _, m := range existing {
		present[m.MappingType] = true
	}

	created := false
	for _, mt := range RequiredMappingTypes(module) {
		if present[mt] {
			continue
		}
		account, err := p.ensureAccount(ctx, GLAccount{
			Code:     AccountCode(module, branchCode, provider, mt),
			Name:     AccountName(module, branchCode, provider, mt),
			Type:     AccountTypeFor(mt),
			BranchID: branchID,
		})
		if err != nil {
			return err
		}
		if err := p.ensureMapping(ctx, GLMapping{
			TransactionType: canonical,
			GLAccountID:     account.ID,
			MappingType:     mt,
			BranchID:        branchID,
			FloatAccountID:  floatAccountID,
		}); err != nil {
			return err
		}
		created = true
		p.log.Info("provisioned gl mapping",
			slog.String("module", string(module)),
			slog.Int64("branch_id", branchID),
			slog.String("mapping_type", string(mt)),
			slog.String("account_code", account.Code))
	}

	if err := p.replicateReversals(ctx, module, branchID, floatAccountID); err != nil {
		return err
	}
	if created {
		p.cache.Invalidate(ctx, canonical, branchID, floatAccountID)
	}
	return nil
}

// EnsureTillMapping guarantees the branch has a cash-in-till asset account
// and mapping, keyed by the till transaction type rather than a module.
func (p *Provisioner) EnsureTillMapping(ctx context.Context, branchID int64, branchCode string) error {
	existing, err := p.store.ActiveMappings(ctx, TillTransactionType, branchID, nil)
	if err != nil {
		return err
	}
	for _, m := range existing {
		if m.MappingType == MappingMain {
			return nil
		}
	}
	code := "TILL-" + strings.ToUpper(branchCode) + "-CASH-ASSET"
	account, err := p.ensureAccount(ctx, GLAccount{
		Code:     code,
		Name:     "Cash In Till " + branchCode,
		Type:     AccountTypeAsset,
		BranchID: branchID,
	})
	if err != nil {
		return err
	}
	if err := p.ensureMapping(ctx, GLMapping{
		TransactionType: TillTransactionType,
		GLAccountID:     account.ID,
		MappingType:     MappingMain,
		BranchID:        branchID,
	}); err != nil {
		return err
	}
	p.cache.Invalidate(ctx, TillTransactionType, branchID, nil)
	p.log.Info("provisioned till mapping", slog.Int64("branch_id", branchID), slog.String("account_code", code))
	return nil
}

// replicateReversals copies the canonical mapping set under each reversal
// type the module can produce, filling only the gaps.
func (p *Provisioner) replicateReversals(ctx context.Context, module liquidity.Module, branchID int64, floatAccountID *int64) error {
	canonical, err := p.store.ActiveMappings(ctx, CanonicalType(module), branchID, floatAccountID)
	if err != nil {
		return err
	}
	if len(canonical) == 0 {
		return nil
	}
	for _, reversalType := range ReversalTypes(module) {
		existing, err := p.store.ActiveMappings(ctx, reversalType, branchID, floatAccountID)
		if err != nil {
			return err
		}
		present := make(map[MappingType]bool, len(existing))
		for _, m := range existing {
			present[m.MappingType] = true
		}
		created := false
		for _, m := range canonical {
			if present[m.MappingType] {
				continue
			}
			if err := p.ensureMapping(ctx, GLMapping{
				TransactionType: reversalType,
				GLAccountID:     m.GLAccountID,
				MappingType:     m.MappingType,
				BranchID:        branchID,
				FloatAccountID:  floatAccountID,
			}); err != nil {
				return err
			}
			created = true
		}
		if created {
			p.cache.Invalidate(ctx, reversalType, branchID, floatAccountID)
		}
	}
	return nil
}

// ensureAccount creates the account or, when another provisioner won the
// race on the unique code, re-reads the winner's row.
func (p *Provisioner) ensureAccount(ctx context.Context, account GLAccount) (GLAccount, error) {
	created, err := p.store.CreateAccount(ctx, account)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, ErrAccountExists) {
		return GLAccount{}, err
	}
	return p.store.GetAccountByCode(ctx, account.BranchID, account.Code)
}

func (p *Provisioner) ensureMapping(ctx context.Context, m GLMapping) error {
	_, err := p.store.CreateMapping(ctx, m)
	if errors.Is(err, ErrMappingExists) {
		return nil
	}
	return err
}
