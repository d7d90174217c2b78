package ledger

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
)

// ResolveStore is the persistence surface the resolver needs.
type ResolveStore interface {
	ActiveMappings(ctx context.Context, txType string, branchID int64, floatAccountID *int64) ([]GLMapping, error)
	AccountsByID(ctx context.Context, ids []int64) (map[int64]GLAccount, error)
}

// Resolver turns (module, transaction type, branch, provider, float account)
// into the concrete accounts each ledger role posts to. Raw transaction
// types are consulted first so operators can override individual types;
// everything else falls through to the module's canonical type. When nothing
// resolves the provisioner is invoked once and the lookup retried.
type Resolver struct {
	store       ResolveStore
	cache       *MappingCache
	provisioner *Provisioner
	log         *slog.Logger
}

// NewResolver constructs Resolver.
func NewResolver(store ResolveStore, cache *MappingCache, provisioner *Provisioner, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, cache: cache, provisioner: provisioner, log: log}
}

// ResolveInput identifies one mapping lookup.
type ResolveInput struct {
	Module         liquidity.Module
	RawType        string
	BranchID       int64
	BranchCode     string
	Provider       string
	FloatAccountID *int64
}

// Resolve returns the resolved role accounts. A fully or partially empty
// result with a nil error means mappings are genuinely absent even after
// provisioning; callers treat that as a soft skip, not a failure.
func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) (ResolvedAccounts, error) {
	resolved, err := r.lookup(ctx, in)
	if err != nil {
		return ResolvedAccounts{}, err
	}
	if r.complete(in.Module, resolved) {
		return resolved, nil
	}
	if err := r.provisioner.EnsureMappings(ctx, in.Module, in.BranchID, in.BranchCode, in.Provider, in.FloatAccountID); err != nil {
		r.log.Warn("mapping provisioning failed",
			slog.String("module", string(in.Module)),
			slog.Int64("branch_id", in.BranchID),
			slog.String("error", err.Error()))
		return resolved, nil
	}
	return r.lookup(ctx, in)
}

// ResolveTill returns the branch cash-in-till account, provisioning it on
// first use.
func (r *Resolver) ResolveTill(ctx context.Context, branchID int64, branchCode string) (*AccountRef, error) {
	ref, err := r.tillLookup(ctx, branchID)
	if err != nil || ref != nil {
		return ref, err
	}
	if err := r.provisioner.EnsureTillMapping(ctx, branchID, branchCode); err != nil {
		return nil, err
	}
	return r.tillLookup(ctx, branchID)
}

func (r *Resolver) tillLookup(ctx context.Context, branchID int64) (*AccountRef, error) {
	mappings, err := r.cachedMappings(ctx, TillTransactionType, branchID, nil)
	if err != nil {
		return nil, err
	}
	for _, m := range mappings {
		if m.MappingType != MappingMain {
			continue
		}
		accounts, err := r.store.AccountsByID(ctx, []int64{m.GLAccountID})
		if err != nil {
			return nil, err
		}
		if account, ok := accounts[m.GLAccountID]; ok {
			return &AccountRef{ID: account.ID, Code: account.Code}, nil
		}
	}
	return nil, nil
}

// lookup resolves against the raw type first and fills remaining roles from
// the canonical type. Float-scoped mappings win over generic ones within
// each type.
func (r *Resolver) lookup(ctx context.Context, in ResolveInput) (ResolvedAccounts, error) {
	var resolved ResolvedAccounts
	rawType := StripReversal(in.RawType)
	canonical := CanonicalType(in.Module)
	for _, txType := range []string{rawType, canonical} {
		if txType == "" {
			continue
		}
		mappings, err := r.scopedMappings(ctx, txType, in.BranchID, in.FloatAccountID)
		if err != nil {
			return ResolvedAccounts{}, err
		}
		if err := r.fill(ctx, &resolved, mappings, in.Provider); err != nil {
			return ResolvedAccounts{}, err
		}
		if txType == canonical {
			break
		}
	}
	return resolved, nil
}

// scopedMappings prefers mappings bound to the float account and falls back
// to the branch-generic set.
func (r *Resolver) scopedMappings(ctx context.Context, txType string, branchID int64, floatAccountID *int64) ([]GLMapping, error) {
	if floatAccountID != nil {
		mappings, err := r.cachedMappings(ctx, txType, branchID, floatAccountID)
		if err != nil {
			return nil, err
		}
		if len(mappings) > 0 {
			return mappings, nil
		}
	}
	return r.cachedMappings(ctx, txType, branchID, nil)
}

func (r *Resolver) cachedMappings(ctx context.Context, txType string, branchID int64, floatAccountID *int64) ([]GLMapping, error) {
	return r.cache.Fetch(ctx, txType, branchID, floatAccountID, func(ctx context.Context) ([]GLMapping, error) {
		return r.store.ActiveMappings(ctx, txType, branchID, floatAccountID)
	})
}

// fill assigns accounts for roles not yet resolved. When several mappings
// compete for one role the account whose code embeds the provider wins.
func (r *Resolver) fill(ctx context.Context, resolved *ResolvedAccounts, mappings []GLMapping, provider string) error {
	if len(mappings) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(mappings))
	for _, m := range mappings {
		ids = append(ids, m.GLAccountID)
	}
	accounts, err := r.store.AccountsByID(ctx, ids)
	if err != nil {
		return err
	}
	providerToken := ""
	if provider != "" {
		providerToken = "-" + NormalizeProvider(provider) + "-"
	}
	for _, m := range mappings {
		account, ok := accounts[m.GLAccountID]
		if !ok || !account.IsActive {
			continue
		}
		current := resolved.Get(m.MappingType)
		ref := &AccountRef{ID: account.ID, Code: account.Code}
		switch {
		case current == nil:
			resolved.Set(m.MappingType, ref)
		case providerToken != "" && strings.Contains(account.Code, providerToken) && !strings.Contains(current.Code, providerToken):
			resolved.Set(m.MappingType, ref)
		}
	}
	return nil
}

func (r *Resolver) complete(module liquidity.Module, resolved ResolvedAccounts) bool {
	for _, mt := range RequiredMappingTypes(module) {
		if mt == MappingFee {
			continue
		}
		if resolved.Get(mt) == nil {
			return false
		}
	}
	return true
}
