package ledger

import (
	"strings"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
)

// ReversalPrefix marks GL transaction types created by reversals.
const ReversalPrefix = "reversal_"

// AdjustmentPrefix marks GL transaction types created by edits.
const AdjustmentPrefix = "adjustment_"

// TillTransactionType keys cash-in-till mappings, which belong to the branch
// rather than any service module.
const TillTransactionType = "cash_in_till"

// CanonicalType collapses a service module to the module-level float type
// used for mapping lookup. Raw customer-facing types (cash-in, withdrawal,
// interbank_transfer, ...) all share their module's canonical type.
func CanonicalType(module liquidity.Module) string {
	return string(module) + "_float"
}

// StripReversal removes reversal/adjustment prefixes so canonicalization of
// a derived type reaches the same mappings as the original.
func StripReversal(raw string) string {
	raw = strings.TrimPrefix(raw, ReversalPrefix)
	return strings.TrimPrefix(raw, AdjustmentPrefix)
}

// ReversalTypes lists the reversal transaction-type strings each module can
// produce. The provisioner replicates mappings under these so a reversal
// posting resolves accounts identically to the forward posting.
func ReversalTypes(module liquidity.Module) []string {
	switch module {
	case liquidity.ModuleMomo:
		return []string{"reversal_cash-in", "reversal_cash-out", "reversal_deposit", "reversal_withdrawal"}
	case liquidity.ModuleAgencyBanking:
		return []string{"reversal_deposit", "reversal_withdrawal", "reversal_interbank"}
	case liquidity.ModuleEZwich:
		return []string{"reversal_withdrawal", "reversal_card_issuance"}
	case liquidity.ModulePower:
		return []string{"reversal_sale"}
	case liquidity.ModuleJumia:
		return []string{"reversal_pod_collection", "reversal_settlement"}
	}
	return nil
}

// RequiredMappingTypes lists the ledger roles a module's postings need.
func RequiredMappingTypes(module liquidity.Module) []MappingType {
	switch module {
	case liquidity.ModuleMomo, liquidity.ModuleAgencyBanking:
		return []MappingType{MappingMain, MappingLiability, MappingFee}
	case liquidity.ModuleEZwich:
		return []MappingType{MappingMain, MappingLiability, MappingFee, MappingRevenue, MappingAsset}
	case liquidity.ModulePower:
		return []MappingType{MappingMain, MappingAsset, MappingRevenue}
	case liquidity.ModuleJumia:
		return []MappingType{MappingMain, MappingLiability, MappingFee}
	}
	return nil
}

// AccountTypeFor classifies the CoA category for a ledger role.
func AccountTypeFor(mt MappingType) AccountType {
	switch mt {
	case MappingLiability:
		return AccountTypeLiability
	case MappingRevenue, MappingFee:
		return AccountTypeRevenue
	case MappingExpense:
		return AccountTypeExpense
	default:
		return AccountTypeAsset
	}
}

// NormalizeProvider uppercases and strips spaces so provider names embed
// consistently in account codes.
func NormalizeProvider(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, " ", ""))
}

func moduleCode(module liquidity.Module) string {
	switch module {
	case liquidity.ModuleMomo:
		return "MOMO"
	case liquidity.ModuleAgencyBanking:
		return "AGENCY"
	case liquidity.ModuleEZwich:
		return "EZWICH"
	case liquidity.ModulePower:
		return "POWER"
	case liquidity.ModuleJumia:
		return "JUMIA"
	}
	return strings.ToUpper(string(module))
}

// AccountCode builds the deterministic code for an auto-provisioned account:
// {MODULE}-{BRANCH}-{PROVIDER|TYPE}-{MAPPING}, unique per branch.
func AccountCode(module liquidity.Module, branchCode, provider string, mt MappingType) string {
	middle := NormalizeProvider(provider)
	if middle == "" {
		middle = "FLOAT"
	}
	return moduleCode(module) + "-" + strings.ToUpper(branchCode) + "-" + middle + "-" + strings.ToUpper(string(mt))
}

// AccountName builds a readable name matching the code parts.
func AccountName(module liquidity.Module, branchCode, provider string, mt MappingType) string {
	parts := []string{moduleCode(module)}
	if provider != "" {
		parts = append(parts, provider)
	}
	parts = append(parts, string(mt), branchCode)
	return strings.Join(parts, " ")
}
