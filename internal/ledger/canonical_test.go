package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
)

func TestCanonicalType(t *testing.T) {
	assert.Equal(t, "momo_float", CanonicalType(liquidity.ModuleMomo))
	assert.Equal(t, "agency_banking_float", CanonicalType(liquidity.ModuleAgencyBanking))
	assert.Equal(t, "e_zwich_float", CanonicalType(liquidity.ModuleEZwich))
	assert.Equal(t, "jumia_float", CanonicalType(liquidity.ModuleJumia))
}

func TestStripReversal(t *testing.T) {
	assert.Equal(t, "cash-in", StripReversal("reversal_cash-in"))
	assert.Equal(t, "withdrawal", StripReversal("adjustment_withdrawal"))
	assert.Equal(t, "sale", StripReversal("sale"))
}

func TestAccountCode(t *testing.T) {
	assert.Equal(t, "MOMO-ACC01-MTN-MAIN",
		AccountCode(liquidity.ModuleMomo, "acc01", "MTN", MappingMain))
	assert.Equal(t, "AGENCY-KSI-GCB-LIABILITY",
		AccountCode(liquidity.ModuleAgencyBanking, "KSI", "gcb", MappingLiability))
	assert.Equal(t, "POWER-KSI-FLOAT-ASSET",
		AccountCode(liquidity.ModulePower, "KSI", "", MappingAsset))
}

func TestNormalizeProvider(t *testing.T) {
	assert.Equal(t, "MTNMOMO", NormalizeProvider("mtn momo"))
	assert.Equal(t, "", NormalizeProvider(""))
}

func TestAccountTypeFor(t *testing.T) {
	assert.Equal(t, AccountTypeLiability, AccountTypeFor(MappingLiability))
	assert.Equal(t, AccountTypeRevenue, AccountTypeFor(MappingFee))
	assert.Equal(t, AccountTypeRevenue, AccountTypeFor(MappingRevenue))
	assert.Equal(t, AccountTypeExpense, AccountTypeFor(MappingExpense))
	assert.Equal(t, AccountTypeAsset, AccountTypeFor(MappingMain))
	assert.Equal(t, AccountTypeAsset, AccountTypeFor(MappingAsset))
}

func TestRequiredMappingTypes(t *testing.T) {
	assert.ElementsMatch(t,
		[]MappingType{MappingMain, MappingLiability, MappingFee},
		RequiredMappingTypes(liquidity.ModuleMomo))
	assert.ElementsMatch(t,
		[]MappingType{MappingMain, MappingLiability, MappingFee, MappingRevenue, MappingAsset},
		RequiredMappingTypes(liquidity.ModuleEZwich))
	assert.ElementsMatch(t,
		[]MappingType{MappingMain, MappingAsset, MappingRevenue},
		RequiredMappingTypes(liquidity.ModulePower))
}

func TestReversalTypesStripBackToRawTypes(t *testing.T) {
	for _, module := range []liquidity.Module{
		liquidity.ModuleMomo, liquidity.ModuleAgencyBanking, liquidity.ModuleEZwich,
		liquidity.ModulePower, liquidity.ModuleJumia,
	} {
		for _, rt := range ReversalTypes(module) {
			raw := StripReversal(rt)
			_, err := liquidity.ParseKind(module, raw)
			assert.NoError(t, err, "%s: %s", module, rt)
		}
	}
}

func TestNormalizeSourceIDDeterministic(t *testing.T) {
	a := NormalizeSourceID("momo", "TX-100")
	b := NormalizeSourceID("momo", "TX-100")
	c := NormalizeSourceID("power", "TX-100")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	parsed := NormalizeSourceID("momo", "8f14e45f-ceea-4a77-a730-e0c8a7120a3c")
	assert.Equal(t, "8f14e45f-ceea-4a77-a730-e0c8a7120a3c", parsed.String())
}
