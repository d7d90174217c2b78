package liquidity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeEffectTable(t *testing.T) {
	cases := []struct {
		name      string
		module    Module
		kind      TxKind
		amount    string
		fee       string
		liquidity string
		cashTill  string
	}{
		{"momo cash-in", ModuleMomo, KindCashIn, "100", "2", "-100", "102"},
		{"momo cash-out", ModuleMomo, KindCashOut, "100", "2", "100", "-98"},
		{"agency deposit", ModuleAgencyBanking, KindDeposit, "500", "5", "-500", "505"},
		{"agency withdrawal", ModuleAgencyBanking, KindWithdrawal, "500", "5", "500", "-495"},
		{"agency interbank", ModuleAgencyBanking, KindInterbank, "300", "10", "300", "-290"},
		{"ezwich withdrawal", ModuleEZwich, KindWithdrawal, "200", "3", "203", "-200"},
		{"ezwich card issuance", ModuleEZwich, KindCardIssuance, "15", "1", "0", "16"},
		{"power sale", ModulePower, KindSale, "50", "1", "-51", "51"},
		{"jumia pod collection", ModuleJumia, KindPodCollection, "120", "4", "124", "-124"},
		{"jumia settlement", ModuleJumia, KindSettlement, "1000", "0", "-1000", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			effect, err := ComputeEffect(tc.module, tc.kind, d(tc.amount), d(tc.fee))
			require.NoError(t, err)
			assert.True(t, effect.Liquidity.Equal(d(tc.liquidity)),
				"liquidity: want %s got %s", tc.liquidity, effect.Liquidity)
			assert.True(t, effect.CashTill.Equal(d(tc.cashTill)),
				"cash till: want %s got %s", tc.cashTill, effect.CashTill)
		})
	}
}

func TestComputeEffectRejectsUnknown(t *testing.T) {
	_, err := ComputeEffect(Module("fx"), KindCashIn, d("10"), d("0"))
	assert.ErrorIs(t, err, ErrUnknownModule)

	_, err = ComputeEffect(ModulePower, KindCashIn, d("10"), d("0"))
	assert.ErrorIs(t, err, ErrUnknownTransactionType)
}

func TestEffectNegateAndSub(t *testing.T) {
	forward, err := ComputeEffect(ModuleMomo, KindCashIn, d("100"), d("2"))
	require.NoError(t, err)

	back := forward.Negate()
	assert.True(t, forward.Liquidity.Add(back.Liquidity).IsZero())
	assert.True(t, forward.CashTill.Add(back.CashTill).IsZero())

	edited, err := ComputeEffect(ModuleMomo, KindCashIn, d("150"), d("2"))
	require.NoError(t, err)
	diff := edited.Sub(forward)
	assert.True(t, diff.Liquidity.Equal(d("-50")))
	assert.True(t, diff.CashTill.Equal(d("50")))
}

func TestParseKindAliases(t *testing.T) {
	cases := []struct {
		module Module
		raw    string
		want   TxKind
	}{
		{ModuleMomo, "deposit", KindCashIn},
		{ModuleMomo, "withdrawal", KindCashOut},
		{ModuleMomo, "cash-in", KindCashIn},
		{ModuleAgencyBanking, "interbank_transfer", KindInterbank},
		{ModuleJumia, "pod_payment", KindPodCollection},
		{ModuleJumia, "settlement", KindSettlement},
	}
	for _, tc := range cases {
		kind, err := ParseKind(tc.module, tc.raw)
		require.NoError(t, err, "%s/%s", tc.module, tc.raw)
		assert.Equal(t, tc.want, kind)
	}

	_, err := ParseKind(ModuleEZwich, "deposit")
	assert.ErrorIs(t, err, ErrUnknownTransactionType)
}

func TestModuleOfRoundTrip(t *testing.T) {
	for _, module := range []Module{ModuleMomo, ModuleAgencyBanking, ModuleEZwich, ModulePower, ModuleJumia} {
		kind, err := FloatAccountKind(module)
		require.NoError(t, err)
		got, ok := ModuleOf(kind)
		require.True(t, ok)
		assert.Equal(t, module, got)
	}
	_, ok := ModuleOf(AccountCashInTill)
	assert.False(t, ok)
}
