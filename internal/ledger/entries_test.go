package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
)

func ref(id int64, code string) *AccountRef {
	return &AccountRef{ID: id, Code: code}
}

func fullAccounts() ResolvedAccounts {
	return ResolvedAccounts{
		Main:      ref(1, "MAIN"),
		Liability: ref(2, "LIAB"),
		Revenue:   ref(3, "REV"),
		Fee:       ref(4, "FEE"),
		Asset:     ref(5, "ASSET"),
	}
}

func lineFor(t *testing.T, lines []JournalEntry, accountID int64) JournalEntry {
	t.Helper()
	for _, line := range lines {
		if line.AccountID == accountID {
			return line
		}
	}
	t.Fatalf("no line for account %d", accountID)
	return JournalEntry{}
}

func TestBuildEntriesBalancedAcrossTemplates(t *testing.T) {
	cases := []struct {
		name  string
		in    EntryInput
		lines int
	}{
		{"momo cash-in with fee", EntryInput{Module: liquidity.ModuleMomo, Kind: liquidity.KindCashIn, Amount: 100, Fee: 2}, 4},
		{"momo cash-out no fee", EntryInput{Module: liquidity.ModuleMomo, Kind: liquidity.KindCashOut, Amount: 100}, 2},
		{"agency deposit", EntryInput{Module: liquidity.ModuleAgencyBanking, Kind: liquidity.KindDeposit, Amount: 500, Fee: 5}, 4},
		{"agency interbank", EntryInput{Module: liquidity.ModuleAgencyBanking, Kind: liquidity.KindInterbank, Amount: 300, Fee: 10}, 4},
		{"ezwich withdrawal with fee", EntryInput{Module: liquidity.ModuleEZwich, Kind: liquidity.KindWithdrawal, Amount: 200, Fee: 3}, 3},
		{"ezwich card issuance", EntryInput{Module: liquidity.ModuleEZwich, Kind: liquidity.KindCardIssuance, Amount: 15, Fee: 1}, 4},
		{"power sale", EntryInput{Module: liquidity.ModulePower, Kind: liquidity.KindSale, Amount: 50, Fee: 1}, 2},
		{"jumia pod collection with fee", EntryInput{Module: liquidity.ModuleJumia, Kind: liquidity.KindPodCollection, Amount: 120, Fee: 4}, 3},
		{"jumia settlement", EntryInput{Module: liquidity.ModuleJumia, Kind: liquidity.KindSettlement, Amount: 1000, PaymentAccount: ref(9, "BANK")}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines, err := BuildEntries(tc.in, fullAccounts())
			require.NoError(t, err)
			assert.Len(t, lines, tc.lines)
			assert.NoError(t, VerifyBalanced(lines))
			for _, line := range lines {
				assert.False(t, line.Debit != 0 && line.Credit != 0, "line must be single sided")
				assert.False(t, line.Debit == 0 && line.Credit == 0, "zero lines must be filtered")
			}
		})
	}
}

func TestBuildEntriesMomoCashInSides(t *testing.T) {
	lines, err := BuildEntries(EntryInput{
		Module: liquidity.ModuleMomo, Kind: liquidity.KindCashIn, Amount: 100, Fee: 2,
	}, fullAccounts())
	require.NoError(t, err)

	assert.Equal(t, 100.0, lineFor(t, lines, 2).Debit, "liability debited for the base amount")
	assert.Equal(t, 100.0, lineFor(t, lines, 1).Credit, "main credited for the base amount")
	assert.Equal(t, 2.0, lineFor(t, lines, 4).Credit, "fee account credited")
}

func TestBuildEntriesEzwichGrossDebit(t *testing.T) {
	lines, err := BuildEntries(EntryInput{
		Module: liquidity.ModuleEZwich, Kind: liquidity.KindWithdrawal, Amount: 200, Fee: 3,
	}, fullAccounts())
	require.NoError(t, err)

	assert.Equal(t, 203.0, lineFor(t, lines, 1).Debit)
	assert.Equal(t, 200.0, lineFor(t, lines, 2).Credit)
	assert.Equal(t, 3.0, lineFor(t, lines, 4).Credit)
}

func TestBuildEntriesZeroFeeFiltered(t *testing.T) {
	lines, err := BuildEntries(EntryInput{
		Module: liquidity.ModuleMomo, Kind: liquidity.KindCashIn, Amount: 100,
	}, fullAccounts())
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestBuildEntriesMissingMappings(t *testing.T) {
	_, err := BuildEntries(EntryInput{
		Module: liquidity.ModuleMomo, Kind: liquidity.KindCashIn, Amount: 100,
	}, ResolvedAccounts{Main: ref(1, "MAIN")})
	assert.ErrorIs(t, err, ErrMappingUnavailable)

	_, err = BuildEntries(EntryInput{
		Module: liquidity.ModuleJumia, Kind: liquidity.KindSettlement, Amount: 100,
	}, fullAccounts())
	assert.ErrorIs(t, err, ErrMappingUnavailable, "settlement needs a payment account")
}

func TestBuildEntriesFeeWithoutFeeMapping(t *testing.T) {
	acc := fullAccounts()
	acc.Fee = nil
	lines, err := BuildEntries(EntryInput{
		Module: liquidity.ModuleMomo, Kind: liquidity.KindCashIn, Amount: 100, Fee: 2,
	}, acc)
	require.NoError(t, err)
	assert.Len(t, lines, 2, "fee pair dropped when unmapped, base pair still posts")
	assert.NoError(t, VerifyBalanced(lines))
}

func TestBuildReversalEntriesSwapsSides(t *testing.T) {
	original, err := BuildEntries(EntryInput{
		Module: liquidity.ModuleMomo, Kind: liquidity.KindCashIn, Amount: 100, Fee: 2, Description: "cash in",
	}, fullAccounts())
	require.NoError(t, err)

	reversed := BuildReversalEntries(original)
	require.Len(t, reversed, len(original))
	for i, line := range reversed {
		assert.Equal(t, original[i].Debit, line.Credit)
		assert.Equal(t, original[i].Credit, line.Debit)
		assert.Equal(t, original[i].AccountID, line.AccountID)
		assert.Equal(t, "Reversal: cash in", line.Description)
	}
	assert.NoError(t, VerifyBalanced(reversed))
}

func TestBuildAdjustmentEntriesNetDelta(t *testing.T) {
	oldIn := EntryInput{Module: liquidity.ModuleMomo, Kind: liquidity.KindCashIn, Amount: 100, Fee: 2, Description: "edit"}
	newIn := oldIn
	newIn.Amount = 120

	lines, err := BuildAdjustmentEntries(oldIn, newIn, fullAccounts())
	require.NoError(t, err)
	require.Len(t, lines, 2, "fee unchanged, only the base pair moves")
	assert.Equal(t, 20.0, lineFor(t, lines, 2).Debit)
	assert.Equal(t, 20.0, lineFor(t, lines, 1).Credit)
	assert.NoError(t, VerifyBalanced(lines))
}

func TestBuildAdjustmentEntriesNoChange(t *testing.T) {
	in := EntryInput{Module: liquidity.ModuleMomo, Kind: liquidity.KindCashIn, Amount: 100, Fee: 2}
	lines, err := BuildAdjustmentEntries(in, in, fullAccounts())
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestBuildAdjustmentEntriesDecrease(t *testing.T) {
	oldIn := EntryInput{Module: liquidity.ModuleJumia, Kind: liquidity.KindPodCollection, Amount: 120, Fee: 4, Description: "pod"}
	newIn := oldIn
	newIn.Amount = 100
	newIn.Fee = 3

	lines, err := BuildAdjustmentEntries(oldIn, newIn, fullAccounts())
	require.NoError(t, err)
	assert.Equal(t, 21.0, lineFor(t, lines, 1).Credit, "main gross drops 124 to 103")
	assert.Equal(t, 20.0, lineFor(t, lines, 2).Debit)
	assert.Equal(t, 1.0, lineFor(t, lines, 4).Debit)
	assert.NoError(t, VerifyBalanced(lines))
}

func TestVerifyBalanced(t *testing.T) {
	balanced := []JournalEntry{{AccountID: 1, Debit: 10}, {AccountID: 2, Credit: 10}}
	assert.NoError(t, VerifyBalanced(balanced))

	skewed := []JournalEntry{{AccountID: 1, Debit: 10}, {AccountID: 2, Credit: 9.5}}
	assert.ErrorIs(t, VerifyBalanced(skewed), ErrUnbalanced)

	withinTolerance := []JournalEntry{{AccountID: 1, Debit: 10}, {AccountID: 2, Credit: 9.995}}
	assert.NoError(t, VerifyBalanced(withinTolerance))
}
