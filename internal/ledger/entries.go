package ledger

import (
	"fmt"
	"math"

	"github.com/tellerdesk/tellerdesk/internal/liquidity"
)

// EntryInput carries the typed posting payload the entry builder dispatches
// on. Settlements additionally name the payment account funding them.
type EntryInput struct {
	Module         liquidity.Module
	Kind           liquidity.TxKind
	Amount         float64
	Fee            float64
	Description    string
	PaymentAccount *AccountRef
}

// BuildEntries constructs the balanced journal lines for one transaction.
// The main float account and the module counterpart form the primary pair
// for the base amount; a second pair posts the fee against the main account
// when a fee mapping resolved. Zero-value lines are filtered out.
func BuildEntries(in EntryInput, acc ResolvedAccounts) ([]JournalEntry, error) {
	lines, err := forwardLines(in, acc)
	if err != nil {
		return nil, err
	}
	lines = filterZeroLines(lines)
	if err := VerifyBalanced(lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// BuildReversalEntries swaps debit and credit on each original line. Reusing
// the persisted lines guarantees the reversal touches the same account set
// even if mappings have since been repointed.
func BuildReversalEntries(original []JournalEntry) []JournalEntry {
	out := make([]JournalEntry, 0, len(original))
	for _, line := range original {
		out = append(out, JournalEntry{
			AccountID:   line.AccountID,
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: "Reversal: " + line.Description,
		})
	}
	return out
}

// BuildAdjustmentEntries posts only the signed per-account delta between the
// old and new values of a transaction, so editing 100→120 moves 20, not a
// full re-posting. Both sides run through the forward templates, which keeps
// type changes between old and new correct.
func BuildAdjustmentEntries(oldIn, newIn EntryInput, acc ResolvedAccounts) ([]JournalEntry, error) {
	oldLines, err := forwardLines(oldIn, acc)
	if err != nil {
		return nil, err
	}
	newLines, err := forwardLines(newIn, acc)
	if err != nil {
		return nil, err
	}
	type net struct {
		ref   AccountRef
		value float64
		order int
	}
	nets := make(map[int64]*net)
	ordered := make([]*net, 0, len(newLines))
	accumulate := func(lines []JournalEntry, sign float64) {
		for _, line := range lines {
			entry, ok := nets[line.AccountID]
			if !ok {
				entry = &net{ref: AccountRef{ID: line.AccountID, Code: line.AccountCode}, order: len(ordered)}
				nets[line.AccountID] = entry
				ordered = append(ordered, entry)
			}
			entry.value += sign * (line.Debit - line.Credit)
		}
	}
	accumulate(newLines, 1)
	accumulate(oldLines, -1)

	out := make([]JournalEntry, 0, len(ordered))
	for _, entry := range ordered {
		value := round2(entry.value)
		if value == 0 {
			continue
		}
		line := JournalEntry{
			AccountID:   entry.ref.ID,
			AccountCode: entry.ref.Code,
			Description: "Adjustment: " + newIn.Description,
		}
		if value > 0 {
			line.Debit = value
		} else {
			line.Credit = -value
		}
		out = append(out, line)
	}
	if err := VerifyBalanced(out); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyBalanced enforces |sum(debit) - sum(credit)| <= 0.01. A violation is
// a template bug and aborts the whole posting.
func VerifyBalanced(lines []JournalEntry) error {
	var debit, credit float64
	for _, line := range lines {
		debit += line.Debit
		credit += line.Credit
	}
	if math.Abs(debit-credit) > balanceTolerance {
		return fmt.Errorf("%w: debit %.2f credit %.2f", ErrUnbalanced, debit, credit)
	}
	return nil
}

func forwardLines(in EntryInput, acc ResolvedAccounts) ([]JournalEntry, error) {
	amount := round2(in.Amount)
	fee := round2(in.Fee)
	gross := round2(amount + fee)

	switch in.Module {
	case liquidity.ModuleMomo, liquidity.ModuleAgencyBanking:
		if acc.Main == nil || acc.Liability == nil {
			return nil, ErrMappingUnavailable
		}
		switch in.Kind {
		case liquidity.KindCashIn, liquidity.KindDeposit:
			lines := pair(*acc.Liability, *acc.Main, amount, in.Description)
			return append(lines, feePair(acc, fee, in.Description)...), nil
		case liquidity.KindCashOut, liquidity.KindWithdrawal, liquidity.KindInterbank:
			lines := pair(*acc.Main, *acc.Liability, amount, in.Description)
			return append(lines, feePair(acc, fee, in.Description)...), nil
		}
	case liquidity.ModuleEZwich:
		switch in.Kind {
		case liquidity.KindWithdrawal:
			if acc.Main == nil || acc.Liability == nil {
				return nil, ErrMappingUnavailable
			}
			if fee > 0 && acc.Fee != nil {
				return []JournalEntry{
					debitLine(*acc.Main, gross, in.Description),
					creditLine(*acc.Liability, amount, in.Description),
					creditLine(*acc.Fee, fee, "Fee: "+in.Description),
				}, nil
			}
			return pair(*acc.Main, *acc.Liability, amount, in.Description), nil
		case liquidity.KindCardIssuance:
			if acc.Asset == nil || acc.Revenue == nil {
				return nil, ErrMappingUnavailable
			}
			lines := pair(*acc.Asset, *acc.Revenue, amount, in.Description)
			if fee > 0 && acc.Fee != nil {
				lines = append(lines, pair(*acc.Asset, *acc.Fee, fee, "Fee: "+in.Description)...)
			}
			return lines, nil
		}
	case liquidity.ModulePower:
		if in.Kind == liquidity.KindSale {
			if acc.Main == nil || acc.Asset == nil {
				return nil, ErrMappingUnavailable
			}
			return pair(*acc.Asset, *acc.Main, gross, in.Description), nil
		}
	case liquidity.ModuleJumia:
		switch in.Kind {
		case liquidity.KindPodCollection:
			if acc.Main == nil || acc.Liability == nil {
				return nil, ErrMappingUnavailable
			}
			if fee > 0 && acc.Fee != nil {
				return []JournalEntry{
					debitLine(*acc.Main, gross, in.Description),
					creditLine(*acc.Liability, amount, in.Description),
					creditLine(*acc.Fee, fee, "Fee: "+in.Description),
				}, nil
			}
			return pair(*acc.Main, *acc.Liability, gross, in.Description), nil
		case liquidity.KindSettlement:
			if acc.Liability == nil || in.PaymentAccount == nil {
				return nil, ErrMappingUnavailable
			}
			return pair(*acc.Liability, *in.PaymentAccount, amount, in.Description), nil
		}
	}
	return nil, fmt.Errorf("ledger: no entry template for %s/%s", in.Module, in.Kind)
}

// feePair posts the fee against the main account when a fee mapping exists.
func feePair(acc ResolvedAccounts, fee float64, description string) []JournalEntry {
	if fee <= 0 || acc.Fee == nil || acc.Main == nil {
		return nil
	}
	return pair(*acc.Main, *acc.Fee, fee, "Fee: "+description)
}

func pair(debit, credit AccountRef, amount float64, description string) []JournalEntry {
	return []JournalEntry{
		debitLine(debit, amount, description),
		creditLine(credit, amount, description),
	}
}

func debitLine(ref AccountRef, amount float64, description string) JournalEntry {
	return JournalEntry{AccountID: ref.ID, AccountCode: ref.Code, Debit: round2(amount), Description: description}
}

func creditLine(ref AccountRef, amount float64, description string) JournalEntry {
	return JournalEntry{AccountID: ref.ID, AccountCode: ref.Code, Credit: round2(amount), Description: description}
}

func filterZeroLines(lines []JournalEntry) []JournalEntry {
	out := lines[:0]
	for _, line := range lines {
		if line.Debit == 0 && line.Credit == 0 {
			continue
		}
		out = append(out, line)
	}
	return out
}
