package liquidity

import "github.com/shopspring/decimal"

// Effect is the signed movement a transaction applies to the service float
// and the branch cash till. Pure data, no I/O.
type Effect struct {
	Liquidity decimal.Decimal
	CashTill  decimal.Decimal
}

// Negate returns the inverse effect, used for reversal and deletion.
func (e Effect) Negate() Effect {
	return Effect{Liquidity: e.Liquidity.Neg(), CashTill: e.CashTill.Neg()}
}

// Sub returns e minus other. Edits apply newEffect.Sub(oldEffect), with both
// sides recomputed from the effect table rather than negating stored deltas,
// so a type change between old and new is handled correctly.
func (e Effect) Sub(other Effect) Effect {
	return Effect{
		Liquidity: e.Liquidity.Sub(other.Liquidity),
		CashTill:  e.CashTill.Sub(other.CashTill),
	}
}

// IsZero reports whether the effect moves nothing.
func (e Effect) IsZero() bool {
	return e.Liquidity.IsZero() && e.CashTill.IsZero()
}

// ComputeEffect maps (module, kind, amount, fee) to the float and cash-till
// deltas. The jumia float is a liability-style balance: pod collections grow
// it and settlements clear it from a chosen payment account, never the till.
func ComputeEffect(module Module, kind TxKind, amount, fee decimal.Decimal) (Effect, error) {
	gross := amount.Add(fee)
	switch module {
	case ModuleMomo:
		switch kind {
		case KindCashIn:
			return Effect{Liquidity: amount.Neg(), CashTill: gross}, nil
		case KindCashOut:
			return Effect{Liquidity: amount, CashTill: fee.Sub(amount)}, nil
		}
	case ModuleAgencyBanking:
		switch kind {
		case KindDeposit:
			return Effect{Liquidity: amount.Neg(), CashTill: gross}, nil
		case KindWithdrawal, KindInterbank:
			return Effect{Liquidity: amount, CashTill: fee.Sub(amount)}, nil
		}
	case ModuleEZwich:
		switch kind {
		case KindWithdrawal:
			return Effect{Liquidity: gross, CashTill: amount.Neg()}, nil
		case KindCardIssuance:
			return Effect{Liquidity: decimal.Zero, CashTill: gross}, nil
		}
	case ModulePower:
		switch kind {
		case KindSale:
			return Effect{Liquidity: gross.Neg(), CashTill: gross}, nil
		}
	case ModuleJumia:
		switch kind {
		case KindPodCollection:
			return Effect{Liquidity: gross, CashTill: gross.Neg()}, nil
		case KindSettlement:
			return Effect{Liquidity: amount.Neg(), CashTill: decimal.Zero}, nil
		}
	default:
		return Effect{}, ErrUnknownModule
	}
	return Effect{}, ErrUnknownTransactionType
}
