// Package finance classifies betting transactions and aggregates them into
// profit, deposit and withdraw figures.
//
// Direction is a function of category only. FreeBet, Surebet and withdraw
// amounts add to profit, plain deposits subtract. The FreeBet and Surebet
// checks ignore the transaction type, so a tagged withdraw contributes twice
// to profit: once as a withdraw and once under its category.
package finance

import "optify/internal/core"

// IsFreeBet reports whether t is a promotional FreeBet transaction.
func IsFreeBet(t core.Transaction) bool {
	return t.Kind() == core.CategoryFreeBet
}

// IsSurebet reports whether t is an arbitrage Surebet transaction.
func IsSurebet(t core.Transaction) bool {
	return t.Kind() == core.CategorySurebet
}

// IsNormalDeposit reports whether t is a deposit that reduces profit.
func IsNormalDeposit(t core.Transaction) bool {
	return t.Type == core.Deposit && !IsFreeBet(t) && !IsSurebet(t)
}

// ShouldDisplayAsPositive decides the display sign. It is independent of
// the profit formula.
func ShouldDisplayAsPositive(t core.Transaction) bool {
	return IsFreeBet(t) || IsSurebet(t) || t.Type == core.Withdraw
}

// DisplayAmount is the signed amount shown next to a transaction.
func DisplayAmount(t core.Transaction) core.Money {
	if ShouldDisplayAsPositive(t) {
		return t.Amount
	}
	return t.Amount.Neg()
}
