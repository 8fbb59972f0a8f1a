package finance

import (
	"strings"

	"optify/internal/core"
)

// Tally accumulates the four disjoint-by-filter sums used by the profit
// formula. The zero value is ready to use.
type Tally struct {
	deposits  core.Money // plain deposits only
	withdraws core.Money // every withdraw, whatever its category
	surebet   core.Money
	freebet   core.Money
}

func (t *Tally) Add(tx core.Transaction) {
	switch {
	case IsFreeBet(tx):
		t.freebet = t.freebet.Add(tx.Amount)
	case IsSurebet(tx):
		t.surebet = t.surebet.Add(tx.Amount)
	case tx.Type == core.Deposit:
		t.deposits = t.deposits.Add(tx.Amount)
	}
	if tx.Type == core.Withdraw {
		t.withdraws = t.withdraws.Add(tx.Amount)
	}
}

func (t *Tally) Deposits() core.Money  { return t.deposits }
func (t *Tally) Withdraws() core.Money { return t.withdraws }

func (t *Tally) Profit() core.Money {
	return t.withdraws.Sub(t.deposits).Add(t.surebet).Add(t.freebet)
}

func (t *Tally) Bucket() core.Bucket {
	return core.Bucket{
		Profit:    t.Profit(),
		Deposits:  t.deposits,
		Withdraws: t.withdraws,
	}
}

// CalculateProfit returns withdraws - deposits + surebet + freebet.
// An empty or nil slice yields zero.
func CalculateProfit(txs []core.Transaction) core.Money {
	return Summarize(txs).Profit
}

// CalculateTotalDeposits sums plain deposits. FreeBet and Surebet deposits
// are excluded.
func CalculateTotalDeposits(txs []core.Transaction) core.Money {
	var sum core.Money
	for _, tx := range txs {
		if IsNormalDeposit(tx) {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum
}

// CalculateTotalWithdraws sums every withdraw regardless of description.
func CalculateTotalWithdraws(txs []core.Transaction) core.Money {
	var sum core.Money
	for _, tx := range txs {
		if tx.Type == core.Withdraw {
			sum = sum.Add(tx.Amount)
		}
	}
	return sum
}

// Summarize folds txs into a single bucket.
func Summarize(txs []core.Transaction) core.Bucket {
	var t Tally
	for _, tx := range txs {
		t.Add(tx)
	}
	return t.Bucket()
}

// IsSameDate compares two YYYY-MM-DD strings after trimming. Dates are not
// parsed: "2024-01-05" and "2024-1-5" differ.
func IsSameDate(a, b string) bool {
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
