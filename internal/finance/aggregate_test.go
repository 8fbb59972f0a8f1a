package finance

import (
	"testing"

	"optify/internal/core"
)

func dep(cents int64, desc string) core.Transaction {
	return core.Transaction{Type: core.Deposit, Amount: core.Cents(cents), Description: desc}
}

func wd(cents int64, desc string) core.Transaction {
	return core.Transaction{Type: core.Withdraw, Amount: core.Cents(cents), Description: desc}
}

func TestCalculateProfitEmpty(t *testing.T) {
	if got := CalculateProfit(nil); !got.IsZero() {
		t.Fatalf("nil: expected 0, got %v", got)
	}
	if got := CalculateProfit([]core.Transaction{}); !got.IsZero() {
		t.Fatalf("empty: expected 0, got %v", got)
	}
}

func TestClassifier(t *testing.T) {
	tests := []struct {
		name     string
		tx       core.Transaction
		freebet  bool
		surebet  bool
		normal   bool
		positive bool
	}{
		{"freebet deposit", dep(10000, "FreeBet bonus"), true, false, false, true},
		{"surebet deposit", dep(5000, "Surebet arb"), false, true, false, true},
		{"plain deposit", dep(20000, "Pix"), false, false, true, false},
		{"deposit without description", dep(100, ""), false, false, true, false},
		{"withdraw", wd(300, "Saque"), false, false, false, true},
		{"lowercase prefix is plain", dep(100, "freebet"), false, false, true, false},
		{"explicit category overrides prefix", core.Transaction{Type: core.Deposit, Description: "FreeBet?", Category: core.CategoryNormal}, false, false, true, false},
		{"explicit surebet without prefix", core.Transaction{Type: core.Deposit, Description: "arb", Category: core.CategorySurebet}, false, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFreeBet(tt.tx); got != tt.freebet {
				t.Errorf("IsFreeBet = %v, want %v", got, tt.freebet)
			}
			if got := IsSurebet(tt.tx); got != tt.surebet {
				t.Errorf("IsSurebet = %v, want %v", got, tt.surebet)
			}
			if got := IsNormalDeposit(tt.tx); got != tt.normal {
				t.Errorf("IsNormalDeposit = %v, want %v", got, tt.normal)
			}
			if got := ShouldDisplayAsPositive(tt.tx); got != tt.positive {
				t.Errorf("ShouldDisplayAsPositive = %v, want %v", got, tt.positive)
			}
		})
	}
}

func TestShouldDisplayAsPositiveIgnoresAmount(t *testing.T) {
	for _, cents := range []int64{0, 1, 100, 1_000_000} {
		if ShouldDisplayAsPositive(dep(cents, "Pix")) {
			t.Errorf("plain deposit of %d displayed as positive", cents)
		}
		if !ShouldDisplayAsPositive(dep(cents, "FreeBet")) || !ShouldDisplayAsPositive(dep(cents, "Surebet")) || !ShouldDisplayAsPositive(wd(cents, "")) {
			t.Errorf("positive kinds with amount %d displayed as negative", cents)
		}
	}
	if got := DisplayAmount(dep(200, "Pix")); got.Cents != -200 {
		t.Errorf("DisplayAmount plain deposit = %d, want -200", got.Cents)
	}
	if got := DisplayAmount(wd(200, "")); got.Cents != 200 {
		t.Errorf("DisplayAmount withdraw = %d, want 200", got.Cents)
	}
}

func TestFreeBetContribution(t *testing.T) {
	txs := []core.Transaction{dep(10000, "FreeBet bonus")}
	if got := CalculateProfit(txs); got.Cents != 10000 {
		t.Fatalf("profit = %d, want 10000", got.Cents)
	}
	if got := CalculateTotalDeposits(txs); !got.IsZero() {
		t.Fatalf("freebet must be excluded from deposits, got %d", got.Cents)
	}
}

func TestSurebetContribution(t *testing.T) {
	txs := []core.Transaction{dep(5000, "Surebet arb")}
	if got := CalculateProfit(txs); got.Cents != 5000 {
		t.Fatalf("profit = %d, want 5000", got.Cents)
	}
	if got := CalculateTotalDeposits(txs); !got.IsZero() {
		t.Fatalf("surebet must be excluded from deposits, got %d", got.Cents)
	}
}

func TestPlainDepositContribution(t *testing.T) {
	txs := []core.Transaction{dep(20000, "Pix")}
	if got := CalculateProfit(txs); got.Cents != -20000 {
		t.Fatalf("profit = %d, want -20000", got.Cents)
	}
	if got := CalculateTotalDeposits(txs); got.Cents != 20000 {
		t.Fatalf("deposits = %d, want 20000", got.Cents)
	}
}

func TestMixedScenario(t *testing.T) {
	txs := []core.Transaction{
		{Type: core.Withdraw, Amount: core.Cents(30000)},
		dep(10000, "Pix"),
		dep(5000, "FreeBet win"),
	}
	// 300 - 100 + 0 (surebet) + 50 (freebet)
	if got := CalculateProfit(txs); got.Cents != 25000 {
		t.Fatalf("profit = %d, want 25000", got.Cents)
	}
}

func TestWithdrawsCountedOnceRegardlessOfDescription(t *testing.T) {
	txs := []core.Transaction{
		wd(100, ""),
		wd(200, "Pix"),
		wd(400, "FreeBet cashout"),
		wd(800, "Surebet cashout"),
		dep(1600, "Surebet"),
	}
	if got := CalculateTotalWithdraws(txs); got.Cents != 1500 {
		t.Fatalf("withdraws = %d, want 1500", got.Cents)
	}
}

// Tagged withdraws are counted in both the withdraw sum and their category
// sum. This pins the current behavior.
func TestTaggedWithdrawDoubleCounted(t *testing.T) {
	txs := []core.Transaction{wd(1000, "Surebet cashout")}
	if got := CalculateProfit(txs); got.Cents != 2000 {
		t.Fatalf("profit = %d, want 2000 (withdraw + surebet)", got.Cents)
	}
	txs = []core.Transaction{wd(1000, "FreeBet cashout")}
	if got := CalculateProfit(txs); got.Cents != 2000 {
		t.Fatalf("profit = %d, want 2000 (withdraw + freebet)", got.Cents)
	}
}

func TestMalformedTransactionsAreCoerced(t *testing.T) {
	txs := []core.Transaction{
		{Type: "", Amount: core.Cents(500), Description: "Pix"},          // unknown type
		{Type: core.Deposit, Description: "Pix"},                         // missing amount
		{Type: "bonus", Amount: core.Cents(700), Description: "FreeBet"}, // tagged, unknown type
	}
	if got := CalculateTotalDeposits(txs); !got.IsZero() {
		t.Fatalf("deposits = %d, want 0", got.Cents)
	}
	if got := CalculateTotalWithdraws(txs); !got.IsZero() {
		t.Fatalf("withdraws = %d, want 0", got.Cents)
	}
	// The FreeBet filter does not look at the type.
	if got := CalculateProfit(txs); got.Cents != 700 {
		t.Fatalf("profit = %d, want 700", got.Cents)
	}
}

func TestIsSameDate(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"2024-05-01", "2024-05-01", true},
		{"2024-05-01", "2024-5-1", false},
		{" 2024-05-01 ", "2024-05-01", true},
		{"", "", true},
		{"2024-05-01", "2024-05-02", false},
	}
	for _, tc := range cases {
		if got := IsSameDate(tc.a, tc.b); got != tc.want {
			t.Errorf("IsSameDate(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSummarize(t *testing.T) {
	b := Summarize([]core.Transaction{wd(30000, ""), dep(10000, "Pix"), dep(5000, "FreeBet")})
	if b.Profit.Cents != 25000 || b.Deposits.Cents != 10000 || b.Withdraws.Cents != 30000 {
		t.Fatalf("unexpected bucket: %+v", b)
	}
}
