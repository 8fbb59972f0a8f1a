// Package report exports a user's financial state to external sheets.
package report

import (
	"context"
	"sort"

	"optify/internal/core"
)

// MonthlyRow is one exported line of the monthly report.
type MonthlyRow struct {
	Month     string
	Deposits  core.Money
	Withdraws core.Money
	Profit    core.Money
}

// Writer replaces a user's monthly report and returns a reference to where it was written.
type Writer interface {
	WriteMonthly(ctx context.Context, userID string, rows []MonthlyRow) (ref string, err error)
}

// Header is the column header every writer emits first.
var Header = []string{"Month", "Deposits", "Withdraws", "Profit"}

// MonthlyRows flattens st.Monthly into rows ordered by month.
func MonthlyRows(st core.GlobalFinancialState) []MonthlyRow {
	rows := make([]MonthlyRow, 0, len(st.Monthly))
	for month, b := range st.Monthly {
		rows = append(rows, MonthlyRow{
			Month:     month,
			Deposits:  b.Deposits,
			Withdraws: b.Withdraws,
			Profit:    b.Profit,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Month < rows[j].Month })
	return rows
}

// Values renders rows, header included, as plain strings.
func Values(rows []MonthlyRow) [][]string {
	out := make([][]string, 0, len(rows)+1)
	out = append(out, Header)
	for _, r := range rows {
		out = append(out, []string{r.Month, r.Deposits.String(), r.Withdraws.String(), r.Profit.String()})
	}
	return out
}
