package finance

import (
	"strings"
	"time"

	"optify/internal/core"
)

// period holds the string keys of "now" used to place a transaction in the
// today/week/month/year totals.
type period struct {
	today     string
	month     string // YYYY-MM
	year      string // YYYY
	weekStart time.Time
	weekEnd   time.Time
}

func newPeriod(now time.Time) period {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	// Weeks start on Monday.
	offset := (int(day.Weekday()) + 6) % 7
	start := day.AddDate(0, 0, -offset)
	return period{
		today:     day.Format(core.DateLayout),
		month:     day.Format("2006-01"),
		year:      day.Format("2006"),
		weekStart: start,
		weekEnd:   start.AddDate(0, 0, 7),
	}
}

func (p period) inWeek(date string) bool {
	d, err := time.Parse(core.DateLayout, strings.TrimSpace(date))
	if err != nil {
		return false
	}
	return !d.Before(p.weekStart) && d.Before(p.weekEnd)
}

// MonthKey returns the YYYY-MM prefix of a date, or "" when the date is too
// short to carry one.
func MonthKey(date string) string {
	date = strings.TrimSpace(date)
	if len(date) < 7 {
		return ""
	}
	return date[:7]
}

type tallies map[string]*Tally

func (ts tallies) add(key string, tx core.Transaction) {
	if key == "" {
		return
	}
	t, ok := ts[key]
	if !ok {
		t = &Tally{}
		ts[key] = t
	}
	t.Add(tx)
}

func (ts tallies) buckets() map[string]core.Bucket {
	out := make(map[string]core.Bucket, len(ts))
	for k, t := range ts {
		out[k] = t.Bucket()
	}
	return out
}

// BuildState recomputes the full aggregate for one user. now fixes the
// today/week/month/year windows (in UTC) and version orders the result
// against earlier snapshots.
func BuildState(userID string, txs []core.Transaction, now time.Time, version int64) core.GlobalFinancialState {
	p := newPeriod(now.UTC())

	var all, today, week, month, year Tally
	daily := tallies{}
	monthly := tallies{}
	employees := tallies{}
	platforms := tallies{}

	for _, tx := range txs {
		all.Add(tx)
		employees.add(tx.EmployeeID, tx)
		platforms.add(tx.PlatformID, tx)

		date := strings.TrimSpace(tx.Date)
		if date == "" {
			continue
		}
		daily.add(date, tx)
		monthly.add(MonthKey(date), tx)

		if IsSameDate(date, p.today) {
			today.Add(tx)
		}
		if p.inWeek(date) {
			week.Add(tx)
		}
		if strings.HasPrefix(date, p.month+"-") {
			month.Add(tx)
		}
		if strings.HasPrefix(date, p.year+"-") {
			year.Add(tx)
		}
	}

	return core.GlobalFinancialState{
		UserID:     userID,
		Version:    version,
		ComputedAt: now.UTC(),
		Totals: core.Totals{
			Deposits:    all.Deposits(),
			Withdraws:   all.Withdraws(),
			Profit:      all.Profit(),
			ProfitToday: today.Profit(),
			ProfitWeek:  week.Profit(),
			ProfitMonth: month.Profit(),
			ProfitYear:  year.Profit(),
		},
		Daily:     daily.buckets(),
		Monthly:   monthly.buckets(),
		Employees: employees.buckets(),
		Platforms: platforms.buckets(),
	}
}
