package core

import "time"

// Bucket is the profit/deposit/withdraw triple reported for any grouping.
type Bucket struct {
	Profit    Money `json:"profit"`
	Deposits  Money `json:"deposits"`
	Withdraws Money `json:"withdraws"`
}

type Totals struct {
	Deposits    Money `json:"deposits"`
	Withdraws   Money `json:"withdraws"`
	Profit      Money `json:"profit"`
	ProfitToday Money `json:"profit_today"`
	ProfitWeek  Money `json:"profit_week"`
	ProfitMonth Money `json:"profit_month"`
	ProfitYear  Money `json:"profit_year"`
}

// GlobalFinancialState is the precomputed per-user aggregate. Version orders
// snapshots: a snapshot never replaces one with a higher version.
type GlobalFinancialState struct {
	UserID     string            `json:"user_id"`
	Version    int64             `json:"version"`
	ComputedAt time.Time         `json:"computed_at"`
	Totals     Totals            `json:"totals"`
	Daily      map[string]Bucket `json:"daily"`
	Monthly    map[string]Bucket `json:"monthly"`
	Employees  map[string]Bucket `json:"employees"`
	Platforms  map[string]Bucket `json:"platforms"`
}

// NewerThan reports whether s should replace other.
func (s *GlobalFinancialState) NewerThan(other *GlobalFinancialState) bool {
	if s == nil {
		return false
	}
	if other == nil {
		return true
	}
	return s.Version > other.Version
}
