package storage

import (
	"context"

	"optify/internal/core"
)

// Filter narrows a transaction listing. Empty fields match everything.
type Filter struct {
	Date       string `json:"date,omitempty"`  // exact YYYY-MM-DD string
	Month      string `json:"month,omitempty"` // YYYY-MM prefix
	EmployeeID string `json:"employee,omitempty"`
	PlatformID string `json:"platform,omitempty"`
}

// Ports for persistence adapters.
type (
	TransactionWriter interface {
		AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, userID, id string) error
	}

	TransactionReader interface {
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, userID string, f Filter) ([]core.Transaction, error)
	}

	// StateStore keeps one GlobalFinancialState document per user.
	StateStore interface {
		// GetState returns core.ErrNotFound when no snapshot exists yet.
		GetState(ctx context.Context, userID string) (*core.GlobalFinancialState, error)
		// PutState stores st unless a snapshot with an equal or higher
		// version is already present. The bool reports whether it was stored.
		PutState(ctx context.Context, st core.GlobalFinancialState) (bool, error)
		// StateVersions returns the current version per user.
		StateVersions(ctx context.Context) (map[string]int64, error)
	}

	Repository interface {
		TransactionWriter
		TransactionReader
		StateStore
		Close() error
	}
)
