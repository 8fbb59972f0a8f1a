package services

import (
	"context"
	"fmt"
	"strings"

	"optify/internal/cache"
	"optify/internal/core"
	"optify/internal/finance"
	applog "optify/internal/log"
	"optify/internal/storage"
)

// Recalculations is the slice of RecalcService that writes depend on.
type Recalculations interface {
	Request(ctx context.Context, userID, reason string)
}

type TransactionStore interface {
	storage.TransactionWriter
	storage.TransactionReader
}

// TransactionService records transactions and keeps derived views fresh.
type TransactionService struct {
	store   TransactionStore
	recalc  Recalculations
	summary cache.Cache[core.Bucket]
}

// NewTransactionService wires the service. summary may be nil to disable caching.
func NewTransactionService(store TransactionStore, recalc Recalculations, summary cache.Cache[core.Bucket]) *TransactionService {
	return &TransactionService{
		store:   store,
		recalc:  recalc,
		summary: summary,
	}
}

// Create validates and stores t, then requests a recompute for its owner.
func (s *TransactionService) Create(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if strings.TrimSpace(t.UserID) == "" {
		return core.Transaction{}, core.ErrEmptyUser
	}
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	saved, err := s.store.AddTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.changed(ctx, saved.UserID, "transaction created")
	return saved, nil
}

func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.DeleteTransaction(ctx, userID, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	s.changed(ctx, userID, "transaction deleted")
	return nil
}

func (s *TransactionService) Get(ctx context.Context, userID, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, userID, id)
}

func (s *TransactionService) List(ctx context.Context, userID string, f storage.Filter) ([]core.Transaction, error) {
	if userID == "" {
		return nil, core.ErrEmptyUser
	}
	txs, err := s.store.ListTransactions(ctx, userID, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Summary aggregates the filtered transactions, served from cache when possible.
func (s *TransactionService) Summary(ctx context.Context, userID string, f storage.Filter) (core.Bucket, error) {
	key := summaryKey(userID, f)
	if s.summary != nil {
		if b, ok := s.summary.Get(key); ok {
			return b, nil
		}
	}

	txs, err := s.List(ctx, userID, f)
	if err != nil {
		return core.Bucket{}, err
	}
	b := finance.Summarize(txs)
	applog.FromContext(ctx).WithComponent(applog.ComponentTransaction).DebugContext(ctx, "Summary computed",
		applog.FieldUserID, userID,
		applog.FieldOperation, applog.OpSummary,
		"transactions", len(txs))

	if s.summary != nil {
		s.summary.Set(key, b)
	}
	return b, nil
}

func (s *TransactionService) changed(ctx context.Context, userID, reason string) {
	if s.summary != nil {
		if n := s.summary.DeletePrefix(summaryPrefix(userID)); n > 0 {
			applog.FromContext(ctx).WithComponent(applog.ComponentCache).DebugContext(ctx, "Invalidated cached summaries",
				applog.FieldUserID, userID,
				"entries", n)
		}
	}
	if s.recalc == nil {
		applog.FromContext(ctx).WithComponent(applog.ComponentTransaction).WarnContext(ctx, "Recalculation not configured, skipping request",
			applog.FieldUserID, userID)
		return
	}
	s.recalc.Request(ctx, userID, reason)
}

func summaryPrefix(userID string) string {
	return "summary:" + userID + ":"
}

func summaryKey(userID string, f storage.Filter) string {
	return fmt.Sprintf("%sdate=%s|month=%s|employee=%s|platform=%s",
		summaryPrefix(userID), f.Date, f.Month, f.EmployeeID, f.PlatformID)
}
