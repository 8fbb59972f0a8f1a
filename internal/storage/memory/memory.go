// Package memory is an in-process implementation of the storage ports.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"optify/internal/core"
	"optify/internal/finance"
	"optify/internal/storage"
)

type Store struct {
	mu     sync.Mutex
	txs    map[string][]core.Transaction // by user
	states map[string]core.GlobalFinancialState
	now    func() time.Time
}

var _ storage.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		txs:    make(map[string][]core.Transaction),
		states: make(map[string]core.GlobalFinancialState),
		now:    time.Now,
	}
}

func (s *Store) AddTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	if t.UserID == "" {
		return core.Transaction{}, core.ErrEmptyUser
	}
	t = t.Normalize()
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[t.UserID] = append(s.txs[t.UserID], t)
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txs[userID] {
		if t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.txs[userID]
	for i, t := range list {
		if t.ID == id {
			s.txs[userID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) ListTransactions(_ context.Context, userID string, f storage.Filter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.txs[userID] {
		if matches(t, f) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func matches(t core.Transaction, f storage.Filter) bool {
	if f.Date != "" && !finance.IsSameDate(t.Date, f.Date) {
		return false
	}
	if f.Month != "" && !strings.HasPrefix(t.Date, strings.TrimSpace(f.Month)+"-") {
		return false
	}
	if f.EmployeeID != "" && t.EmployeeID != f.EmployeeID {
		return false
	}
	if f.PlatformID != "" && t.PlatformID != f.PlatformID {
		return false
	}
	return true
}

func (s *Store) GetState(_ context.Context, userID string) (*core.GlobalFinancialState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		return nil, fmt.Errorf("financial state for %s: %w", userID, core.ErrNotFound)
	}
	return &st, nil
}

func (s *Store) PutState(_ context.Context, st core.GlobalFinancialState) (bool, error) {
	if st.UserID == "" {
		return false, core.ErrEmptyUser
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.states[st.UserID]; ok && cur.Version >= st.Version {
		return false, nil
	}
	s.states[st.UserID] = st
	return true, nil
}

func (s *Store) StateVersions(_ context.Context) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.states))
	for uid, st := range s.states {
		out[uid] = st.Version
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
