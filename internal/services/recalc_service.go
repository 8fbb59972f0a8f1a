package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"optify/internal/core"
	"optify/internal/finance"
	applog "optify/internal/log"
	"optify/internal/storage"
)

// RecalcStore is what a recompute reads from and writes to.
type RecalcStore interface {
	storage.TransactionReader
	storage.StateStore
}

// Publisher hands recompute requests to an out-of-process worker.
type Publisher interface {
	PublishRecalculate(ctx context.Context, userID, reason string) error
}

// Notifier is told after a new snapshot has been stored.
type Notifier interface {
	Notify(ctx context.Context, userID string)
}

// RecalcService rebuilds GlobalFinancialState documents from the transaction store.
type RecalcService struct {
	store     RecalcStore
	publisher Publisher
	notifier  Notifier
	now       func() time.Time

	group       singleflight.Group
	lastVersion atomic.Int64
	inflight    sync.WaitGroup
}

// NewRecalcService wires a recompute service. A nil publisher makes every
// request run in-process; a nil notifier skips live fan-out.
func NewRecalcService(store RecalcStore, publisher Publisher, notifier Notifier) *RecalcService {
	return &RecalcService{
		store:     store,
		publisher: publisher,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Recalculate rebuilds and stores userID's snapshot, returning whichever
// snapshot is current afterwards. Concurrent calls for the same user share one
// run as long as that run started after the call was made.
func (s *RecalcService) Recalculate(ctx context.Context, userID string) (*core.GlobalFinancialState, error) {
	if userID == "" {
		return nil, core.ErrEmptyUser
	}

	requested := s.now().UnixNano()
	for {
		v, err, shared := s.group.Do(userID, func() (any, error) {
			return s.recalculate(context.WithoutCancel(ctx), userID)
		})
		if err != nil {
			return nil, err
		}
		st := v.(*core.GlobalFinancialState)
		// A shared run that started before this call may have missed its writes.
		if shared && st.Version < requested {
			recalcLogger(ctx).DebugContext(ctx, "Joined recalculation predates request, running again",
				applog.FieldUserID, userID)
			continue
		}
		return st, nil
	}
}

func (s *RecalcService) recalculate(ctx context.Context, userID string) (*core.GlobalFinancialState, error) {
	started := s.now()
	version := s.nextVersion(started)

	txs, err := s.store.ListTransactions(ctx, userID, storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", userID, err)
	}

	st := finance.BuildState(userID, txs, started, version)

	stored, err := s.store.PutState(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("store financial state for %s: %w", userID, err)
	}

	if !stored {
		recalcLogger(ctx).InfoContext(ctx, "Discarded stale financial state",
			applog.FieldUserID, userID,
			applog.FieldOperation, applog.OpRecalculate,
			applog.FieldVersion, version)
		current, err := s.store.GetState(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("read financial state for %s: %w", userID, err)
		}
		return current, nil
	}

	recalcLogger(ctx).InfoContext(ctx, "Financial state recalculated",
		applog.FieldUserID, userID,
		applog.FieldOperation, applog.OpRecalculate,
		applog.FieldVersion, version,
		"transactions", len(txs),
		"profit", st.Totals.Profit.String(),
		applog.FieldDuration, time.Since(started).Milliseconds())

	if s.notifier != nil {
		s.notifier.Notify(ctx, userID)
	}
	return &st, nil
}

// nextVersion derives a version from the compute start time, forced to be
// strictly increasing within this process.
func (s *RecalcService) nextVersion(started time.Time) int64 {
	for {
		last := s.lastVersion.Load()
		v := started.UnixNano()
		if v <= last {
			v = last + 1
		}
		if s.lastVersion.CompareAndSwap(last, v) {
			return v
		}
	}
}

// Trigger asks for a recompute and reports whether the request was accepted.
// With a publisher the request is queued; otherwise it runs to completion here.
func (s *RecalcService) Trigger(ctx context.Context, userID, reason string) error {
	if s.publisher != nil {
		if err := s.publisher.PublishRecalculate(ctx, userID, reason); err != nil {
			return fmt.Errorf("publish recalculate: %w", err)
		}
		return nil
	}
	_, err := s.Recalculate(ctx, userID)
	return err
}

// Request schedules a recompute without waiting for it. Failures are logged.
func (s *RecalcService) Request(ctx context.Context, userID, reason string) {
	if s.publisher != nil {
		if err := s.publisher.PublishRecalculate(ctx, userID, reason); err != nil {
			logRequestError(ctx, "Failed to publish recalculate request", err, userID, reason)
		}
		return
	}

	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if _, err := s.Recalculate(bg, userID); err != nil {
			logRequestError(bg, "Background recalculation failed", err, userID, reason)
		}
	}()
}

// Wait blocks until background recomputes started by Request have finished.
func (s *RecalcService) Wait() {
	s.inflight.Wait()
}

func recalcLogger(ctx context.Context) *applog.Logger {
	return applog.FromContext(ctx).WithComponent(applog.ComponentRecalc)
}

func logRequestError(ctx context.Context, msg string, err error, userID, reason string) {
	applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, msg, err,
		applog.ComponentRecalc, applog.OpRecalculate,
		applog.NewFields().WithUser(userID).WithReason(reason))
}
