// Package worker consumes recompute requests and rebuilds financial state.
package worker

import (
	"context"
	"fmt"
	"time"

	"optify/internal/amqp"
	"optify/internal/core"
	applog "optify/internal/log"
)

// Recalculator rebuilds one user's snapshot.
type Recalculator interface {
	Recalculate(ctx context.Context, userID string) (*core.GlobalFinancialState, error)
}

// Consumer delivers recompute messages to a handler until ctx is done.
type Consumer interface {
	ConsumeRecalculate(ctx context.Context, handler amqp.Handler) error
}

type RecalcWorker struct {
	recalc   Recalculator
	consumer Consumer
}

func NewRecalcWorker(recalc Recalculator, consumer Consumer) *RecalcWorker {
	return &RecalcWorker{
		recalc:   recalc,
		consumer: consumer,
	}
}

// HandleRecalculate processes a single recompute request.
func (w *RecalcWorker) HandleRecalculate(ctx context.Context, msg *amqp.RecalculateMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	logger := applog.FromContext(ctx).WithComponent(applog.ComponentWorker)
	logger.InfoContext(ctx, "Processing recalculate request",
		applog.FieldRequestID, msg.RequestID,
		applog.FieldUserID, msg.UserID,
		applog.FieldReason, msg.Reason,
		"queued_for", time.Since(msg.Timestamp).Round(time.Millisecond))

	st, err := w.recalc.Recalculate(ctx, msg.UserID)
	if err != nil {
		return fmt.Errorf("recalculate %s: %w", msg.UserID, err)
	}

	logger.InfoContext(ctx, "Recalculate request done",
		applog.FieldRequestID, msg.RequestID,
		applog.FieldUserID, msg.UserID,
		applog.FieldVersion, st.Version)
	return nil
}

// Run consumes the queue until ctx is cancelled.
func (w *RecalcWorker) Run(ctx context.Context) error {
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentWorker)
	logger.InfoContext(ctx, "Recalc worker started")
	err := w.consumer.ConsumeRecalculate(ctx, w.HandleRecalculate)
	if ctx.Err() != nil {
		logger.InfoContext(ctx, "Recalc worker stopped")
		return nil
	}
	return err
}
