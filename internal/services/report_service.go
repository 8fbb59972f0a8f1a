package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"optify/internal/core"
	"optify/internal/report"
	"optify/internal/storage"
)

// ReportService exports financial state snapshots to a report.Writer.
type ReportService struct {
	states storage.StateStore
	recalc *RecalcService
	writer report.Writer
}

// NewReportService wires the exporter. When recalc is set a missing
// snapshot is computed on demand instead of failing.
func NewReportService(states storage.StateStore, recalc *RecalcService, writer report.Writer) *ReportService {
	return &ReportService{states: states, recalc: recalc, writer: writer}
}

// ExportResult describes a finished export.
type ExportResult struct {
	Ref     string `json:"ref"`
	Months  int    `json:"months"`
	Version int64  `json:"version"`
}

func (s *ReportService) ExportMonthly(ctx context.Context, userID string) (ExportResult, error) {
	if userID == "" {
		return ExportResult{}, core.ErrEmptyUser
	}

	st, err := s.states.GetState(ctx, userID)
	if errors.Is(err, core.ErrNotFound) && s.recalc != nil {
		slog.InfoContext(ctx, "No financial state yet, computing before export", "user_id", userID)
		st, err = s.recalc.Recalculate(ctx, userID)
	}
	if err != nil {
		return ExportResult{}, fmt.Errorf("load financial state: %w", err)
	}

	rows := report.MonthlyRows(*st)
	ref, err := s.writer.WriteMonthly(ctx, userID, rows)
	if err != nil {
		return ExportResult{}, fmt.Errorf("write monthly report: %w", err)
	}

	return ExportResult{Ref: ref, Months: len(rows), Version: st.Version}, nil
}
