// Package memory keeps exported reports in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"optify/internal/report"
)

type Writer struct {
	mu      sync.Mutex
	reports map[string][]report.MonthlyRow
	writes  int
}

var _ report.Writer = (*Writer)(nil)

func NewWriter() *Writer {
	return &Writer{reports: make(map[string][]report.MonthlyRow)}
}

func (w *Writer) WriteMonthly(ctx context.Context, userID string, rows []report.MonthlyRow) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reports[userID] = append([]report.MonthlyRow(nil), rows...)
	w.writes++
	return fmt.Sprintf("memory://%s/monthly#%d", userID, w.writes), nil
}

// Rows returns the last report written for userID.
func (w *Writer) Rows(userID string) []report.MonthlyRow {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]report.MonthlyRow(nil), w.reports[userID]...)
}
