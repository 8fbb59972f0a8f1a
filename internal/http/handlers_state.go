package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"optify/internal/core"
	applog "optify/internal/log"
	"optify/internal/state"
)

var errExportDisabled = errors.New("report export is not configured")

// pendingResponse is returned while a user's first snapshot is being built.
type pendingResponse struct {
	UserID    string       `json:"user_id"`
	Status    state.Status `json:"status"`
	IsLoading bool         `json:"is_loading"`
}

// streamEvent is the data line of every "state" event on the live stream.
type streamEvent struct {
	Status    state.Status               `json:"status"`
	IsLoading bool                       `json:"is_loading"`
	Data      *core.GlobalFinancialState `json:"data"`
	Error     string                     `json:"error,omitempty"`
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	st, err := s.states.GetState(r.Context(), userID)
	if errors.Is(err, core.ErrNotFound) {
		s.recalc.Request(r.Context(), userID, "missing")
		writeJSON(w, http.StatusAccepted, pendingResponse{
			UserID:    userID,
			Status:    state.StatusMissing,
			IsLoading: true,
		})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRefreshState(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.recalc.Recalculate(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleStateStream pushes the user's financial state as Server-Sent Events
// until the client goes away or the server shuts down. Only the latest view
// is kept, so a slow client skips intermediate states.
func (s *Server) handleStateStream(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	logger := applog.FromContext(ctx)
	rc := http.NewResponseController(w)
	// Streams outlive the server's read and write timeouts.
	if err := rc.SetReadDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.WarnContext(ctx, "Failed to clear read deadline for stream", applog.FieldError, err.Error())
	}
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.WarnContext(ctx, "Failed to clear write deadline for stream", applog.FieldError, err.Error())
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.ErrorContext(ctx, "Streaming not supported", applog.FieldError, err.Error())
		return
	}

	var (
		mu      sync.Mutex
		pending *state.View
	)
	signal := make(chan struct{}, 1)

	reader := state.NewReader(s.hub, s.recalc)
	defer reader.Close()
	reader.OnChange(func(v state.View) {
		mu.Lock()
		pending = &v
		mu.Unlock()
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	reader.SetUser(userID)
	logger.InfoContext(ctx, "State stream opened",
		applog.FieldUserID, userID,
		applog.FieldOperation, applog.OpSubscribe)

	keepAlive := time.NewTicker(s.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.DebugContext(ctx, "State stream closed by client", applog.FieldUserID, userID)
			return
		case <-s.done:
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-signal:
			mu.Lock()
			v := pending
			pending = nil
			mu.Unlock()
			if v == nil {
				continue
			}
			if err := writeStateEvent(w, *v); err != nil {
				logger.DebugContext(ctx, "State stream write failed", applog.FieldError, err.Error())
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeStateEvent(w http.ResponseWriter, v state.View) error {
	ev := streamEvent{Status: v.Status, IsLoading: v.IsLoading, Data: v.Data}
	if v.Err != nil {
		ev.Error = v.Err.Error()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode state event: %w", err)
	}
	if v.Data != nil {
		if _, err := fmt.Fprintf(w, "id: %d\n", v.Data.Version); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: state\ndata: %s\n\n", payload)
	return err
}

func (s *Server) handleExportMonthly(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.reports == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error:     errExportDisabled.Error(),
			RequestID: w.Header().Get("X-Request-ID"),
		})
		return
	}

	res, err := s.reports.ExportMonthly(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Monthly report exported",
		applog.FieldUserID, userID,
		applog.FieldOperation, applog.OpExport,
		applog.FieldVersion, res.Version,
		"ref", res.Ref)
	writeJSON(w, http.StatusOK, res)
}
