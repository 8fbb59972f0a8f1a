package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"optify/internal/core"
	applog "optify/internal/log"
	"optify/internal/storage"
)

var errBadRequest = errors.New("bad request")

// badRequest marks err as a client error so it maps to 400.
func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

var validationErrors = []error{
	errBadRequest,
	core.ErrInvalidAmount,
	core.ErrInvalidType,
	core.ErrInvalidCategory,
	core.ErrInvalidDate,
	core.ErrDescriptionTooLong,
	core.ErrEmptyUser,
}

func errorStatus(err error) int {
	if errors.Is(err, core.ErrNotFound) {
		return http.StatusNotFound
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps err to a status code and logs server-side failures.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status >= 500 {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			applog.FieldError, err.Error(),
			applog.FieldPath, r.URL.Path)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg, RequestID: w.Header().Get("X-Request-ID")})
}

// parseFilter reads the listing filters from the query string.
func parseFilter(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	f := storage.Filter{
		Date:       strings.TrimSpace(q.Get("date")),
		Month:      strings.TrimSpace(q.Get("month")),
		EmployeeID: sanitizeInput(q.Get("employee")),
		PlatformID: sanitizeInput(q.Get("platform")),
	}
	if f.Month != "" {
		if _, err := time.Parse("2006-01", f.Month); err != nil {
			return storage.Filter{}, badRequest("month must be YYYY-MM, got %q", f.Month)
		}
	}
	return f, nil
}

// sanitizeInput trims whitespace and drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// requestID reuses a well-formed inbound X-Request-ID or mints a new one.
func requestID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-Request-ID")); id != "" && len(id) <= 64 && sanitizeInput(id) == id {
		return id
	}
	return generateRequestID()
}

const maxUserIDLen = 128

// pathUser returns the {uid} path segment.
func pathUser(r *http.Request) (string, error) {
	uid := sanitizeInput(r.PathValue("uid"))
	if uid == "" {
		return "", core.ErrEmptyUser
	}
	if len(uid) > maxUserIDLen {
		return "", badRequest("user id longer than %d characters", maxUserIDLen)
	}
	return uid, nil
}
