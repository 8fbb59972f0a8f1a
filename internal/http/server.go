package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "optify/internal/log"
	"optify/internal/services"
	"optify/internal/state"
	"optify/internal/storage"
)

const (
	defaultKeepAlive    = 15 * time.Second
	rateLimiterCleanup  = 5 * time.Minute
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
)

// Deps are the collaborators the API is served from. Reports may be nil, in
// which case the export endpoint answers 503.
type Deps struct {
	Transactions      *services.TransactionService
	Recalc            *services.RecalcService
	Reports           *services.ReportService
	States            storage.StateStore
	Hub               *state.Hub
	Logger            *applog.Logger
	RequestsPerMinute int
}

type Server struct {
	http.Server

	transactions *services.TransactionService
	recalc       *services.RecalcService
	reports      *services.ReportService
	states       storage.StateStore
	hub          *state.Hub

	logger      *applog.Logger
	httpLog     *applog.StructuredLogger
	rateLimiter *rateLimiter
	keepAlive   time.Duration

	// done is closed when Shutdown starts so open streams can end.
	done         chan struct{}
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       defaultReadTimeout,
			WriteTimeout:      defaultWriteTimeout,
			IdleTimeout:       60 * time.Second,
		},
		transactions: deps.Transactions,
		recalc:       deps.Recalc,
		reports:      deps.Reports,
		states:       deps.States,
		hub:          deps.Hub,
		logger:       logger,
		httpLog:      applog.NewStructuredLogger(logger),
		rateLimiter:  newRateLimiter(deps.RequestsPerMinute),
		keepAlive:    defaultKeepAlive,
		done:         make(chan struct{}),
	}
	s.RegisterOnShutdown(func() { close(s.done) })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)

	mux.HandleFunc("POST /api/users/{uid}/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/users/{uid}/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/users/{uid}/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("DELETE /api/users/{uid}/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/users/{uid}/summary", s.handleSummary)

	mux.HandleFunc("GET /api/users/{uid}/financial-state", s.handleGetState)
	mux.HandleFunc("POST /api/users/{uid}/financial-state/refresh", s.handleRefreshState)
	mux.HandleFunc("GET /api/users/{uid}/financial-state/stream", s.handleStateStream)

	mux.HandleFunc("POST /api/users/{uid}/reports/monthly", s.handleExportMonthly)

	var h http.Handler = mux
	h = s.withSecurityHeaders(h)
	h = s.withRateLimit(h)
	h = s.withRequestLogging(h)
	h = applog.RequestIDMiddleware(requestID)(h)
	h = applog.Middleware(logger)(h)
	s.Handler = h

	go s.rateLimiter.startCleanup(rateLimiterCleanup)
	return s
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w.Header())
		next.ServeHTTP(w, r)
	})
}

// withRateLimit throttles writes per client IP. Reads are not limited.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodDelete {
			clientIP := extractClientIP(r)
			if !s.rateLimiter.allow(clientIP) {
				applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
					applog.FieldClientIP, clientIP,
					applog.FieldMethod, r.Method,
					applog.FieldPath, r.URL.Path)
				w.Header().Set("Retry-After", s.rateLimiter.retryAfter(clientIP))
				writeJSON(w, http.StatusTooManyRequests, errorResponse{
					Error:     "rate limit exceeded, try again later",
					RequestID: w.Header().Get("X-Request-ID"),
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.httpLog.LogHTTPEnd(r.Context(), r, rw.statusCode, time.Since(start).Milliseconds(), extractClientIP(r))
	})
}

// responseWriter captures the status code. Unwrap keeps
// http.ResponseController working for streaming handlers.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
