// Package http exposes the JSON REST API: CRUD for payment sources and
// recurring payments, calendar grids, aggregate summaries, upcoming
// payments and the display-currency preference.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shadowlanes/recr-monkey/internal/cache"
	"github.com/shadowlanes/recr-monkey/internal/calendar"
	"github.com/shadowlanes/recr-monkey/internal/core"
	"github.com/shadowlanes/recr-monkey/internal/events"
	"github.com/shadowlanes/recr-monkey/internal/rates"
	"github.com/shadowlanes/recr-monkey/internal/summary"
)

// Store is the persistence surface the handlers need, implemented by
// storage.SQLiteRepository.
type Store interface {
	CreateSource(ctx context.Context, s core.PaymentSource) (core.PaymentSource, error)
	GetSource(ctx context.Context, id string) (core.PaymentSource, error)
	ListSources(ctx context.Context) ([]core.PaymentSource, error)
	UpdateSource(ctx context.Context, s core.PaymentSource) error
	DeleteSource(ctx context.Context, id string) error
	SourceInUse(ctx context.Context, id string) (bool, error)

	CreatePayment(ctx context.Context, p core.RecurringPayment) (core.RecurringPayment, error)
	GetPayment(ctx context.Context, id string) (core.RecurringPayment, error)
	ListPayments(ctx context.Context) ([]core.RecurringPayment, error)
	UpdatePayment(ctx context.Context, p core.RecurringPayment) error
	DeletePayment(ctx context.Context, id string) error

	DisplayCurrency(ctx context.Context) (string, error)
	SetDisplayCurrency(ctx context.Context, code string) error
}

type Server struct {
	http.Server
	store      Store
	aggregator *summary.Aggregator
	converter  *rates.Converter
	publisher  *events.Client // nil when AMQP is not configured

	rateLimiter *rateLimiter

	// Derived-view caches; purged on every write since any payment or
	// source change can reshape every grid and group.
	monthCache   *cache.LRUCache[calendar.MonthGrid]
	yearCache    *cache.LRUCache[[]calendar.MonthGrid]
	summaryCache *cache.LRUCache[summary.Totals]

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer wires routes and caches, returning a ready-to-run server.
func NewServer(addr string, store Store, aggregator *summary.Aggregator, converter *rates.Converter, publisher *events.Client) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:            store,
		aggregator:       aggregator,
		converter:        converter,
		publisher:        publisher,
		rateLimiter:      newRateLimiter(),
		monthCache:       cache.NewLRUCache[calendar.MonthGrid](100, 5*time.Minute),
		yearCache:        cache.NewLRUCache[[]calendar.MonthGrid](20, 5*time.Minute),
		summaryCache:     cache.NewLRUCache[summary.Totals](10, 5*time.Minute),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("/api/payments", s.withMiddleware(s.handlePayments))
	mux.HandleFunc("/api/payments/", s.withMiddleware(s.handlePaymentByID))
	mux.HandleFunc("/api/sources", s.withMiddleware(s.handleSources))
	mux.HandleFunc("/api/sources/", s.withMiddleware(s.handleSourceByID))

	mux.HandleFunc("/api/calendar/month", s.withMiddleware(s.handleMonthCalendar))
	mux.HandleFunc("/api/calendar/year", s.withMiddleware(s.handleYearCalendar))
	mux.HandleFunc("/api/summary", s.withMiddleware(s.handleSummary))
	mux.HandleFunc("/api/upcoming", s.withMiddleware(s.handleUpcoming))
	mux.HandleFunc("/api/settings/currency", s.withMiddleware(s.handleDisplayCurrency))

	return s
}

// withMiddleware adds security headers, rate limiting on writes, request
// IDs and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if isWrite(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

func isWrite(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// invalidateDerivedViews drops every cached grid and summary. Called on
// each successful write.
func (s *Server) invalidateDerivedViews() {
	s.monthCache.Purge()
	s.yearCache.Purge()
	s.summaryCache.Purge()
}

func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleaned := s.monthCache.CleanExpired() +
				s.yearCache.CleanExpired() +
				s.summaryCache.CleanExpired()
			if cleaned > 0 {
				slog.Debug("Cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown stops the cleanup goroutines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Simple in-memory rate limiter: up to 60 write requests per client per
// minute, with periodic stale-entry cleanup.
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]
	if !exists {
		rl.clients[clientIP] = &clientInfo{lastRequest: now, requests: 1}
		return true
	}

	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	client.requests++
	client.lastRequest = now
	return client.requests <= 60
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}
