package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	applog "bilancio/internal/log"
)

// ForecastProvider runs the projection engine over stored months.
type ForecastProvider interface {
	Daily(ctx context.Context, year, month int) ([]core.SimulationPoint, error)
	Weekly(ctx context.Context, year, month int) ([]core.WeeklyPoint, error)
	Categories(ctx context.Context, year, month int) (core.CategoryBreakdown, error)
}

// RuleEditor applies rule edits and their propagation.
type RuleEditor interface {
	SaveRule(ctx context.Context, year, month int, rule core.Rule) (bool, error)
	DeleteRule(ctx context.Context, year, month int, ruleID string) (bool, error)
}

// MonthStore reads and writes a month's stored inputs.
type MonthStore interface {
	ListRules(ctx context.Context, year, month int) ([]core.Rule, error)
	ListObserved(ctx context.Context, year, month int) ([]core.ObservedBalance, error)
	UpsertObserved(ctx context.Context, year, month int, o core.ObservedBalance) error
	DeleteObserved(ctx context.Context, year, month, day int) (bool, error)
	GetStartBalance(ctx context.Context, year, month int) (decimal.Decimal, error)
	SetStartBalance(ctx context.Context, year, month int, balance decimal.Decimal) error
}

// Exporter writes a forecast snapshot to an external spreadsheet.
type Exporter interface {
	ExportMonth(ctx context.Context, year, month int, points []core.SimulationPoint) (string, error)
}

type Server struct {
	http.Server
	forecasts   ForecastProvider
	rules       RuleEditor
	store       MonthStore
	exporter    Exporter // nil when export is not configured
	rateLimiter *rateLimiter
	logs        *applog.StructuredLogger

	// Forecast responses are cached per month and invalidated on writes.
	dailyCache   *cache.LRUCache[[]core.SimulationPoint]
	weeklyCache  *cache.LRUCache[[]core.WeeklyPoint]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// Options tunes the server's caches.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
}

// NewServer configures routes and caches, returning a ready-to-run server.
func NewServer(addr string, forecasts ForecastProvider, rules RuleEditor, store MonthStore, exporter Exporter, opts Options) *Server {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 100
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	mux := http.NewServeMux()
	logger := applog.New(applog.Config{Component: applog.ComponentHTTP})

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: applog.Middleware(logger)(mux),
		},
		forecasts:    forecasts,
		rules:        rules,
		store:        store,
		exporter:     exporter,
		rateLimiter:  newRateLimiter(),
		logs:         applog.NewStructuredLogger(logger),
		dailyCache:   cache.NewLRUCache[[]core.SimulationPoint](opts.CacheSize, opts.CacheTTL),
		weeklyCache:  cache.NewLRUCache[[]core.WeeklyPoint](opts.CacheSize, opts.CacheTTL),
		cacheManager: cache.NewManager(),
	}

	s.cacheManager.Register(s.dailyCache)
	s.cacheManager.Register(s.weeklyCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/api/forecast", s.withSecurityHeaders(s.handleForecastDaily))
	mux.HandleFunc("/api/forecast/weekly", s.withSecurityHeaders(s.handleForecastWeekly))
	mux.HandleFunc("/api/forecast/categories", s.withSecurityHeaders(s.handleForecastCategories))
	mux.HandleFunc("/api/forecast/export", s.withSecurityHeaders(s.handleForecastExport))
	mux.HandleFunc("/api/rules", s.withSecurityHeaders(s.handleRules))
	mux.HandleFunc("/api/balances", s.withSecurityHeaders(s.handleBalances))
	mux.HandleFunc("/api/balances/start", s.withSecurityHeaders(s.handleStartBalance))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.cacheManager != nil {
			s.cacheManager.Stop()
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request logging.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		s.logs.LogHTTPStart(ctx, r, clientIP)

		// Rate limit mutating requests
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				applog.FieldClientIP, clientIP,
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logs.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Simple in-memory rate limiter
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

// startCleanup runs periodic cleanup to remove stale client entries
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

// cleanupStaleEntries removes client entries older than 10 minutes
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

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}
