package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/NikhilTanwar48/backend-global-sales/internal/cache"
	"github.com/NikhilTanwar48/backend-global-sales/internal/sales"
)

// Server exposes the sales dashboard API. Every aggregation endpoint is
// backed by a predicate-keyed LRU cache; the caches are registered with
// the provided manager so dataset refreshes can purge them.
type Server struct {
	http.Server
	store          sales.Store
	datasetPath    string
	frontendOrigin string
	rateLimiter    *rateLimiter

	summaryCache  *cache.LRU[sales.Summary]
	categoryCache *cache.LRU[[]sales.CategorySales]
	regionCache   *cache.LRU[[]sales.RegionSales]
	trendCache    *cache.LRU[map[string][]sales.MonthlySales]

	shutdownOnce sync.Once
}

// Options carries the server knobs that are not wiring.
type Options struct {
	FrontendOrigin string
	DatasetCSVPath string
	CacheSize      int
	CacheTTL       time.Duration
	Caches         *cache.Manager
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

// NewServer configures routes and caches, returning a ready-to-run server.
func NewServer(addr string, store sales.Store, opts Options) *Server {
	mux := http.NewServeMux()

	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:          store,
		datasetPath:    opts.DatasetCSVPath,
		frontendOrigin: opts.FrontendOrigin,
		rateLimiter:    newRateLimiter(),
		summaryCache:   cache.NewLRU[sales.Summary](cacheSize, cacheTTL),
		categoryCache:  cache.NewLRU[[]sales.CategorySales](cacheSize, cacheTTL),
		regionCache:    cache.NewLRU[[]sales.RegionSales](cacheSize, cacheTTL),
		trendCache:     cache.NewLRU[map[string][]sales.MonthlySales](cacheSize, cacheTTL),
	}

	if opts.Caches != nil {
		opts.Caches.Register(s.summaryCache)
		opts.Caches.Register(s.categoryCache)
		opts.Caches.Register(s.regionCache)
		opts.Caches.Register(s.trendCache)
	}

	mux.HandleFunc("/api/health", s.api(s.handleHealth))
	mux.HandleFunc("/api/metadata", s.api(s.handleMetadata))
	mux.HandleFunc("/api/summary", s.api(s.handleSummary))
	mux.HandleFunc("/api/sales_by_category", s.api(s.handleSalesByCategory))
	mux.HandleFunc("/api/sales_by_region", s.api(s.handleSalesByRegion))
	mux.HandleFunc("/api/monthly_trend", s.api(s.handleMonthlyTrend))
	mux.HandleFunc("/api/download", s.api(s.handleDownload))
	mux.HandleFunc("/api/predict", s.api(s.handlePredict))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// api wraps a handler with CORS, security headers, rate limiting and
// request logging.
func (s *Server) api(next http.HandlerFunc) http.HandlerFunc {
	return s.withCORS(s.withSecurityHeaders(next))
}

// withCORS answers preflight requests and stamps the configured frontend
// origin on every response.
func (s *Server) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.frontendOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", s.frontendOrigin)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
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

		// Generate request ID for tracing
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.Header.Get("User-Agent"))

		// Apply rate limiting to POST requests (aggregation queries)
		if r.Method == http.MethodPost && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Create a custom response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
