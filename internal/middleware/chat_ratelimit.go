package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/medivuno/medivuno-backend/pkg/clientip"
)

// Chat read-path rate limit: per-IP, different limits for auth vs anonymous.
// Auth: 30 req/min, burst 20. Anonymous: 10 req/min, burst 5.
// Prevents 429 from rapid conversation switching while blocking abuse.

const (
	chatReadAuthRPS    = 0.5 // 30/min
	chatReadAuthBurst  = 20
	chatReadAnonRPS    = 0.17 // ~10/min
	chatReadAnonBurst  = 5
	chatReadCleanupMin = 5 * time.Minute
	chatReadLimiterTTL = 30 * time.Minute
)

type chatLimiterEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

var (
	chatReadEntries   = make(map[string]*chatLimiterEntry)
	chatReadEntriesMu sync.Mutex
	chatReadCleanup   bool
)

func getChatReadLimiter(ip string, authenticated bool) *rate.Limiter {
	key := "anon:" + ip
	if authenticated {
		key = "auth:" + ip
	}

	chatReadEntriesMu.Lock()
	defer chatReadEntriesMu.Unlock()
	startChatReadCleanupOnce()

	e, ok := chatReadEntries[key]
	if !ok {
		if authenticated {
			e = &chatLimiterEntry{
				limiter: rate.NewLimiter(rate.Limit(chatReadAuthRPS), chatReadAuthBurst),
				lastUse: time.Now(),
			}
		} else {
			e = &chatLimiterEntry{
				limiter: rate.NewLimiter(rate.Limit(chatReadAnonRPS), chatReadAnonBurst),
				lastUse: time.Now(),
			}
		}
		chatReadEntries[key] = e
	}
	e.lastUse = time.Now()
	return e.limiter
}

func startChatReadCleanupOnce() {
	if chatReadCleanup {
		return
	}
	chatReadCleanup = true
	go func() {
		ticker := time.NewTicker(chatReadCleanupMin)
		defer ticker.Stop()
		for range ticker.C {
			chatReadEntriesMu.Lock()
			now := time.Now()
			for k, e := range chatReadEntries {
				if now.Sub(e.lastUse) > chatReadLimiterTTL {
					delete(chatReadEntries, k)
				}
			}
			chatReadEntriesMu.Unlock()
		}
	}()
}

// chatReadIsAuthenticated checks for a Bearer token in the Authorization header.
func chatReadIsAuthenticated(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && len(strings.TrimPrefix(auth, "Bearer ")) > 0
}

// chatReadPaths are the GET endpoints covered by this limiter.
var chatReadPaths = []string{
	"/api/chat/history",
	"/api/chat/conversations",
}

func isChatReadPath(path string) bool {
	for _, p := range chatReadPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// ChatReadRateLimit rate-limits the chat read endpoints (history and
// conversation listing). Auth: 30/min burst 20. Anonymous: 10/min burst 5.
// Returns 429 with rate-limit headers when exceeded.
func ChatReadRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || !isChatReadPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientip.RealClientIP(r)
		auth := chatReadIsAuthenticated(r)
		limiter := getChatReadLimiter(ip, auth)

		limit := chatReadAnonBurst
		if auth {
			limit = chatReadAuthBurst
		}

		if !limiter.Allow() {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"message":"Too many chat requests. Please slow down."}`))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limit-1)) // Best-effort for debugging
		next.ServeHTTP(w, r)
	})
}
