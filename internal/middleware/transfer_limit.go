package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// TransferLimit 对上传、下载与导出按调用方做固定窗口限流。
// limit 或 window 非正数时不限流。
func TransferLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newWindowLimiter(limit, window, time.Now)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryIn := l.allow(callerOrAddr(r))
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(int(retryIn.Round(time.Second).Seconds())))
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "transfer rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type windowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*callerWindow
}

type callerWindow struct {
	used    int
	resetAt time.Time
}

func newWindowLimiter(limit int, window time.Duration, now func() time.Time) *windowLimiter {
	return &windowLimiter{limit: limit, window: window, now: now, windows: map[string]*callerWindow{}}
}

// allow 在拒绝时返回距离窗口重置的时间。
func (l *windowLimiter) allow(caller string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	cw, ok := l.windows[caller]
	if !ok || !now.Before(cw.resetAt) {
		if len(l.windows) >= 1024 {
			l.evictExpired(now)
		}
		l.windows[caller] = &callerWindow{used: 1, resetAt: now.Add(l.window)}
		return true, 0
	}
	if cw.used >= l.limit {
		return false, cw.resetAt.Sub(now)
	}
	cw.used++
	return true, 0
}

func (l *windowLimiter) evictExpired(now time.Time) {
	for caller, cw := range l.windows {
		if !now.Before(cw.resetAt) {
			delete(l.windows, caller)
		}
	}
}

// callerOrAddr 优先使用鉴权后的调用方标识，其次是客户端地址。
func callerOrAddr(r *http.Request) string {
	if id := CallerID(r.Context()); id != "" {
		return id
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
