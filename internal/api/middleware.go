package api

import (
    "log"
    "net/http"
    "os"
    "strconv"
    "time"

    "golang.org/x/time/rate"

    "mealroutes/internal/config"
    "mealroutes/internal/metrics"
)

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps the mux with logging, Prometheus counters, and a global
// token-bucket rate limit. Websocket upgrades bypass the status recorder's
// hijack limitation by passing the original writer through.
func Middleware(cfg config.Config, next http.Handler) http.Handler {
    rps := cfg.RateRPS
    burst := cfg.RateBurst
    if v := os.Getenv("RATE_RPS"); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
            rps = f
        }
    }
    if v := os.Getenv("RATE_BURST"); v != "" {
        if n, err := strconv.Atoi(v); err == nil && n > 0 {
            burst = n
        }
    }
    limiter := rate.NewLimiter(rate.Limit(rps), burst)

    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if !limiter.Allow() {
            writeProblem(w, http.StatusTooManyRequests, "Rate limited", "too many requests", r.URL.Path)
            return
        }
        if r.Header.Get("Upgrade") == "websocket" {
            next.ServeHTTP(w, r)
            return
        }
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        dur := time.Since(start)
        status := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(dur.Seconds())
        log.Printf("%s %s %s %d %v", r.RemoteAddr, r.Method, r.URL.Path, rec.status, dur)
    })
}
