package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abhisek/mnemo/internal/metrics"
	"github.com/abhisek/mnemo/internal/review"
	"github.com/abhisek/mnemo/internal/session"
)

// defaultIdleTTL is how long an unused client bucket is kept.
const defaultIdleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client. Buckets idle for longer
// than the TTL are swept, so the map stays bounded by recent clients.
type RateLimiter struct {
	mu        sync.Mutex
	limits    map[string]*clientLimit
	rps       rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type clientLimit struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows each client rps requests per second with the
// given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	ttl := defaultIdleTTL
	// A bucket must not be dropped before it would have refilled.
	if rps > 0 {
		if refill := time.Duration(float64(burst) / rps * float64(time.Second)); refill > ttl {
			ttl = refill
		}
	}
	return &RateLimiter{
		limits: make(map[string]*clientLimit),
		rps:    rate.Limit(rps),
		burst:  burst,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= rl.ttl {
		rl.sweep(now)
	}
	if cl, ok := rl.limits[key]; ok {
		cl.lastSeen = now
		return cl.limiter
	}
	limiter := rate.NewLimiter(rl.rps, rl.burst)
	rl.limits[key] = &clientLimit{limiter: limiter, lastSeen: now}
	return limiter
}

// sweep drops buckets idle for at least the TTL. Callers hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for key, cl := range rl.limits {
		if now.Sub(cl.lastSeen) >= rl.ttl {
			delete(rl.limits, key)
		}
	}
	rl.lastSweep = now
}

// Len returns the number of clients currently tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limits)
}

// Allow reports whether the client may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

// Wait blocks until the client may make a request or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string) error {
	return rl.getLimiter(key).Wait(ctx)
}

func rateLimit(rl *RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/healthz" || c.Path() == "/metrics" {
				return next(c)
			}
			if !rl.Allow(c.RealIP()) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// requestLogger writes one log line and one metrics sample per request.
func requestLogger(log *zap.Logger, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			d := time.Since(start)

			req, res := c.Request(), c.Response()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveHTTP(req.Method, route, res.Status, d)

			fields := []zap.Field{
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", res.Status),
				zap.Duration("latency", d),
				zap.String("remote_ip", c.RealIP()),
			}
			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Error("http request", fields...)
			case res.Status >= http.StatusBadRequest:
				log.Warn("http request", fields...)
			default:
				log.Info("http request", fields...)
			}
			return nil
		}
	}
}

// errorBody is the JSON body of every error response.
type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// statusOf maps a domain error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, review.ErrValidation), errors.Is(err, session.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, review.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, review.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status = statusOf(err)
			body   = errorBody{Error: err.Error()}
			he     *echo.HTTPError
		)
		switch {
		case errors.As(err, &he):
			status = he.Code
			body.Error = http.StatusText(he.Code)
			if msg, ok := he.Message.(string); ok {
				body.Error = msg
			}
		case status == http.StatusInternalServerError:
			log.Error("request failed", zap.Error(err))
			body.Error = "internal error"
			body.Reason = reasonOf(err)
		default:
			body.Reason = reasonOf(err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error("write error response", zap.Error(err))
		}
	}
}

func reasonOf(err error) string {
	if errors.Is(err, session.ErrInvalidWindow) {
		return "validation"
	}
	return review.Reason(err)
}
