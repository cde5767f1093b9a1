package biz

import (
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// RateLimitConfig configures one fixed-window limiter.
type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultRateLimitConfig is used for actions without an explicit config.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Window:      time.Minute,
		MaxRequests: 60,
	}
}

// RateLimitResult is the structured outcome of a limit check. A negative
// result is never an error: the caller chooses the response shape, using
// ResetTime for retry guidance.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// rateLimitEntry tracks one identifier's count within the current window.
// Entries are pruned by the periodic sweep once fully expired and are
// never removed mid-window.
type rateLimitEntry struct {
	count       int
	windowStart time.Time
	resetTime   time.Time
}

// RateLimiter bounds request rate per identifier using a fixed window.
// Exactly MaxRequests requests are allowed per window, counted
// inclusively: the request that pushes the count past the limit is the
// first rejected one.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	entries map[string]*rateLimitEntry

	now    func() time.Time
	logger *log.Helper
}

// NewRateLimiter creates a limiter with the given window and limit.
func NewRateLimiter(cfg RateLimitConfig, logger log.Logger) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultRateLimitConfig().Window
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultRateLimitConfig().MaxRequests
	}
	return &RateLimiter{
		cfg:     cfg,
		entries: make(map[string]*rateLimitEntry),
		now:     time.Now,
		logger:  log.NewHelper(logger),
	}
}

// CheckLimit counts one request for identifier and reports whether it is
// allowed within the current window.
func (l *RateLimiter) CheckLimit(identifier string) RateLimitResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[identifier]
	if !ok || !now.Before(e.windowStart.Add(l.cfg.Window)) {
		e = &rateLimitEntry{
			windowStart: now,
			resetTime:   now.Add(l.cfg.Window),
		}
		l.entries[identifier] = e
	}

	e.count++
	remaining := l.cfg.MaxRequests - e.count
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitResult{
		Allowed:   e.count <= l.cfg.MaxRequests,
		Remaining: remaining,
		ResetTime: e.resetTime,
	}
}

// Sweep removes fully expired entries, bounding memory without disturbing
// active windows. It returns the number of entries removed.
func (l *RateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, e := range l.entries {
		if !now.Before(e.resetTime) {
			delete(l.entries, id)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debugw("rate limit entries swept", "removed", removed, "remaining", len(l.entries))
	}
	return removed
}

// Reset drops all tracked windows.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]*rateLimitEntry)
}

// Size returns the number of tracked identifiers.
func (l *RateLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RateLimiterRegistry holds named singleton limiters, each with its own
// window and limit. It is an explicitly owned instance constructed by the
// composition root; tests isolate themselves via Dispose, not process
// restart.
type RateLimiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*RateLimiter
	configs  map[string]RateLimitConfig
	defaults RateLimitConfig
	logger   log.Logger
}

// NewRateLimiterRegistry creates an empty registry.
func NewRateLimiterRegistry(defaults RateLimitConfig, logger log.Logger) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]*RateLimiter),
		configs:  make(map[string]RateLimitConfig),
		defaults: defaults,
		logger:   logger,
	}
}

// Configure sets the config used when the named limiter is first created.
func (r *RateLimiterRegistry) Configure(action string, cfg RateLimitConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[action] = cfg
}

// GetOrCreate returns the limiter for the named action, creating it with
// the per-action config if registered, else the defaults.
func (r *RateLimiterRegistry) GetOrCreate(action string) *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[action]; ok {
		return l
	}
	cfg, ok := r.configs[action]
	if !ok {
		cfg = r.defaults
	}
	l := NewRateLimiter(cfg, r.logger)
	r.limiters[action] = l
	return l
}

// SweepAll prunes expired entries across every limiter, returning the
// total number removed.
func (r *RateLimiterRegistry) SweepAll() int {
	r.mu.Lock()
	limiters := make([]*RateLimiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		limiters = append(limiters, l)
	}
	r.mu.Unlock()

	total := 0
	for _, l := range limiters {
		total += l.Sweep()
	}
	return total
}

// ResetAll clears every limiter's windows but keeps the instances.
func (r *RateLimiterRegistry) ResetAll() {
	r.mu.Lock()
	limiters := make([]*RateLimiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		limiters = append(limiters, l)
	}
	r.mu.Unlock()

	for _, l := range limiters {
		l.Reset()
	}
}

// Dispose drops every limiter. The registry stays usable; limiters are
// recreated lazily on the next GetOrCreate.
func (r *RateLimiterRegistry) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters = make(map[string]*RateLimiter)
}

// ClientIdentifier derives the rate-limit key from the authenticated user
// and client IP, with stable fallbacks for anonymous traffic.
func ClientIdentifier(userID, ip string) string {
	if userID == "" {
		userID = "anonymous"
	}
	if ip == "" {
		ip = "unknown"
	}
	return userID + "-" + ip
}
