package biz

import (
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(cfg RateLimitConfig) (*RateLimiter, *testClock) {
	clock := newTestClock()
	l := NewRateLimiter(cfg, log.DefaultLogger)
	l.now = clock.Now
	return l, clock
}

func TestRateLimiter_AllowsExactlyMaxRequests(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Window: time.Second, MaxRequests: 3})

	// Three calls yield remaining 2, 1, 0 and are all allowed.
	for want := 2; want >= 0; want-- {
		res := l.CheckLimit("u1")
		assert.True(t, res.Allowed)
		assert.Equal(t, want, res.Remaining)
	}

	// The fourth call in the same window is the first rejected one.
	res := l.CheckLimit("u1")
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
}

func TestRateLimiter_WindowResetsAfterExpiry(t *testing.T) {
	l, clock := newTestLimiter(RateLimitConfig{Window: time.Second, MaxRequests: 3})

	for i := 0; i < 4; i++ {
		l.CheckLimit("u1")
	}
	require.False(t, l.CheckLimit("u1").Allowed)

	clock.Advance(time.Second)

	res := l.CheckLimit("u1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining, "fresh window after the first call")
}

func TestRateLimiter_IdentifiersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Window: time.Second, MaxRequests: 1})

	assert.True(t, l.CheckLimit("u1").Allowed)
	assert.False(t, l.CheckLimit("u1").Allowed)
	assert.True(t, l.CheckLimit("u2").Allowed)
}

func TestRateLimiter_ResetTimeGuidesRetry(t *testing.T) {
	l, clock := newTestLimiter(RateLimitConfig{Window: time.Minute, MaxRequests: 1})

	start := clock.Now()
	res := l.CheckLimit("u1")
	assert.Equal(t, start.Add(time.Minute), res.ResetTime)

	// The reset time is stable for the whole window.
	clock.Advance(30 * time.Second)
	res = l.CheckLimit("u1")
	assert.False(t, res.Allowed)
	assert.Equal(t, start.Add(time.Minute), res.ResetTime)
}

func TestRateLimiter_SweepRemovesOnlyExpiredEntries(t *testing.T) {
	l, clock := newTestLimiter(RateLimitConfig{Window: time.Second, MaxRequests: 5})

	l.CheckLimit("old")
	clock.Advance(600 * time.Millisecond)
	l.CheckLimit("fresh")
	clock.Advance(400 * time.Millisecond)

	// "old" is fully expired, "fresh" is mid-window.
	removed := l.Sweep()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Size())

	// The surviving window keeps its count.
	res := l.CheckLimit("fresh")
	assert.Equal(t, 3, res.Remaining)
}

func TestRateLimiter_ResetDropsAllWindows(t *testing.T) {
	l, _ := newTestLimiter(RateLimitConfig{Window: time.Minute, MaxRequests: 1})

	l.CheckLimit("u1")
	require.False(t, l.CheckLimit("u1").Allowed)

	l.Reset()
	assert.Equal(t, 0, l.Size())
	assert.True(t, l.CheckLimit("u1").Allowed)
}

func TestRateLimiterRegistry_PerActionConfigs(t *testing.T) {
	r := NewRateLimiterRegistry(DefaultRateLimitConfig(), log.DefaultLogger)
	r.Configure("login", RateLimitConfig{Window: time.Minute, MaxRequests: 1})

	login := r.GetOrCreate("login")
	api := r.GetOrCreate("api")

	assert.Same(t, login, r.GetOrCreate("login"))

	assert.True(t, login.CheckLimit("u1").Allowed)
	assert.False(t, login.CheckLimit("u1").Allowed)

	// The default action uses the registry defaults (60/min).
	res := api.CheckLimit("u1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 59, res.Remaining)
}

func TestRateLimiterRegistry_DisposeRecreatesLazily(t *testing.T) {
	r := NewRateLimiterRegistry(RateLimitConfig{Window: time.Minute, MaxRequests: 1}, log.DefaultLogger)

	before := r.GetOrCreate("login")
	before.CheckLimit("u1")

	r.Dispose()

	after := r.GetOrCreate("login")
	assert.NotSame(t, before, after)
	assert.True(t, after.CheckLimit("u1").Allowed)
}

func TestRateLimiterRegistry_ResetAllKeepsInstances(t *testing.T) {
	r := NewRateLimiterRegistry(RateLimitConfig{Window: time.Minute, MaxRequests: 1}, log.DefaultLogger)

	l := r.GetOrCreate("login")
	l.CheckLimit("u1")
	require.False(t, l.CheckLimit("u1").Allowed)

	r.ResetAll()

	assert.Same(t, l, r.GetOrCreate("login"))
	assert.True(t, l.CheckLimit("u1").Allowed)
}

func TestClientIdentifier(t *testing.T) {
	assert.Equal(t, "user-42-10.0.0.1", ClientIdentifier("user-42", "10.0.0.1"))
	assert.Equal(t, "anonymous-10.0.0.1", ClientIdentifier("", "10.0.0.1"))
	assert.Equal(t, "user-42-unknown", ClientIdentifier("user-42", ""))
	assert.Equal(t, "anonymous-unknown", ClientIdentifier("", ""))
}
