package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func limiterAt(rl *RateLimiter, start time.Time) *fakeClock {
	clock := &fakeClock{now: start}
	rl.now = clock.Now
	return clock
}

var morning = time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)

func TestRateLimiter_NoLimits(t *testing.T) {
	rl := NewRateLimiter(0, 0, 0, 0)
	for range 100 {
		require.NoError(t, rl.CheckRateLimit("user1", 100))
	}
	usage := rl.GetUsage("user1")
	assert.Equal(t, 100, usage.RequestsToday)
	assert.Equal(t, int64(10000), usage.DataToday)
	assert.Equal(t, Usage{}, rl.GetUsage("nobody"))
}

func TestRateLimiter_RequestsPerMinute(t *testing.T) {
	rl := NewRateLimiter(2, 0, 0, 0)
	clock := limiterAt(rl, morning)

	require.NoError(t, rl.CheckRateLimit("user1", 0))
	clock.Advance(20 * time.Second)
	require.NoError(t, rl.CheckRateLimit("user1", 0))

	err := rl.CheckRateLimit("user1", 0)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "minute", rle.Type)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 40*time.Second, rle.RetryAfter)

	// Other clients are unaffected.
	require.NoError(t, rl.CheckRateLimit("user2", 0))

	// Rejected requests do not extend the window.
	clock.Advance(40 * time.Second)
	require.NoError(t, rl.CheckRateLimit("user1", 0))
}

func TestRateLimiter_SteadyTrafficStillRolls(t *testing.T) {
	rl := NewRateLimiter(3, 0, 0, 0)
	clock := limiterAt(rl, morning)

	// One request every 30s never exceeds 3 per minute window.
	for range 10 {
		require.NoError(t, rl.CheckRateLimit("user1", 0))
		clock.Advance(30 * time.Second)
	}
}

func TestRateLimiter_RequestsPerHour(t *testing.T) {
	rl := NewRateLimiter(0, 3, 0, 0)
	clock := limiterAt(rl, morning)

	for range 3 {
		require.NoError(t, rl.CheckRateLimit("user1", 0))
		clock.Advance(5 * time.Minute)
	}
	var rle *RateLimitError
	require.ErrorAs(t, rl.CheckRateLimit("user1", 0), &rle)
	assert.Equal(t, "hour", rle.Type)
	assert.Equal(t, 45*time.Minute, rle.RetryAfter)

	clock.Advance(45 * time.Minute)
	assert.NoError(t, rl.CheckRateLimit("user1", 0))
}

func TestRateLimiter_DailyQuotas(t *testing.T) {
	rl := NewRateLimiter(0, 0, 2, 0)
	clock := limiterAt(rl, morning)

	require.NoError(t, rl.CheckRateLimit("user1", 0))
	require.NoError(t, rl.CheckRateLimit("user1", 0))

	var qe *QuotaExceededError
	require.ErrorAs(t, rl.CheckRateLimit("user1", 0), &qe)
	assert.Equal(t, "requests", qe.Type)
	assert.Equal(t, int64(2), qe.Used)
	assert.Equal(t, time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC), qe.Resets)

	clock.Advance(15 * time.Hour)
	assert.NoError(t, rl.CheckRateLimit("user1", 0))
}

func TestRateLimiter_DataQuota(t *testing.T) {
	rl := NewRateLimiter(0, 0, 0, 1000)
	limiterAt(rl, morning)

	require.NoError(t, rl.CheckRateLimit("user1", 600))
	err := rl.CheckRateLimit("user1", 500)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "data", qe.Type)
	assert.Equal(t, int64(600), qe.Used)
	assert.Contains(t, qe.Error(), "quota exceeded for data")

	assert.NoError(t, rl.CheckRateLimit("user1", 400))
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(50, 0, 0, 0)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.CheckRateLimit("user1", 0) == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestHandleRateLimitError(t *testing.T) {
	s := &Server{logger: quietLogger()}

	w := httptest.NewRecorder()
	s.handleRateLimitError(w, &RateLimitError{Type: "minute", Limit: 10, RetryAfter: 30 * time.Second})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	w = httptest.NewRecorder()
	s.handleRateLimitError(w, &QuotaExceededError{Type: "data", Limit: 100, Used: 90, Resets: morning})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "90", w.Header().Get("X-Quota-Used"))
	assert.Contains(t, w.Body.String(), "quota_exceeded")

	w = httptest.NewRecorder()
	s.handleRateLimitError(w, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
