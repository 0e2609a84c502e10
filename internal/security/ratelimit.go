package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Kind names a rate-limited bucket.
type Kind string

// Buckets. Token usage is only limited when TokensPerHour is set.
const (
	KindMessage  Kind = "message"
	KindToolCall Kind = "tool_call"
	KindToken    Kind = "token"
	KindAuth     Kind = "auth"
)

// RateLimitConfig holds configurable rate limits. Zero values select the
// defaults.
type RateLimitConfig struct {
	MaxSessions     int `yaml:"max_sessions"`
	MessagesPerMin  int `yaml:"messages_per_min"`
	ToolCallsPerMin int `yaml:"tool_calls_per_min"`
	TokensPerHour   int `yaml:"tokens_per_hour"`

	// AuthPerMin bounds admin authentication attempts, failed or not.
	AuthPerMin int `yaml:"auth_per_min"`
}

func (c *RateLimitConfig) defaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 100
	}
	if c.MessagesPerMin <= 0 {
		c.MessagesPerMin = 200
	}
	if c.ToolCallsPerMin <= 0 {
		c.ToolCallsPerMin = 500
	}
	if c.AuthPerMin <= 0 {
		c.AuthPerMin = 30
	}
}

// RateLimiter implements sliding-window limits. Each bucket tracks
// weighted events, so one entry can stand for the tokens of a whole run.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[Kind]*bucket
	config  RateLimitConfig
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []stamp
	total  int
}

type stamp struct {
	at time.Time
	n  int
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg.defaults()
	rl := &RateLimiter{
		config: cfg,
		now:    time.Now,
		buckets: map[Kind]*bucket{
			KindMessage:  {window: time.Minute, limit: cfg.MessagesPerMin},
			KindToolCall: {window: time.Minute, limit: cfg.ToolCallsPerMin},
			KindAuth:     {window: time.Minute, limit: cfg.AuthPerMin},
		},
	}
	if cfg.TokensPerHour > 0 {
		rl.buckets[KindToken] = &bucket{window: time.Hour, limit: cfg.TokensPerHour}
	}
	return rl
}

// Allow records one event of kind, or returns ErrRateLimited.
func (rl *RateLimiter) Allow(kind Kind) error {
	return rl.AllowN(kind, 1)
}

// AllowN records n events of kind if they fit in the window. Kinds without
// a bucket are not limited.
func (rl *RateLimiter) AllowN(kind Kind, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}
	now := rl.now()
	b.evict(now)
	if b.total+n > b.limit {
		return ErrRateLimited
	}
	b.add(now, n)
	return nil
}

// Check reports ErrRateLimited when the bucket of kind is already full,
// without recording anything.
func (rl *RateLimiter) Check(kind Kind) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}
	b.evict(rl.now())
	if b.total >= b.limit {
		return ErrRateLimited
	}
	return nil
}

// Record adds n events of kind unconditionally, for usage that is only
// known after the fact such as the tokens a run consumed.
func (rl *RateLimiter) Record(kind Kind, n int) {
	if n <= 0 {
		return
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if b, ok := rl.buckets[kind]; ok {
		now := rl.now()
		b.evict(now)
		b.add(now, n)
	}
}

// RetryAfter returns how long until the bucket of kind has room for one
// more event, or 0 if it has room now.
func (rl *RateLimiter) RetryAfter(kind Kind) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return 0
	}
	now := rl.now()
	b.evict(now)
	excess := b.total + 1 - b.limit
	for _, s := range b.events {
		if excess <= 0 {
			break
		}
		excess -= s.n
		if excess <= 0 {
			return s.at.Add(b.window).Sub(now)
		}
	}
	return 0
}

// MaxSessions returns the configured maximum number of concurrent sessions.
func (rl *RateLimiter) MaxSessions() int {
	return rl.config.MaxSessions
}

// evict drops events older than the window. Events are in time order.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].at.Before(cutoff) {
		b.total -= b.events[i].n
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}

func (b *bucket) add(now time.Time, n int) {
	if n <= 0 {
		return
	}
	b.events = append(b.events, stamp{at: now, n: n})
	b.total += n
}
