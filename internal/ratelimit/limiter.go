// Package ratelimit throttles requests per client and route with a sliding window.
package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"desktop-license-server/config"
	"desktop-license-server/internal/cache"
)

// Policy admits at most Limit requests in any trailing Window
type Policy struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Limit      int
}

// Store records a request against a bucket and decides admission.
type Store interface {
	Take(ctx context.Context, bucket string, policy Policy, now time.Time) (Decision, error)
}

// Limiter applies per-route policies. Buckets are keyed by client identity
// combined with route, never by user identity.
type Limiter struct {
	policies map[string]Policy
	store    Store
	fallback *MemoryStore
	now      func() time.Time
	logger   zerolog.Logger
	onLimit  func(route string)
}

// Option configures a Limiter
type Option func(*Limiter)

// WithStore sets the primary bucket store. The in-memory store remains the fallback.
func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Limiter) { l.logger = logger.With().Str("component", "ratelimit").Logger() }
}

// WithLimitHook is called with the route name on every rejection
func WithLimitHook(fn func(route string)) Option {
	return func(l *Limiter) { l.onLimit = fn }
}

// New creates a limiter holding its own bucket table
func New(policies map[string]Policy, opts ...Option) *Limiter {
	l := &Limiter{
		policies: make(map[string]Policy, len(policies)),
		fallback: NewMemoryStore(),
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for route, p := range policies {
		l.policies[route] = p
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = l.fallback
	}
	return l
}

// PoliciesFromConfig converts configured route policies
func PoliciesFromConfig(cfg config.RateLimitConfig) map[string]Policy {
	out := make(map[string]Policy, len(cfg.Routes))
	for route, p := range cfg.Routes {
		out[route] = Policy{Limit: p.Requests, Window: p.Window}
	}
	return out
}

// Policy returns the policy for a route
func (l *Limiter) Policy(route string) (Policy, bool) {
	p, ok := l.policies[route]
	return p, ok
}

// Check records one request from clientKey on route. Routes without a policy are always allowed.
func (l *Limiter) Check(ctx context.Context, clientKey, route string) Decision {
	policy, ok := l.policies[route]
	if !ok {
		return Decision{Allowed: true, Remaining: -1}
	}

	bucket := BucketKey(clientKey, route)
	now := l.now()

	decision, err := l.store.Take(ctx, bucket, policy, now)
	if err != nil {
		l.logger.Warn().Err(err).Str("route", route).Msg("Shared rate limit store failed, using local window")
		decision, _ = l.fallback.Take(ctx, bucket, policy, now)
	}
	decision.Limit = policy.Limit

	if !decision.Allowed {
		if l.onLimit != nil {
			l.onLimit(route)
		}
		l.logger.Debug().Str("route", route).Dur("retry_after", decision.RetryAfter).Msg("Request rate limited")
	}
	return decision
}

// BucketKey combines client identity and route
func BucketKey(clientKey, route string) string {
	return clientKey + "|" + route
}

// RedisStore shares buckets between instances through Redis
type RedisStore struct {
	cache *cache.CacheService
}

// NewRedisStore wraps a cache service
func NewRedisStore(cs *cache.CacheService) *RedisStore {
	return &RedisStore{cache: cs}
}

// Take implements Store
func (s *RedisStore) Take(ctx context.Context, bucket string, policy Policy, now time.Time) (Decision, error) {
	res, err := s.cache.SlidingWindow(ctx, bucket, policy.Limit, policy.Window, now, uuid.New().String())
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: res.Allowed, Remaining: res.Remaining, RetryAfter: res.RetryAfter}, nil
}
