// Package ratelimit implements a per-provider token-bucket rate limiter
// with exponential backoff and a circuit breaker that fails over across a
// priority-ordered list of LLM providers.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hjonck/leadscout/internal/log"
)

// ErrAllProvidersUnavailable is returned by Acquire when every configured
// provider's circuit breaker is open.
var ErrAllProvidersUnavailable = errors.New("ratelimit: all providers unavailable")

// Config configures a single provider's rate limiter and circuit breaker.
type Config struct {
	Provider          string
	RequestsPerSecond float64
	BurstCapacity     int
	MinDelay          time.Duration

	// FailureThreshold is how many consecutive failures open the breaker.
	// Default: 3.
	FailureThreshold int
	// CooldownPeriod is how long the breaker stays open before allowing a
	// probe request through. Default: 60s.
	CooldownPeriod time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.CooldownPeriod <= 0 {
		c.CooldownPeriod = 60 * time.Second
	}
	if c.BurstCapacity <= 0 {
		c.BurstCapacity = 1
	}
	return c
}

// breakerState is the circuit breaker's current state.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// providerLimiter is one provider's token bucket plus circuit breaker.
type providerLimiter struct {
	config Config

	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time

	consecutiveFailures int
	state               breakerState
	openedAt            time.Time

	metrics metrics
}

type metrics struct {
	mu           sync.Mutex
	requests     int64
	failures     int64
	breakerTrips int64
}

func newProviderLimiter(cfg Config) *providerLimiter {
	cfg = cfg.withDefaults()
	return &providerLimiter{
		config:     cfg,
		tokens:     float64(cfg.BurstCapacity),
		maxTokens:  float64(cfg.BurstCapacity),
		refillRate: cfg.RequestsPerSecond,
		lastRefill: time.Now(),
	}
}

// acquireToken performs the token-bucket refill-and-take check.
func (p *providerLimiter) acquireToken() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(p.lastRefill).Seconds()
	p.tokens = minFloat(p.maxTokens, p.tokens+elapsed*p.refillRate)
	p.lastRefill = now

	if p.tokens >= 1.0 {
		p.tokens -= 1.0
		return true
	}
	return false
}

// available reports whether this provider's breaker currently allows
// requests through, transitioning open -> half-open once the cooldown
// has elapsed.
func (p *providerLimiter) available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case stateClosed, stateHalfOpen:
		return true
	case stateOpen:
		if time.Since(p.openedAt) >= p.config.CooldownPeriod {
			p.state = stateHalfOpen
			return true
		}
		return false
	}
	return true
}

// recordResult updates the breaker state after a call attempt: success
// closes the breaker and resets the failure count; failure increments the
// count and opens the breaker once FailureThreshold is reached.
func (p *providerLimiter) recordResult(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.mu.Lock()
	p.metrics.requests++
	p.metrics.mu.Unlock()

	if err == nil {
		p.consecutiveFailures = 0
		p.state = stateClosed
		return
	}

	p.metrics.mu.Lock()
	p.metrics.failures++
	p.metrics.mu.Unlock()

	p.consecutiveFailures++
	if p.consecutiveFailures >= p.config.FailureThreshold {
		if p.state != stateOpen {
			p.metrics.mu.Lock()
			p.metrics.breakerTrips++
			p.metrics.mu.Unlock()
			log.Warn("circuit breaker opened for provider",
				zap.String("provider", p.config.Provider),
				zap.Int("consecutive_failures", p.consecutiveFailures))
		}
		p.state = stateOpen
		p.openedAt = time.Now()
	}
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Limiter fans requests out across a priority-ordered list of providers,
// skipping any whose circuit breaker is open and waiting for token
// availability on the first provider that accepts.
type Limiter struct {
	providers []*providerLimiter
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// New builds a Limiter over the given provider configs, in priority
// order (first is tried first). It starts a background metrics reporter
// goroutine that logs utilization every 30s.
func New(configs ...Config) *Limiter {
	l := &Limiter{stopCh: make(chan struct{})}
	for _, cfg := range configs {
		l.providers = append(l.providers, newProviderLimiter(cfg))
	}
	l.wg.Add(1)
	go l.reportMetrics()
	return l
}

// Close stops the background metrics reporter.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

// Acquire blocks until a token is available on some available provider,
// honoring ctx cancellation, and returns that provider's name. Callers
// must call Release with the call's outcome so the breaker can track
// failures.
func (l *Limiter) Acquire(ctx context.Context) (string, error) {
	if len(l.providers) == 0 {
		return "", fmt.Errorf("ratelimit: no providers configured")
	}

	for {
		anyAvailable := false
		for _, p := range l.providers {
			if !p.available() {
				continue
			}
			anyAvailable = true
			if p.acquireToken() {
				if p.config.MinDelay > 0 {
					select {
					case <-time.After(p.config.MinDelay):
					case <-ctx.Done():
						return "", ctx.Err()
					}
				}
				return p.config.Provider, nil
			}
		}
		if !anyAvailable {
			return "", ErrAllProvidersUnavailable
		}
		select {
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Release reports the outcome of a call that previously acquired a slot
// on provider, updating that provider's circuit breaker.
func (l *Limiter) Release(provider string, err error) {
	for _, p := range l.providers {
		if p.config.Provider == provider {
			p.recordResult(err)
			return
		}
	}
}

func (l *Limiter) reportMetrics() {
	defer l.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, p := range l.providers {
				p.metrics.mu.Lock()
				requests, failures, trips := p.metrics.requests, p.metrics.failures, p.metrics.breakerTrips
				p.metrics.mu.Unlock()
				log.Debug("rate limiter metrics",
					zap.String("provider", p.config.Provider),
					zap.Int64("requests", requests),
					zap.Int64("failures", failures),
					zap.Int64("breaker_trips", trips))
			}
		case <-l.stopCh:
			return
		}
	}
}

// Backoff computes the exponential-backoff-with-jitter delay for a given
// zero-based retry attempt: base 500ms, factor 2, capped at 30s.
func Backoff(attempt int) time.Duration {
	const (
		base   = 500 * time.Millisecond
		factor = 2.0
		cap_   = 30 * time.Second
	)
	d := float64(base)
	for i := 0; i < attempt; i++ {
		d *= factor
		if d > float64(cap_) {
			d = float64(cap_)
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 4)) //nolint:gosec
	return time.Duration(d) - jitter
}

// MaxAttempts is the maximum number of LLM call attempts (including the
// first) before a call is abandoned as exhausted.
const MaxAttempts = 6
