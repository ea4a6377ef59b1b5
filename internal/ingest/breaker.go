package ingest

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waqiti/amlguard/internal/config"
	"github.com/waqiti/amlguard/internal/metrics"
)

// BreakerState is the state of a circuit breaker.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half-open"
	case BreakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreaker guards one downstream dependency. When consecutive failures
// reach the threshold it opens and rejects calls immediately until the
// cooldown passes, then admits a bounded number of probes half-open.
type CircuitBreaker struct {
	name             string
	state            BreakerState
	failureCount     int64
	successCount     int64
	halfOpenInFlight int64
	lastFailureTime  time.Time
	cfg              config.IngestConfig
	mu               sync.Mutex
	logger           *zap.SugaredLogger
}

// NewCircuitBreaker creates a closed breaker for the named dependency.
func NewCircuitBreaker(name string, cfg config.IngestConfig, logger *zap.SugaredLogger) *CircuitBreaker {
	metrics.BreakerState.WithLabelValues(name).Set(float64(BreakerClosed))
	return &CircuitBreaker{name: name, state: BreakerClosed, cfg: cfg, logger: logger}
}

// Allow reports whether a call may proceed. An open breaker admits nothing
// until the cooldown elapses, then transitions half-open and admits up to
// BreakerHalfOpenMax probes.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		// Forget stale failures outside the failure window.
		if cb.failureCount > 0 && time.Since(cb.lastFailureTime) > cb.cfg.BreakerFailureWindow {
			cb.failureCount = 0
		}
		return true

	case BreakerOpen:
		if time.Since(cb.lastFailureTime) >= cb.cfg.BreakerCooldown {
			cb.setState(BreakerHalfOpen)
			cb.halfOpenInFlight = 1
			return true
		}
		return false

	case BreakerHalfOpen:
		if cb.halfOpenInFlight < cb.cfg.BreakerHalfOpenMax {
			cb.halfOpenInFlight++
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess notes a successful call. Enough consecutive successes while
// half-open close the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.cfg.BreakerSuccesses {
			cb.setState(BreakerClosed)
			cb.failureCount = 0
			cb.halfOpenInFlight = 0
		}
	case BreakerClosed:
		cb.failureCount = 0
	}
}

// RecordFailure notes a failed call. Reaching the failure threshold while
// closed, or any failure while half-open, opens the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case BreakerClosed:
		if cb.failureCount >= cb.cfg.BreakerFailures {
			cb.setState(BreakerOpen)
		}
	case BreakerHalfOpen:
		cb.setState(BreakerOpen)
		cb.halfOpenInFlight = 0
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) setState(next BreakerState) {
	if cb.state == next {
		return
	}
	prev := cb.state
	cb.state = next
	cb.successCount = 0
	metrics.BreakerState.WithLabelValues(cb.name).Set(float64(next))

	cb.logger.Warnw("Circuit breaker state changed",
		"dependency", cb.name,
		"from", prev.String(),
		"to", next.String(),
		"failures", cb.failureCount,
	)
}
