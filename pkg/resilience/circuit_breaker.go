package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker refuses calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold int
	// Cooldown is how long the circuit stays open before probing again
	Cooldown time.Duration
	// HalfOpenProbes is the number of calls let through while half-open;
	// the circuit closes once they all succeed
	HalfOpenProbes int
	// IsFailure decides which errors count against the backend. Nil means every error.
	IsFailure func(error) bool
}

// DefaultBreakerConfig suits a remote credential store on the request path
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenProbes:   1,
	}
}

// Breaker stops calling a backend that keeps failing, so requests fail fast
// instead of each waiting on a dead dependency.
type Breaker struct {
	name   string
	config BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	probes   int
	probeOKs int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker creates a closed breaker
func NewBreaker(name string, config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.HalfOpenProbes <= 0 {
		config.HalfOpenProbes = 1
	}
	return &Breaker{name: name, config: config, now: time.Now}
}

// Name returns the breaker name
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() CircuitState {
	if b.state == CircuitOpen && b.now().Sub(b.openedAt) >= b.config.Cooldown {
		b.state = CircuitHalfOpen
		b.probes = 0
		b.probeOKs = 0
	}
	return b.state
}

// Do runs fn unless the circuit is open. A cancelled ctx short-circuits
// without being recorded.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case CircuitOpen:
		return ErrCircuitOpen
	case CircuitHalfOpen:
		if b.probes >= b.config.HalfOpenProbes {
			return ErrCircuitOpen
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && (b.config.IsFailure == nil || b.config.IsFailure(err)) {
		b.failures++
		if b.state == CircuitHalfOpen || b.failures >= b.config.FailureThreshold {
			b.state = CircuitOpen
			b.openedAt = b.now()
		}
		return
	}

	b.failures = 0
	if b.state == CircuitHalfOpen {
		b.probeOKs++
		if b.probeOKs >= b.config.HalfOpenProbes {
			b.state = CircuitClosed
		}
	}
}

// Reset closes the circuit
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
	b.probes = 0
	b.probeOKs = 0
}
