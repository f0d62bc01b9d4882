package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrCircuitOpen is returned when a call is rejected because the breaker is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitState represents the state of a circuit breaker.
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

// Breaker opens after Threshold consecutive failures. Once open it rejects
// calls until Cooldown has passed, then lets a single probe through; the
// probe's outcome closes or reopens it. A zero Cooldown keeps it open until
// Reset, which suits a batch run that should stop hitting a provider that is
// down.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
	nowFunc  func() time.Time
}

// NewBreaker creates a breaker. A threshold below 1 disables it.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{Threshold: threshold, Cooldown: cooldown, nowFunc: time.Now}
}

// Allow reports whether a call may proceed, returning ErrCircuitOpen otherwise.
func (b *Breaker) Allow() error {
	if b == nil || b.Threshold < 1 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.Cooldown > 0 && b.nowFunc().Sub(b.openedAt) >= b.Cooldown {
			b.state = CircuitHalfOpen
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// Record feeds the outcome of a call into the breaker. A success closes it.
func (b *Breaker) Record(failed bool) {
	if b == nil || b.Threshold < 1 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if !failed {
		b.failures = 0
		b.state = CircuitClosed
		return
	}

	b.failures++
	if b.state == CircuitHalfOpen || b.failures >= b.Threshold {
		b.state = CircuitOpen
		b.openedAt = b.nowFunc()
	}
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	if b == nil {
		return CircuitClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset closes the breaker and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
}
