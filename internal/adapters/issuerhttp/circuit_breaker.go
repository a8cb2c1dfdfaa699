package issuerhttp

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/payment-switch/internal/domain"
	"github.com/kevin07696/payment-switch/internal/domain/ports"
)

// CircuitState represents the current state of a circuit breaker
type CircuitState int

const (
	// StateClosed - requests flow normally
	StateClosed CircuitState = iota
	// StateOpen - requests fail immediately
	StateOpen
	// StateHalfOpen - testing whether the issuer recovered
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when the breaker for an issuer is open.
// It is transport-class, so the switch's retry budget treats a dead
// issuer the same as an unreachable one.
var ErrCircuitOpen = domain.NewDomainError(domain.ErrorCodeTransportNetwork, "issuer circuit breaker is open")

// CircuitBreakerConfig configures breaker behavior
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening
	MaxFailures uint32
	// Timeout is how long to wait before moving from open to half-open
	Timeout time.Duration
	// MaxRequestsHalfOpen is the max concurrent probes while half-open
	MaxRequestsHalfOpen uint32
}

// DefaultCircuitBreakerConfig returns sensible defaults
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxRequestsHalfOpen: 1,
	}
}

// circuitBreaker tracks failures for one issuer endpoint
type circuitBreaker struct {
	mu                  sync.Mutex
	state               CircuitState
	failures            uint32
	requestsHalfOpen    uint32
	lastStateChangeTime time.Time
	config              CircuitBreakerConfig
}

func newCircuitBreaker(config CircuitBreakerConfig) *circuitBreaker {
	return &circuitBreaker{
		state:               StateClosed,
		lastStateChangeTime: time.Now(),
		config:              config,
	}
}

// beforeCall checks whether the breaker allows a request
func (cb *circuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.lastStateChangeTime) > cb.config.Timeout {
			cb.setState(StateHalfOpen)
			cb.requestsHalfOpen++
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		if cb.requestsHalfOpen >= cb.config.MaxRequestsHalfOpen {
			return ErrCircuitOpen
		}
		cb.requestsHalfOpen++
		return nil

	default:
		return ErrCircuitOpen
	}
}

// afterCall records the result. Only transport faults count against
// the breaker: an explicit decline is a healthy issuer answering.
func (cb *circuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && domain.IsTransportError(err) {
		cb.onFailure()
		return
	}
	cb.onSuccess()
}

func (cb *circuitBreaker) onFailure() {
	cb.failures++

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
	}
}

func (cb *circuitBreaker) onSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.setState(StateClosed)
	case StateClosed:
		cb.failures = 0
	}
}

func (cb *circuitBreaker) setState(newState CircuitState) {
	if cb.state == newState {
		return
	}
	cb.state = newState
	cb.lastStateChangeTime = time.Now()
	cb.failures = 0
	cb.requestsHalfOpen = 0
}

// State returns the current circuit state
func (cb *circuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerGateway wraps an IssuerGateway with one circuit breaker per
// issuer endpoint, so a dead issuer fails fast instead of burning the
// retry budget of every transaction routed to it.
type BreakerGateway struct {
	inner    ports.IssuerGateway
	config   CircuitBreakerConfig
	logger   ports.Logger
	mu       sync.Mutex
	breakers map[string]*circuitBreaker
}

// NewBreakerGateway wraps the given gateway
func NewBreakerGateway(inner ports.IssuerGateway, config CircuitBreakerConfig, logger ports.Logger) *BreakerGateway {
	return &BreakerGateway{
		inner:    inner,
		config:   config,
		logger:   logger,
		breakers: make(map[string]*circuitBreaker),
	}
}

// Authorize forwards through the endpoint's breaker
func (g *BreakerGateway) Authorize(ctx context.Context, issuerURL string, req *ports.IssuerAuthRequest) (*ports.IssuerAuthResult, error) {
	cb := g.breakerFor(issuerURL)

	if err := cb.beforeCall(); err != nil {
		g.logger.Warn("issuer circuit open, failing fast",
			ports.String("issuer_url", issuerURL))
		return nil, err
	}

	result, err := g.inner.Authorize(ctx, issuerURL, req)
	cb.afterCall(err)
	return result, err
}

// BreakerState reports the breaker state for an issuer endpoint
func (g *BreakerGateway) BreakerState(issuerURL string) CircuitState {
	return g.breakerFor(issuerURL).State()
}

func (g *BreakerGateway) breakerFor(issuerURL string) *circuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[issuerURL]
	if !ok {
		cb = newCircuitBreaker(g.config)
		g.breakers[issuerURL] = cb
	}
	return cb
}
