package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stele-indexer/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means the circuit is closed and requests are allowed
	StateClosed State = "closed"
	// StateOpen means the circuit is open and requests are blocked
	StateOpen State = "open"
	// StateHalfOpen means the circuit is testing if the service has recovered
	StateHalfOpen State = "half_open"
)

// CircuitBreaker guards the RPC endpoint so a dead node fails fast
type CircuitBreaker struct {
	name             string
	maxFailures      int           // Number of calls before the failure rate is considered
	failureThreshold float64       // Percentage of failures to trigger open (0.0-1.0)
	timeout          time.Duration // Time to wait before attempting half-open
	halfOpenMaxCalls int           // Max calls allowed in half-open state
	isFailure        func(error) bool
	now              func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	totalCalls       int
	halfOpenCalls    int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	consecutiveFails int
}

// Config configures a circuit breaker
type Config struct {
	Name             string
	MaxFailures      int
	FailureThreshold float64
	Timeout          time.Duration
	HalfOpenMaxCalls int
	// IsFailure decides which errors count against the circuit.
	// Nil counts every non-nil error.
	IsFailure func(error) bool
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      10,
		FailureThreshold: 0.5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *Config) *CircuitBreaker {
	isFailure := config.IsFailure
	if isFailure == nil {
		isFailure = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{
		name:             config.Name,
		maxFailures:      config.MaxFailures,
		failureThreshold: config.FailureThreshold,
		timeout:          config.Timeout,
		halfOpenMaxCalls: config.HalfOpenMaxCalls,
		isFailure:        isFailure,
		now:              time.Now,
		state:            StateClosed,
		lastStateChange:  time.Now(),
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned when too many requests are made in half-open state
var ErrTooManyRequests = errors.New("too many requests in half-open state")

// Execute executes a function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := fn()
	cb.afterRequest(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastStateChange) <= cb.timeout {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.reset()
		logging.WithFields(map[string]interface{}{
			"circuitBreaker": cb.name,
			"state":          StateHalfOpen,
		}).Info("Circuit breaker transitioning to half-open")
		cb.halfOpenCalls++
		return nil

	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return ErrTooManyRequests
		}
		cb.halfOpenCalls++
		return nil

	default:
		return nil
	}
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++

	if cb.isFailure(err) {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.successes++
	cb.consecutiveFails = 0

	if cb.state == StateHalfOpen && cb.successes >= cb.halfOpenMaxCalls {
		cb.setState(StateClosed)
		cb.reset()
		logging.WithFields(map[string]interface{}{
			"circuitBreaker": cb.name,
			"state":          StateClosed,
		}).Info("Circuit breaker closed after successful recovery")
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.consecutiveFails++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.shouldOpen() {
			cb.setState(StateOpen)
			logging.WithFields(map[string]interface{}{
				"circuitBreaker":   cb.name,
				"state":            StateOpen,
				"failures":         cb.failures,
				"totalCalls":       cb.totalCalls,
				"failureRate":      cb.getFailureRate(),
				"consecutiveFails": cb.consecutiveFails,
			}).Warn("Circuit breaker opened due to failures")
		}

	case StateHalfOpen:
		cb.setState(StateOpen)
		logging.WithFields(map[string]interface{}{
			"circuitBreaker": cb.name,
			"state":          StateOpen,
		}).Warn("Circuit breaker reopened after failure in half-open state")
	}
}

func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutiveFails >= cb.maxFailures {
		return true
	}
	if cb.totalCalls < cb.maxFailures {
		return false
	}
	return cb.getFailureRate() >= cb.failureThreshold
}

func (cb *CircuitBreaker) getFailureRate() float64 {
	if cb.totalCalls == 0 {
		return 0.0
	}
	return float64(cb.failures) / float64(cb.totalCalls)
}

func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = cb.now()
}

func (cb *CircuitBreaker) reset() {
	cb.failures = 0
	cb.successes = 0
	cb.totalCalls = 0
	cb.halfOpenCalls = 0
	cb.consecutiveFails = 0
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	Failures         int       `json:"failures"`
	Successes        int       `json:"successes"`
	TotalCalls       int       `json:"totalCalls"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	FailureRate      float64   `json:"failureRate"`
	LastFailureTime  time.Time `json:"lastFailureTime"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// GetStats returns statistics about the circuit breaker
func (cb *CircuitBreaker) GetStats() *Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return &Stats{
		Name:             cb.name,
		State:            cb.state,
		Failures:         cb.failures,
		Successes:        cb.successes,
		TotalCalls:       cb.totalCalls,
		ConsecutiveFails: cb.consecutiveFails,
		FailureRate:      cb.getFailureRate(),
		LastFailureTime:  cb.lastFailureTime,
		LastStateChange:  cb.lastStateChange,
	}
}

// Reset manually resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.reset()

	logging.WithField("circuitBreaker", cb.name).Info("Circuit breaker manually reset")
}
