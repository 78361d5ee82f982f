// Package resilience wraps outbound HTTP calls with a circuit breaker, retries
// and health tracking.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker of a Client.
type BreakerConfig struct {
	// Name identifies the breaker in logs and health output.
	Name string

	// MaxRequests allowed through while half-open (default: 1).
	MaxRequests uint32

	// Interval clears counts while closed. Zero keeps counts until the state changes.
	Interval time.Duration

	// OpenTimeout is how long the breaker stays open (default: 30 seconds).
	OpenTimeout time.Duration

	// ReadyToTrip decides when to open (default: TripOnFailureRatio(5, 0.5)).
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called on every transition. Optional.
	OnStateChange func(name string, from, to gobreaker.State)
}

// TripOnFailureRatio opens the breaker once at least minRequests were made and
// the failure ratio reached ratio.
func TripOnFailureRatio(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

func newBreaker[T any](cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = TripOnFailureRatio(5, 0.5)
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.MaxRequests,
		Interval:      cfg.Interval,
		Timeout:       cfg.OpenTimeout,
		ReadyToTrip:   cfg.ReadyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
