package langflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"flowrelay/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerConfig configures the breaker guarding the backend.
// Whether to wrap the client at all is the caller's decision.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive transport failures before
	// the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing
	// failure counts. 0 means failures never reset until the circuit opens.
	Interval time.Duration
}

// runner is the invocation surface the breaker wraps.
type runner interface {
	Run(ctx context.Context, target domain.Target, text, sessionID string) (string, error)
}

// BreakerClient wraps a backend client with circuit breaker protection.
// When the backend is unreachable repeatedly, subsequent calls fail fast
// as ErrCircuitOpen without a network round trip.
type BreakerClient struct {
	inner   runner
	breaker *gobreaker.CircuitBreaker[string]
	logger  *slog.Logger
}

// NewBreakerClient wraps inner with a circuit breaker. Zero-valued config
// fields get defaults.
func NewBreakerClient(inner runner, cfg CircuitBreakerConfig, logger *slog.Logger) *BreakerClient {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "langflow",
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// Only transport-level failures count toward the breaker: a flow
		// that answers with a 4xx or a malformed envelope is still an
		// answering backend.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			code := domain.ErrorCodeOf(err)
			return code != domain.CodeTimeout && code != domain.CodeUnreachable
		},
	})

	return &BreakerClient{inner: inner, breaker: cb, logger: logger}
}

// Run implements the backend invocation surface through the breaker.
func (b *BreakerClient) Run(ctx context.Context, target domain.Target, text, sessionID string) (string, error) {
	reply, err := b.breaker.Execute(func() (string, error) {
		return b.inner.Run(ctx, target, text, sessionID)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", domain.NewDomainError("BreakerClient.Run", domain.ErrCircuitOpen, target.Key)
		}
		return "", err
	}
	return reply, nil
}

// State returns the current breaker state for monitoring.
func (b *BreakerClient) State() gobreaker.State {
	return b.breaker.State()
}
