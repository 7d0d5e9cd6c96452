package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type Settings struct {
	Name string
	// ConsecutiveFailures opens the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a half-open probe.
	OpenTimeout time.Duration
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:                name,
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// Breaker wraps calls that return only an error.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

func New(s Settings, log *zap.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Breaker{cb: cb}
}

// Do runs fn unless the breaker is open, in which case it returns
// gobreaker.ErrOpenState or gobreaker.ErrTooManyRequests.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
