package metrics

import (
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/joeblew999/plat-slackmap/internal/logging"
)

// BreakerStateChange is a gobreaker OnStateChange hook that logs the
// transition and updates the breaker collectors.
func BreakerStateChange(name string, from, to gobreaker.State) {
	logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
	CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return -1
}
