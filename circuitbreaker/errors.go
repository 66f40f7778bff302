package circuitbreaker

import apperrors "github.com/arielkovacs/msgbus/internal/errors"

// Sentinel errors for circuit breaker.
var (
	// ErrCircuitOpen is returned when the circuit is open and the
	// operation was skipped in favor of the fallback.
	ErrCircuitOpen = apperrors.New(apperrors.CodeCircuitOpen, "circuit breaker is open", nil)

	// ErrTooManyRequests is returned when too many probes are in flight
	// while the circuit is half-open.
	ErrTooManyRequests = apperrors.New(apperrors.CodeConflict, "too many requests in half-open state", nil)
)
