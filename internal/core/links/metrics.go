package links

import (
	"errors"
	"time"

	coreerrors "github.com/lueurxax/gnews-link-resolver/internal/core/errors"
	"github.com/lueurxax/gnews-link-resolver/internal/platform/observability"
)

// Metric label values.
const (
	ResultResolved   = "resolved"
	ResultCached     = "cached"
	ResultIneligible = "ineligible"
	ResultFailed     = "failed"

	outcomeResolved  = "resolved"
	outcomeRemote    = "needs_remote"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
	kindDecode       = "decode"
	kindNetwork      = "network"
	kindProtocol     = "protocol_shape"
	kindParse        = "parse"
	kindValidation   = "validation"
	kindNoRedirect   = "no_redirect"
	kindUnclassified = "other"
)

// RecordResolve records the final result and latency of one Resolve call.
func RecordResolve(result string, duration time.Duration) {
	observability.ResolveRequests.WithLabelValues(result).Inc()
	observability.ResolveDuration.Observe(duration.Seconds())
}

// RecordStrategyAttempt records one strategy outcome.
func RecordStrategyAttempt(strategy, outcome string) {
	observability.StrategyAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordStrategyError records a strategy failure by error kind.
func RecordStrategyError(strategy string, err error) {
	observability.StrategyErrors.WithLabelValues(strategy, errorKind(err)).Inc()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, coreerrors.ErrProtocolShape):
		return kindProtocol
	case errors.Is(err, coreerrors.ErrDecode):
		return kindDecode
	case errors.Is(err, coreerrors.ErrNetwork):
		return kindNetwork
	case errors.Is(err, coreerrors.ErrParse):
		return kindParse
	case errors.Is(err, coreerrors.ErrValidation):
		return kindValidation
	case errors.Is(err, coreerrors.ErrNoRedirect):
		return kindNoRedirect
	default:
		return kindUnclassified
	}
}
