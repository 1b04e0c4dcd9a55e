package resilience

import "github.com/teemulinna/council/internal/modelclient"

// RecoveryStrategy identifies how a caller should react to a failure.
type RecoveryStrategy string

const (
	StrategyRateLimit     RecoveryStrategy = "rate_limit"
	StrategyTimeout       RecoveryStrategy = "timeout"
	StrategyAuthError     RecoveryStrategy = "auth_error"
	StrategyQuotaExceeded RecoveryStrategy = "quota_exceeded"
	StrategyUnknown       RecoveryStrategy = "unknown"
)

// ErrorRecovery maps a classified Failure to a recovery strategy.
type ErrorRecovery struct{}

// GetRecoveryStrategy maps failure.Kind to one of the RecoveryStrategy
// values.
func (ErrorRecovery) GetRecoveryStrategy(failure *modelclient.Failure) RecoveryStrategy {
	if failure == nil {
		return StrategyUnknown
	}
	switch failure.Kind {
	case modelclient.FailureRateLimited:
		return StrategyRateLimit
	case modelclient.FailureTransportTimeout:
		return StrategyTimeout
	case modelclient.FailureUnauthorized:
		return StrategyAuthError
	case modelclient.FailureQuotaExceeded:
		return StrategyQuotaExceeded
	default:
		return StrategyUnknown
	}
}

// ShouldUseCheaperModel reports whether strategy signals that subsequent
// calls should downgrade to a cheaper tier.
func ShouldUseCheaperModel(strategy RecoveryStrategy) bool {
	return strategy == StrategyQuotaExceeded || strategy == StrategyRateLimit
}
