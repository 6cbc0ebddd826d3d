package tool

import (
	"errors"
	"strings"

	"aura-agents/internal/domain"
)

// retryableSentinels are domain errors that usually clear up on their own.
var retryableSentinels = []error{
	domain.ErrTimeout,
	domain.ErrProviderUnavailable,
	domain.ErrRateLimit,
}

// retryablePatterns catch transient failures from errors that carry no
// sentinel, matched case-insensitively.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"try again",
	"broken pipe",
}

// classifyToolError reports whether a failed tool call may succeed on retry.
func classifyToolError(err error) bool {
	if err == nil {
		return false
	}
	for _, sentinel := range retryableSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
