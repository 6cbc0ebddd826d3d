package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Category sentinels. Every error returned across a package boundary matches
// exactly one of these via errors.Is.
var (
	ErrNotFound            = fmt.Errorf("not found")
	ErrExecutionFailed     = fmt.Errorf("execution failed")
	ErrProviderUnavailable = fmt.Errorf("provider unavailable")
	ErrModelNotFound       = fmt.Errorf("model not found")
	ErrTimeout             = fmt.Errorf("operation timed out")
	ErrCancelled           = fmt.Errorf("operation cancelled")
	ErrValidationFailed    = fmt.Errorf("validation failed")
)

// Specialised sentinels. Each wraps one category sentinel.
var (
	ErrAgentNotFound      = fmt.Errorf("agent %w", ErrNotFound)
	ErrToolNotFound       = fmt.Errorf("tool %w", ErrNotFound)
	ErrMaxIterations      = fmt.Errorf("iteration limit exceeded: %w", ErrExecutionFailed)
	ErrContextOverflow    = fmt.Errorf("context window exceeded: %w", ErrExecutionFailed)
	ErrToolFailure        = fmt.Errorf("tool execution failed: %w", ErrExecutionFailed)
	ErrVectorStore        = fmt.Errorf("retrieval store operation failed: %w", ErrExecutionFailed)
	ErrProviderNotFound   = fmt.Errorf("llm provider not registered: %w", ErrProviderUnavailable)
	ErrRateLimit          = fmt.Errorf("rate limit exceeded: %w", ErrProviderUnavailable)
	ErrAuthInvalid        = fmt.Errorf("authentication failed: %w", ErrProviderUnavailable)
	ErrCircuitOpen        = fmt.Errorf("circuit open: %w", ErrProviderUnavailable)
	ErrInvalidDefinition  = fmt.Errorf("invalid agent definition: %w", ErrValidationFailed)
	ErrPathOutsideSandbox = fmt.Errorf("path is outside sandbox boundary: %w", ErrValidationFailed)
	ErrToolApprovalDenied = fmt.Errorf("tool approval denied")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")
	ErrDuplicate          = fmt.Errorf("duplicate")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Get")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrCircuitOpen)
}

// categories is ordered from most to least specific so that an error wrapping
// several sentinels resolves deterministically.
var categories = []error{
	ErrCancelled,
	ErrTimeout,
	ErrModelNotFound,
	ErrProviderUnavailable,
	ErrValidationFailed,
	ErrNotFound,
	ErrExecutionFailed,
}

// CategoryOf returns the taxonomy sentinel err belongs to. Context errors map
// to Cancelled and Timeout; anything unclassified maps to ErrExecutionFailed.
// Returns nil for a nil error.
func CategoryOf(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range categories {
		if errors.Is(err, c) {
			return c
		}
	}
	switch {
	case errors.Is(err, context.Canceled):
		return ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	}
	return ErrExecutionFailed
}

// Classify returns err unchanged when it already belongs to a category, or
// wraps it with the category CategoryOf assigns. The result always satisfies
// errors.Is(result, CategoryOf(err)).
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	cat := CategoryOf(err)
	if errors.Is(err, cat) {
		return err
	}
	return &DomainError{Op: op, Err: fmt.Errorf("%w: %w", cat, err)}
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeAgentNotFound       ErrorCode = "AGENT_NOT_FOUND"
	CodeToolNotFound        ErrorCode = "TOOL_NOT_FOUND"
	CodeExecutionFailed     ErrorCode = "EXECUTION_FAILED"
	CodeMaxIterations       ErrorCode = "MAX_ITERATIONS"
	CodeContextOverflow     ErrorCode = "CONTEXT_OVERFLOW"
	CodeToolFailure         ErrorCode = "TOOL_FAILURE"
	CodeVectorStore         ErrorCode = "VECTOR_STORE"
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeProviderNotFound    ErrorCode = "PROVIDER_NOT_FOUND"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen         ErrorCode = "CIRCUIT_OPEN"
	CodeModelNotFound       ErrorCode = "MODEL_NOT_FOUND"
	CodeTimeout             ErrorCode = "TIMEOUT"
	CodeCancelled           ErrorCode = "CANCELLED"
	CodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	CodeInvalidDefinition   ErrorCode = "INVALID_DEFINITION"
	CodePathOutsideSandbox  ErrorCode = "PATH_OUTSIDE_SANDBOX"
	CodeToolApprovalDenied  ErrorCode = "TOOL_APPROVAL_DENIED"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeDuplicate           ErrorCode = "DUPLICATE"
)

// specificCodes is checked before the category fallback. Order matters only
// between sentinels that wrap one another, which none of these do.
var specificCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrAgentNotFound, CodeAgentNotFound},
	{ErrToolNotFound, CodeToolNotFound},
	{ErrMaxIterations, CodeMaxIterations},
	{ErrContextOverflow, CodeContextOverflow},
	{ErrToolFailure, CodeToolFailure},
	{ErrVectorStore, CodeVectorStore},
	{ErrProviderNotFound, CodeProviderNotFound},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrInvalidDefinition, CodeInvalidDefinition},
	{ErrPathOutsideSandbox, CodePathOutsideSandbox},
	{ErrToolApprovalDenied, CodeToolApprovalDenied},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrDuplicate, CodeDuplicate},
}

var categoryCodes = map[error]ErrorCode{
	ErrNotFound:            CodeNotFound,
	ErrExecutionFailed:     CodeExecutionFailed,
	ErrProviderUnavailable: CodeProviderUnavailable,
	ErrModelNotFound:       CodeModelNotFound,
	ErrTimeout:             CodeTimeout,
	ErrCancelled:           CodeCancelled,
	ErrValidationFailed:    CodeValidationFailed,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Specialised sentinels win over their category. Returns CodeUnknown for nil.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, sc := range specificCodes {
		if errors.Is(err, sc.err) {
			return sc.code
		}
	}
	return categoryCodes[CategoryOf(err)]
}

// statusClientClosedRequest is the de-facto status for a client abort.
const statusClientClosedRequest = 499

var categoryStatus = map[error]int{
	ErrNotFound:            http.StatusNotFound,
	ErrExecutionFailed:     http.StatusInternalServerError,
	ErrProviderUnavailable: http.StatusServiceUnavailable,
	ErrModelNotFound:       http.StatusNotFound,
	ErrTimeout:             http.StatusGatewayTimeout,
	ErrCancelled:           statusClientClosedRequest,
	ErrValidationFailed:    http.StatusUnprocessableEntity,
}

// HTTPStatusOf maps err to a stable HTTP status code. Returns 200 for nil.
func HTTPStatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return categoryStatus[CategoryOf(err)]
}
