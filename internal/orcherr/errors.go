// Package orcherr defines the structured error taxonomy shared by every
// component of the orchestration core.
package orcherr

import "fmt"

// Code is a closed enum of the failure classes the core can surface.
type Code string

const (
	CodeInvalidRequest   Code = "INVALID_REQUEST"
	CodeBudgetExceeded   Code = "BUDGET_EXCEEDED"
	CodeCircuitOpen      Code = "CIRCUIT_OPEN"
	CodeGovernanceDenied Code = "GOVERNANCE_DENIED"
	CodeNoProvider       Code = "NO_PROVIDER"
	CodeNoAvailableModel Code = "NO_AVAILABLE_MODELS"
	CodeProviderTransient Code = "PROVIDER_TRANSIENT"
	CodeProviderPermanent Code = "PROVIDER_PERMANENT"
	CodeCancelled        Code = "CANCELLED"
	CodeTimeout          Code = "TIMEOUT"
	CodeDisabled         Code = "ORCHESTRATOR_DISABLED"
)

// Error is the structured error type returned from every exported entry
// point in this module. It carries enough context for a caller to decide
// whether to retry and where in the pipeline the failure occurred.
type Error struct {
	Code      Code
	Message   string
	Stage     string // e.g. "budget", "circuit", "governance", "upstream"
	Provider  string
	Model     string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s (stage=%s): %v", e.Code, e.Message, e.Stage, e.Cause)
	}
	return fmt.Sprintf("[%s] %s (stage=%s)", e.Code, e.Message, e.Stage)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error for the given stage.
func New(code Code, stage, message string) *Error {
	return &Error{Code: code, Stage: stage, Message: message}
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithProvider records the offending provider.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithModel records the offending model tier.
func (e *Error) WithModel(model string) *Error {
	e.Model = model
	return e
}

// WithRetryable marks whether the failure is safe to retry.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable reports whether err is an *Error marked retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// CodeOf extracts the Code from err, or "" if err is not an *Error.
func CodeOf(err error) Code {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
