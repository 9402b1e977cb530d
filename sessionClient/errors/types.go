package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeInvalidPolicy indicates a policy request that contradicts its permission kind
	ErrCodeInvalidPolicy ErrorCode = "INVALID_POLICY"

	// ErrCodeKeyGeneration indicates the signer component could not produce key material
	ErrCodeKeyGeneration ErrorCode = "KEY_GENERATION"

	// ErrCodeNoAuthorizedSigner indicates neither a session key nor the root key may sign
	ErrCodeNoAuthorizedSigner ErrorCode = "NO_AUTHORIZED_SIGNER"

	// ErrCodeDeployment indicates the relayer failed to deploy the smart account
	ErrCodeDeployment ErrorCode = "DEPLOYMENT"

	// ErrCodeGasSponsorship indicates sponsorship failed with no fallback left
	ErrCodeGasSponsorship ErrorCode = "GAS_SPONSORSHIP"

	// ErrCodeConfirmationTimeout indicates the confirmation wait expired; outcome unknown
	ErrCodeConfirmationTimeout ErrorCode = "CONFIRMATION_TIMEOUT"

	// ErrCodeAuthentication indicates the custodial session is absent or expired
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION"

	// ErrCodeNotFound indicates a record does not exist
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeValidation indicates input validation errors
	ErrCodeValidation ErrorCode = "VALIDATION"

	// ErrCodeNetwork indicates network-related errors
	ErrCodeNetwork ErrorCode = "NETWORK"

	// ErrCodeDatabase indicates database operation errors
	ErrCodeDatabase ErrorCode = "DATABASE"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeRPC indicates RPC-related errors
	ErrCodeRPC ErrorCode = "RPC"

	// ErrCodeInternal indicates internal system errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Severity represents the severity level of an error
type Severity string

const (
	// SeverityCritical indicates critical errors that require immediate attention
	SeverityCritical Severity = "CRITICAL"

	// SeverityHigh indicates high priority errors
	SeverityHigh Severity = "HIGH"

	// SeverityMedium indicates medium priority errors
	SeverityMedium Severity = "MEDIUM"

	// SeverityLow indicates low priority errors
	SeverityLow Severity = "LOW"

	// SeverityInfo indicates informational errors
	SeverityInfo Severity = "INFO"
)

// BridgeError is the typed outcome returned by every bridge operation.
type BridgeError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Account  string                 `json:"account,omitempty"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// New creates a new BridgeError
func New(code ErrorCode, account, message string, cause error) *BridgeError {
	return &BridgeError{
		Code:     code,
		Message:  message,
		Account:  account,
		Severity: determineSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Account != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Account, e.Code, e.Severity, msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, msg)
}

// Unwrap returns the underlying cause
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *BridgeError) WithContext(key string, value interface{}) *BridgeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity
func (e *BridgeError) WithSeverity(severity Severity) *BridgeError {
	e.Severity = severity
	return e
}

// IsRetryable returns true if the error is retryable
func (e *BridgeError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeNetwork, ErrCodeRPC:
		return true
	case ErrCodeDatabase:
		return e.Severity != SeverityCritical
	default:
		return false
	}
}

func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeInternal:
		return SeverityCritical
	case ErrCodeDatabase, ErrCodeKeyGeneration, ErrCodeDeployment:
		return SeverityHigh
	case ErrCodeGasSponsorship, ErrCodeConfirmationTimeout, ErrCodeNetwork, ErrCodeRPC:
		return SeverityMedium
	case ErrCodeInvalidPolicy, ErrCodeValidation, ErrCodeConfig, ErrCodeNoAuthorizedSigner, ErrCodeAuthentication:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// NewInvalidPolicyError is returned by the policy encoder; the caller must fix the request.
func NewInvalidPolicyError(message string) *BridgeError {
	return New(ErrCodeInvalidPolicy, "", message, nil)
}

// NewKeyGenerationError is fatal for the issuance attempt it came from.
func NewKeyGenerationError(account string, cause error) *BridgeError {
	return New(ErrCodeKeyGeneration, account, "failed to generate session key material", cause)
}

// NewNoAuthorizedSignerError creates an authorization failure
func NewNoAuthorizedSignerError(account, message string) *BridgeError {
	return New(ErrCodeNoAuthorizedSigner, account, message, nil)
}

// NewDeploymentError creates a deployment error
func NewDeploymentError(account string, cause error) *BridgeError {
	return New(ErrCodeDeployment, account, "smart account deployment failed", cause)
}

// NewGasSponsorshipError creates a gas sponsorship error
func NewGasSponsorshipError(account, message string, cause error) *BridgeError {
	return New(ErrCodeGasSponsorship, account, message, cause)
}

// NewConfirmationTimeoutError reports an ambiguous outcome: the operation may still land.
func NewConfirmationTimeoutError(account, txID string) *BridgeError {
	return New(ErrCodeConfirmationTimeout, account, "timed out waiting for confirmation", nil).
		WithContext("tx_id", txID)
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string) *BridgeError {
	return New(ErrCodeAuthentication, "", message, nil)
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(message string) *BridgeError {
	return New(ErrCodeNotFound, "", message, nil)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *BridgeError {
	return New(ErrCodeValidation, "", message, nil)
}

// NewNetworkError creates a network error
func NewNetworkError(message string, cause error) *BridgeError {
	return New(ErrCodeNetwork, "", message, cause)
}

// NewDatabaseError creates a database error
func NewDatabaseError(message string, cause error) *BridgeError {
	return New(ErrCodeDatabase, "", message, cause)
}

// NewConfigError creates a configuration error
func NewConfigError(message string) *BridgeError {
	return New(ErrCodeConfig, "", message, nil)
}

// NewRPCError creates an RPC error
func NewRPCError(message string, cause error) *BridgeError {
	return New(ErrCodeRPC, "", message, cause)
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *BridgeError {
	return New(ErrCodeInternal, "", message, cause)
}
