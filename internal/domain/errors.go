package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrTargetNotFound  = fmt.Errorf("target not found")
	ErrTimeout         = fmt.Errorf("backend timed out")
	ErrUnreachable     = fmt.Errorf("backend unreachable")
	ErrMalformedReply  = fmt.Errorf("malformed backend reply")
	ErrBackendStatus   = fmt.Errorf("backend rejected request")
	ErrSessionNotFound = fmt.Errorf("session not found")
	ErrConfigLoad      = fmt.Errorf("failed to load configuration")
	ErrDecryption      = fmt.Errorf("decryption failed")
	ErrCircuitOpen     = fmt.Errorf("backend circuit open")
)

// DomainError wraps a sentinel error with operation context.
type DomainError struct {
	Op     string // operation name (e.g., "Client.Run")
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

// StatusError carries a non-2xx backend response. It wraps
// ErrBackendStatus so errors.Is classification still works.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend status %d: %s", e.Code, e.Body)
	}
	return fmt.Sprintf("backend status %d", e.Code)
}

func (e *StatusError) Unwrap() error { return ErrBackendStatus }

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown        ErrorCode = "UNKNOWN"
	CodeTargetNotFound ErrorCode = "TARGET_NOT_FOUND"
	CodeTimeout        ErrorCode = "TIMEOUT"
	CodeUnreachable    ErrorCode = "UNREACHABLE"
	CodeMalformedReply ErrorCode = "MALFORMED_REPLY"
	CodeBackendStatus  ErrorCode = "BACKEND_STATUS"
	CodeSessionNotFnd  ErrorCode = "SESSION_NOT_FOUND"
	CodeConfigLoad     ErrorCode = "CONFIG_LOAD"
	CodeDecryption     ErrorCode = "DECRYPTION"
	CodeCircuitOpen    ErrorCode = "CIRCUIT_OPEN"
)

var errorCodeMap = map[error]ErrorCode{
	ErrTargetNotFound:  CodeTargetNotFound,
	ErrTimeout:         CodeTimeout,
	ErrUnreachable:     CodeUnreachable,
	ErrMalformedReply:  CodeMalformedReply,
	ErrBackendStatus:   CodeBackendStatus,
	ErrSessionNotFound: CodeSessionNotFnd,
	ErrConfigLoad:      CodeConfigLoad,
	ErrDecryption:      CodeDecryption,
	ErrCircuitOpen:     CodeCircuitOpen,
}

// ErrorCodeOf returns the machine-parseable code for err. It walks the
// error chain with errors.Is, so wrapped sentinels classify correctly.
// Returns CodeUnknown if no sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
