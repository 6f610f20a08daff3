package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies errors coming back from the Bilibili API.
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeAuthExpired ErrorType = "auth_expired"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Bilibili embeds error information in the response envelope rather than
// the HTTP status line. These are the two codes the crawler treats as
// transient.
const (
	// CodeCredentialExpired is returned when the session cookie is no
	// longer valid and must be refreshed.
	CodeCredentialExpired = -352
	// CodeRateLimited mirrors the 412 the gateway answers with when a
	// client requests too aggressively.
	CodeRateLimited = 412
)

// Error represents a Bilibili API error with type information.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("bilibili %s error (code %d): %s", e.Type, e.Code, e.Message)
}

// New builds a typed error.
func New(t ErrorType, code int, message string) *Error {
	return &Error{Type: t, Message: message, Code: code}
}

// FromCode maps a non-zero Bilibili envelope code to a typed error.
func FromCode(code int, message string) *Error {
	switch code {
	case CodeCredentialExpired:
		return &Error{Type: ErrorTypeAuthExpired, Message: message, Code: code}
	case CodeRateLimited:
		return &Error{Type: ErrorTypeRateLimit, Message: message, Code: code}
	case -404, 62002, 62012:
		// -404: nothing found; 62002/62012: hidden or reviewing content.
		return &Error{Type: ErrorTypeNotFound, Message: message, Code: code}
	default:
		return &Error{Type: ErrorTypeUnknown, Message: message, Code: code}
	}
}

// FromStatusCode maps an HTTP status to a typed error.
func FromStatusCode(status int, message string) *Error {
	switch {
	case status == 412 || status == 429:
		return &Error{Type: ErrorTypeRateLimit, Message: message, Code: status}
	case status == 404:
		return &Error{Type: ErrorTypeNotFound, Message: message, Code: status}
	case status >= 500:
		return &Error{Type: ErrorTypeServerError, Message: message, Code: status}
	default:
		return &Error{Type: ErrorTypeUnknown, Message: message, Code: status}
	}
}

// IsRateLimited reports whether err carries the rate-limit signal.
func IsRateLimited(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsAuthExpired reports whether err carries the credential-expired signal.
func IsAuthExpired(err error) bool {
	return hasType(err, ErrorTypeAuthExpired)
}

// IsNotFound reports whether err marks a missing resource.
func IsNotFound(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

func hasType(err error, t ErrorType) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Type == t
}
