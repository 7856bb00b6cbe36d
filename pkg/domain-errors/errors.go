// Package domainerrors defines the categorized errors that services return and
// the transport layer translates. Errors are comparable values so tests can use
// errors.Is against a freshly constructed equivalent.
package domainerrors

import (
	"fmt"
	"net/http"
)

// Code categorizes a failure for transport mapping and logging.
type Code string

const (
	// CodeCSRFMismatch marks a callback whose state is absent or not equal to
	// the stored value. Rejected before any provider call.
	CodeCSRFMismatch Code = "csrf_mismatch"

	// CodeExternalService marks a failed call to an external provider:
	// network error, non-2xx status, or unparseable response.
	CodeExternalService Code = "external_service"

	// CodeNotFound marks a lookup for a record that does not exist.
	CodeNotFound Code = "not_found"

	// CodeInvalidInput marks malformed caller input.
	CodeInvalidInput Code = "invalid_input"

	// CodeUnauthorized marks a missing, invalid, or expired credential.
	CodeUnauthorized Code = "unauthorized"

	// CodeInternal marks session write failures, signing failures, and
	// unexpected persistence errors.
	CodeInternal Code = "internal"
)

// Error carries a code, an optional external service name, and a message.
// The zero Service distinguishes domain failures from provider failures.
type Error struct {
	Code    Code
	Service string
	Message string
}

func (e Error) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Service, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds a domain error with the given code and message.
func New(code Code, message string) Error {
	return Error{Code: code, Message: message}
}

// External builds an external-service failure tagged with the provider name.
func External(service, detail string) Error {
	return Error{Code: CodeExternalService, Service: service, Message: detail}
}

// CodeOf extracts the Code from an error, defaulting to CodeInternal for
// anything that is not a domainerrors.Error.
func CodeOf(err error) Code {
	if de, ok := err.(Error); ok {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps an error code to the HTTP status the transport layer
// responds with. CSRF mismatches share the unauthorized status so the two
// flow-state failures stay indistinguishable to external callers.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeCSRFMismatch, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
