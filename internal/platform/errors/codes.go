// Package errors provides structured webpay errors with machine-readable codes.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Callback URL errors
	CodeInvalidURL     Code = "INVALID_URL"
	CodeCallbackScheme Code = "CALLBACK_SCHEME_NOT_ALLOWED"

	// JWT issuer errors
	CodeUnknownIssuer  Code = "UNKNOWN_ISSUER"
	CodeInvalidRequest Code = "INVALID_PAY_REQUEST"

	// Notice errors
	CodeNoticeMismatch Code = "NOTICE_RESPONSE_MISMATCH"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Internal endpoint errors
	CodeUnauthenticated Code = "UNAUTHENTICATED"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidURL,
		CodeCallbackScheme,
		CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeUnknownIssuer:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNoticeMismatch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
