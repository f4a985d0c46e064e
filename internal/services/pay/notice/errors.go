package notice

import (
	"errors"
	"fmt"

	apperrors "github.com/louisbranch/webpay/internal/platform/errors"
)

// RequestError wraps a transport failure while posting a notice.
type RequestError struct {
	URL   string
	Cause error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("post notice to %s: %v", e.URL, e.Cause)
}

func (e *RequestError) Unwrap() error { return e.Cause }

// HTTPError reports a non-2xx response from the app.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d response from %s", e.StatusCode, e.URL)
}

// ResponseMismatchError reports that the app did not echo the transaction ID.
type ResponseMismatchError struct {
	URL     string
	TransID string
}

func (e *ResponseMismatchError) Error() string {
	return fmt.Sprintf("Incorrect notification response from: %s", e.URL)
}

func (e *ResponseMismatchError) Unwrap() error {
	return apperrors.New(apperrors.CodeNoticeMismatch, "notice response mismatch")
}

// FormatError renders err as "<Kind>: <message>" for storage as a notice's
// last error.
func FormatError(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", errorKind(err), err.Error())
}

func errorKind(err error) string {
	var requestErr *RequestError
	var httpErr *HTTPError
	var mismatchErr *ResponseMismatchError
	switch {
	case errors.As(err, &mismatchErr):
		return "ValueError"
	case errors.As(err, &httpErr):
		return "HTTPError"
	case errors.As(err, &requestErr):
		return "RequestException"
	case errors.Is(err, ErrRetryScheduled):
		return "RetryTaskError"
	default:
		return "Exception"
	}
}
