package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("lookup: %w", New(CodeUnknownIssuer, "unknown issuer"))
	if !stderrors.Is(err, &Error{Code: CodeUnknownIssuer}) {
		t.Fatal("expected errors.Is to match by code")
	}
	if stderrors.Is(err, &Error{Code: CodeInvalidURL}) {
		t.Fatal("expected errors.Is to reject other codes")
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := stderrors.New("not found")
	err := Wrap(CodeUnknownIssuer, "ObjectDoesNotExist: not found", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause")
	}
}

func TestGetCode(t *testing.T) {
	err := fmt.Errorf("verify: %w", WithMetadata(CodeCallbackScheme, "bad scheme", map[string]string{"URL": "http://x"}))
	if got := GetCode(err); got != CodeCallbackScheme {
		t.Fatalf("code = %q, want %q", got, CodeCallbackScheme)
	}
	if got := GetCode(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
	if !HasCode(err, CodeCallbackScheme) {
		t.Fatal("expected HasCode")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeInvalidURL:      http.StatusBadRequest,
		CodeCallbackScheme:  http.StatusBadRequest,
		CodeUnknownIssuer:   http.StatusForbidden,
		CodeNotFound:        http.StatusNotFound,
		CodeUnauthenticated: http.StatusUnauthorized,
		CodeUnknown:         http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := code.HTTPStatus(); got != want {
			t.Fatalf("%s status = %d, want %d", code, got, want)
		}
	}
}
