// Package httpx provides HTTP middleware and response helpers for webpay pages
// and internal endpoints.
package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/a-h/templ"
	apperrors "github.com/louisbranch/webpay/internal/platform/errors"
)

const requestIDHeader = "X-Request-ID"

// Middleware wraps an HTTP handler.
type Middleware func(http.Handler) http.Handler

var requestIDCounter atomic.Uint64

// Chain applies middleware in declaration order.
func Chain(handler http.Handler, middleware ...Middleware) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	wrapped := handler
	for idx := len(middleware) - 1; idx >= 0; idx-- {
		if middleware[idx] == nil {
			continue
		}
		wrapped = middleware[idx](wrapped)
	}
	return wrapped
}

// RequireMethod rejects requests outside the allowed method.
func RequireMethod(method string) Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != method {
				w.Header().Set("Allow", method)
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerVerifier checks a bearer token taken from the Authorization header.
type BearerVerifier func(ctx context.Context, token string) error

// RequireBearer rejects requests without a bearer token accepted by verify.
// A nil verify rejects every request.
func RequireBearer(verify BearerVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			var err error
			switch {
			case verify == nil:
				err = apperrors.New(apperrors.CodeUnauthenticated, "authentication is not configured")
			case !ok:
				err = apperrors.New(apperrors.CodeUnauthenticated, "bearer token is required")
			default:
				err = verify(RequestContext(r), token)
			}
			if err != nil {
				log.Printf("unauthenticated request method=%s path=%s: %v", r.Method, r.URL.Path, err)
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteError(w, apperrors.Wrap(apperrors.CodeUnauthenticated, "unauthenticated", err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequestID injects and echoes a request id for log correlation.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
			if requestID == "" {
				requestID = fmt.Sprintf("webpay-%d-%d", time.Now().UnixNano(), requestIDCounter.Add(1))
				r.Header.Set(requestIDHeader, requestID)
			}
			w.Header().Set(requestIDHeader, requestID)
			next.ServeHTTP(w, r)
		})
	}
}

// RecoverPanic converts panics into HTTP 500 responses.
func RecoverPanic() Middleware {
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
				if requestID == "" {
					requestID = "-"
				}
				log.Printf(
					"panic recovered method=%s path=%s request_id=%s panic=%v stack=%s",
					r.Method,
					r.URL.Path,
					requestID,
					recovered,
					strings.TrimSpace(string(debug.Stack())),
				)
				w.WriteHeader(http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WriteJSON writes a JSON response with the provided status code.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return fmt.Errorf("response writer is required")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// ErrorBody is the JSON shape of error responses.
type ErrorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// WriteError writes a JSON error whose status follows the error's code.
func WriteError(w http.ResponseWriter, err error) {
	if w == nil {
		return
	}
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	code := apperrors.GetCode(err)
	status := code.HTTPStatus()
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
		message = http.StatusText(status)
	}
	if writeErr := WriteJSON(w, status, ErrorBody{Code: string(code), Error: message}); writeErr != nil {
		log.Printf("write error response: %v", writeErr)
	}
}

// WriteComponent renders a templ component as an HTML response.
func WriteComponent(w http.ResponseWriter, r *http.Request, status int, component templ.Component) error {
	if w == nil {
		return fmt.Errorf("response writer is required")
	}
	if component == nil {
		return fmt.Errorf("component is required")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return component.Render(RequestContext(r), w)
}

// RequestContext returns r.Context() with a nil-safe fallback to context.Background().
func RequestContext(r *http.Request) context.Context {
	if r == nil {
		return context.Background()
	}
	return r.Context()
}
