// Package web serves the pay lobby and the internal notice scheduling
// endpoint.
package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"

	"github.com/louisbranch/webpay/internal/platform/timeouts"
	"github.com/louisbranch/webpay/internal/services/pay/integration/solitude"
	"github.com/louisbranch/webpay/internal/services/pay/issuer"
	"github.com/louisbranch/webpay/internal/services/pay/postback"
	"github.com/louisbranch/webpay/internal/services/web/platform/httpx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"
)

// Route paths served by the web service.
const (
	// LobbyPath is the pay.lobby page.
	LobbyPath   = "/"
	NoticesPath = "/internal/notices"
	HealthPath  = "/healthz"
)

// RequestVerifier verifies pay request JWTs.
type RequestVerifier interface {
	VerifyRequest(ctx context.Context, token string) (*issuer.PayRequest, *solitude.Product, error)
}

// NoticeScheduler queues signed app notices.
type NoticeScheduler interface {
	Schedule(ctx context.Context, req postback.Request) (postback.Scheduled, error)
}

// ServiceAuthenticator checks bearer tokens on internal endpoints.
type ServiceAuthenticator interface {
	VerifyServiceToken(token string) error
}

// Config configures the web handler and server.
type Config struct {
	HTTPAddr string
	// MaxConns caps concurrent connections; zero means no limit.
	MaxConns int
	// JSSettings is exposed to front-end code on the lobby body.
	JSSettings map[string]any
	Verifier   RequestVerifier
	// Scheduler enables the internal notice endpoint when set.
	Scheduler NoticeScheduler
	// Authenticator guards internal endpoints. Without one every internal
	// request is rejected.
	Authenticator ServiceAuthenticator
}

// Server hosts the webpay HTTP server.
type Server struct {
	httpAddr   string
	maxConns   int
	httpServer *http.Server
}

type handler struct {
	jsSettings map[string]any
	verifier   RequestVerifier
	scheduler  NoticeScheduler
}

func serviceBearer(auth ServiceAuthenticator) httpx.BearerVerifier {
	if auth == nil {
		return nil
	}
	return func(_ context.Context, token string) error {
		return auth.VerifyServiceToken(token)
	}
}

// NewHandler builds the routed web handler.
func NewHandler(config Config) http.Handler {
	h := &handler{
		jsSettings: config.JSSettings,
		verifier:   config.Verifier,
		scheduler:  config.Scheduler,
	}

	mux := http.NewServeMux()
	mux.Handle("GET "+LobbyPath+"{$}", http.HandlerFunc(h.handleLobby))
	mux.Handle(NoticesPath, httpx.Chain(http.HandlerFunc(h.handleScheduleNotice),
		httpx.RequireMethod(http.MethodPost),
		httpx.RequireBearer(serviceBearer(config.Authenticator)),
	))
	mux.HandleFunc("GET "+HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return httpx.Chain(mux, httpx.RecoverPanic(), httpx.RequestID())
}

// NewServer creates a configured web server.
func NewServer(config Config) (*Server, error) {
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           otelhttp.NewHandler(NewHandler(config), "webpay.web"),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	return &Server{httpAddr: httpAddr, maxConns: config.MaxConns, httpServer: httpServer}, nil
}

// ListenAndServe runs the HTTP server until the context ends.
//
// On cancellation, it performs a bounded shutdown so in-flight requests
// are drained before hard close.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("web server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	listener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpAddr, err)
	}
	if s.maxConns > 0 {
		listener = netutil.LimitListener(listener, s.maxConns)
	}

	serveErr := make(chan error, 1)
	log.Printf("web listening on %s", listener.Addr())
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}
