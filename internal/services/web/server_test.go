package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	apperrors "github.com/louisbranch/webpay/internal/platform/errors"
	"github.com/louisbranch/webpay/internal/services/pay/integration/solitude"
	"github.com/louisbranch/webpay/internal/services/pay/issuer"
	"github.com/louisbranch/webpay/internal/services/pay/notice"
	"github.com/louisbranch/webpay/internal/services/pay/postback"
	"github.com/louisbranch/webpay/internal/services/web/platform/messages"
)

type fakeVerifier struct {
	payReq *issuer.PayRequest
	err    error
	tokens []string
}

func (f *fakeVerifier) VerifyRequest(_ context.Context, token string) (*issuer.PayRequest, *solitude.Product, error) {
	f.tokens = append(f.tokens, token)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.payReq, nil, nil
}

type fakeScheduler struct {
	requests []postback.Request
	err      error
}

func (f *fakeScheduler) Schedule(_ context.Context, req postback.Request) (postback.Scheduled, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return postback.Scheduled{}, f.err
	}
	return postback.Scheduled{TransID: "webpay:abc", TaskID: 7}, nil
}

const testServiceToken = "service-token"

type fakeAuthenticator struct{}

func (fakeAuthenticator) VerifyServiceToken(token string) error {
	if token != testServiceToken {
		return apperrors.New(apperrors.CodeUnauthenticated, "service token is invalid")
	}
	return nil
}

func noticeRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, NoticesPath, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testServiceToken)
	return req
}

func parseDocument(t *testing.T, rr *httptest.ResponseRecorder) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(rr.Body)
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func TestLobbyRendersJSSettings(t *testing.T) {
	settings := map[string]any{"foo": "bar"}
	handler := NewHandler(Config{JSSettings: settings})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, LobbyPath, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	raw, ok := parseDocument(t, rr).Find("body").Attr("data-settings")
	if !ok {
		t.Fatal("expected data-settings on body")
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("decode data-settings %q: %v", raw, err)
	}
	if !reflect.DeepEqual(got, settings) {
		t.Fatalf("data-settings = %v, want %v", got, settings)
	}
}

func TestLobbyEscapesJSSettings(t *testing.T) {
	settings := map[string]any{"quote": `"><script>alert(1)</script>`}
	handler := NewHandler(Config{JSSettings: settings})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, LobbyPath, nil))
	if strings.Contains(rr.Body.String(), "<script>") {
		t.Fatalf("body contains unescaped script: %q", rr.Body.String())
	}
	doc := parseDocument(t, rr)
	raw, _ := doc.Find("body").Attr("data-settings")
	var got map[string]any
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("decode data-settings %q: %v", raw, err)
	}
	if got["quote"] != settings["quote"] {
		t.Fatalf("quote = %v, want %v", got["quote"], settings["quote"])
	}
}

func TestLobbyDefaultsToEmptySettings(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(Config{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, LobbyPath, nil))
	raw, _ := parseDocument(t, rr).Find("body").Attr("data-settings")
	if raw != "{}" {
		t.Fatalf("data-settings = %q, want {}", raw)
	}
}

func TestLobbyShowsAndConsumesMessages(t *testing.T) {
	addRR := httptest.NewRecorder()
	messages.Add(addRR, httptest.NewRequest(http.MethodGet, LobbyPath, nil), messages.Message{Level: messages.LevelSuccess, Text: "Thanks!"})

	req := httptest.NewRequest(http.MethodGet, LobbyPath, nil)
	for _, cookie := range addRR.Result().Cookies() {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	NewHandler(Config{}).ServeHTTP(rr, req)

	item := parseDocument(t, rr).Find("ul.messages li.success")
	if item.Length() != 1 || item.Text() != "Thanks!" {
		t.Fatalf("message items = %d %q", item.Length(), item.Text())
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("cookies = %+v, want expired messages cookie", cookies)
	}
}

func TestLobbyVerifiesPayRequestAndClearsMessages(t *testing.T) {
	verifier := &fakeVerifier{payReq: &issuer.PayRequest{Issuer: "app-key"}}
	handler := NewHandler(Config{Verifier: verifier})

	req := httptest.NewRequest(http.MethodGet, LobbyPath+"?req=signed.jwt.value", nil)
	req.AddCookie(&http.Cookie{Name: messages.CookieName, Value: "stale"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if len(verifier.tokens) != 1 || verifier.tokens[0] != "signed.jwt.value" {
		t.Fatalf("verified tokens = %v", verifier.tokens)
	}
	doc := parseDocument(t, rr)
	if got, _ := doc.Find("body").Attr("data-issuer"); got != "app-key" {
		t.Fatalf("data-issuer = %q, want %q", got, "app-key")
	}
	if doc.Find("ul.messages").Length() != 0 {
		t.Fatal("expected stale messages to be dropped")
	}
	if got := rr.Header().Get("Set-Cookie"); !strings.Contains(got, messages.CookieName) {
		t.Fatalf("Set-Cookie = %q, want cleared messages cookie", got)
	}
}

// followRedirect replays the cookies set by rr on a GET to its Location.
func followRedirect(t *testing.T, handler http.Handler, rr *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	t.Helper()
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusSeeOther)
	}
	location := rr.Header().Get("Location")
	if location != LobbyPath {
		t.Fatalf("location = %q, want %q", location, LobbyPath)
	}
	req := httptest.NewRequest(http.MethodGet, location, nil)
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == messages.CookieName && cookie.MaxAge >= 0 {
			req.AddCookie(cookie)
		}
	}
	next := httptest.NewRecorder()
	handler.ServeHTTP(next, req)
	return next
}

func TestLobbyRejectsUnknownIssuer(t *testing.T) {
	verifier := &fakeVerifier{err: &issuer.UnknownIssuerError{Issuer: "nope", Cause: solitude.ErrNotFound}}
	handler := NewHandler(Config{Verifier: verifier})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, LobbyPath+"?req=x", nil))

	next := followRedirect(t, handler, rr)
	if next.Code != http.StatusOK {
		t.Fatalf("lobby status = %d, want %d", next.Code, http.StatusOK)
	}
	item := parseDocument(t, next).Find("ul.messages li.error")
	if item.Length() != 1 || item.Text() != msgUnknownIssuer {
		t.Fatalf("error items = %d %q", item.Length(), item.Text())
	}
}

func TestLobbyRejectsInvalidPayRequest(t *testing.T) {
	verifier := &fakeVerifier{err: apperrors.New(apperrors.CodeInvalidRequest, "pay request signature is invalid")}
	handler := NewHandler(Config{Verifier: verifier})
	req := httptest.NewRequest(http.MethodGet, LobbyPath+"?req=x", nil)
	req.AddCookie(&http.Cookie{Name: messages.CookieName, Value: "stale"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	item := parseDocument(t, followRedirect(t, handler, rr)).Find("ul.messages li")
	if item.Length() != 1 || item.Text() != msgInvalidRequest {
		t.Fatalf("message items = %d %q, want only the rejection", item.Length(), item.Text())
	}
}

func TestScheduleNoticeQueuesRequest(t *testing.T) {
	scheduler := &fakeScheduler{}
	handler := NewHandler(Config{Scheduler: scheduler, Authenticator: fakeAuthenticator{}})

	body := `{"type":"payment","issuer":"app-key","url":"https://app.example.com/pb","request":{"id":"sku"},"response":{"price":"0.99"},"simulation":"postback"}`
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, noticeRequest(body))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}
	var resp scheduleNoticeResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TransID != "webpay:abc" || resp.TaskID != 7 {
		t.Fatalf("response = %+v", resp)
	}
	if len(scheduler.requests) != 1 {
		t.Fatalf("scheduled = %d, want 1", len(scheduler.requests))
	}
	got := scheduler.requests[0]
	if got.Type != notice.TypePayment || got.AppIssuer != "app-key" || got.Simulated != notice.SimulatedPostback {
		t.Fatalf("request = %+v", got)
	}
}

func TestScheduleNoticeMapsErrorCodes(t *testing.T) {
	scheduler := &fakeScheduler{err: apperrors.New(apperrors.CodeCallbackScheme, "Schema must be one of: [https] not http://x")}
	rr := httptest.NewRecorder()
	NewHandler(Config{Scheduler: scheduler, Authenticator: fakeAuthenticator{}}).ServeHTTP(rr, noticeRequest(`{"type":"chargeback","issuer":"app-key","url":"http://x"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rr.Body.String(), string(apperrors.CodeCallbackScheme)) {
		t.Fatalf("body = %q, want error code", rr.Body.String())
	}
}

func TestScheduleNoticeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{`},
		{name: "unknown field", body: `{"type":"payment","extra":1}`},
		{name: "unknown type", body: `{"type":"refund"}`},
		{name: "unknown simulation", body: `{"type":"payment","simulation":"maybe"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scheduler := &fakeScheduler{}
			rr := httptest.NewRecorder()
			NewHandler(Config{Scheduler: scheduler, Authenticator: fakeAuthenticator{}}).ServeHTTP(rr, noticeRequest(tc.body))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
			}
			if len(scheduler.requests) != 0 {
				t.Fatalf("scheduled = %d, want 0", len(scheduler.requests))
			}
		})
	}
}

func TestScheduleNoticeRequiresPost(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(Config{Scheduler: &fakeScheduler{}}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, NoticesPath, nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestScheduleNoticeDisabledWithoutScheduler(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(Config{Authenticator: fakeAuthenticator{}}).ServeHTTP(rr, noticeRequest(`{}`))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

type recordingQueue struct {
	notices []notice.Notice
}

func (q *recordingQueue) Enqueue(_ context.Context, n notice.Notice) (int64, error) {
	q.notices = append(q.notices, n)
	return int64(len(q.notices)), nil
}

type appProducts map[string]*solitude.Product

func (p appProducts) GetActiveProduct(_ context.Context, publicID string) (*solitude.Product, error) {
	product, ok := p[publicID]
	if !ok {
		return nil, solitude.ErrNotFound
	}
	return product, nil
}

func TestScheduleNoticeRequiresServiceToken(t *testing.T) {
	resolver := issuer.NewResolver(issuer.Config{Key: "marketplace-key", Secret: "marketplace-secret"}, appProducts{
		"victim-app": {PublicID: "victim-app", Secret: "victim-app-secret"},
	})
	queue := &recordingQueue{}
	handler := NewHandler(Config{
		Scheduler:     postback.NewService(postback.Config{NotifyIssuer: "marketplace-key", AllowedSchemes: []string{"https"}}, resolver, queue, nil),
		Authenticator: resolver,
	})
	body := `{"type":"payment","issuer":"victim-app","url":"https://attacker.example/collect","response":{"price":{"amount":"0.99"}}}`

	forged, err := issuer.SignServiceToken("marketplace-key", "victim-app-secret", time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("sign forged token: %v", err)
	}
	for name, authorization := range map[string]string{
		"no token":     "",
		"wrong secret": "Bearer " + forged,
		"garbage":      "Bearer not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, NoticesPath, strings.NewReader(body))
			if authorization != "" {
				req.Header.Set("Authorization", authorization)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
		})
	}
	if len(queue.notices) != 0 {
		t.Fatalf("queued %d notices without a valid service token", len(queue.notices))
	}

	token, err := issuer.SignServiceToken("marketplace-key", "marketplace-secret", time.Now(), time.Minute)
	if err != nil {
		t.Fatalf("sign service token: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, NoticesPath, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}
	if len(queue.notices) != 1 {
		t.Fatalf("queued %d notices, want 1", len(queue.notices))
	}
}

func TestScheduleNoticeRejectsAllWithoutAuthenticator(t *testing.T) {
	scheduler := &fakeScheduler{}
	rr := httptest.NewRecorder()
	NewHandler(Config{Scheduler: scheduler}).ServeHTTP(rr, noticeRequest(`{"type":"payment"}`))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if len(scheduler.requests) != 0 {
		t.Fatalf("scheduled = %d, want 0", len(scheduler.requests))
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(Config{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestNewServerRequiresAddress(t *testing.T) {
	if _, err := NewServer(Config{}); err == nil {
		t.Fatal("expected error for missing address")
	}
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	server, err := NewServer(Config{HTTPAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := server.ListenAndServe(ctx); err != nil {
		t.Fatalf("listen and serve: %v", err)
	}
}

func freeAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	if err := listener.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	return addr
}

func TestListenAndServeWithConnectionLimit(t *testing.T) {
	addr := freeAddr(t)
	server, err := NewServer(Config{HTTPAddr: addr, MaxConns: 2})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.ListenAndServe(ctx)
	}()

	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := client.Get("http://" + addr + HealthPath)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				t.Fatalf("health status = %d, want %d", resp.StatusCode, http.StatusNoContent)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never answered: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	client.CloseIdleConnections()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("listen and serve: %v", err)
	}
}

func TestRunRequiresSolitudeURL(t *testing.T) {
	if err := Run(context.Background(), RuntimeConfig{HTTPAddr: "127.0.0.1:0"}); err == nil {
		t.Fatal("expected error for missing solitude url")
	}
}
