// Package messages stores one-time user messages across redirects in a
// cookie. Messages are consumed when read.
package messages

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
)

// CookieName is the cookie holding pending messages.
const CookieName = "webpay_messages"

// maxPending bounds the messages kept in one cookie; older ones are dropped.
const maxPending = 10

// Level classifies message presentation.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Message is one pending user message.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

// Add queues a message for the next page render, keeping any messages
// already pending on the request.
func Add(w http.ResponseWriter, r *http.Request, msg Message) {
	if w == nil {
		return
	}
	normalized, ok := normalize(msg)
	if !ok {
		return
	}
	pending := append(pendingFrom(r), normalized)
	if len(pending) > maxPending {
		pending = pending[len(pending)-maxPending:]
	}
	payload, err := json.Marshal(pending)
	if err != nil {
		return
	}
	writeCookie(w, r, base64.RawURLEncoding.EncodeToString(payload), 0)
}

// Read returns the pending messages and expires them.
func Read(w http.ResponseWriter, r *http.Request) []Message {
	pending := pendingFrom(r)
	if hasCookie(r) {
		Clear(w, r)
	}
	return pending
}

// Clear drops every pending message without rendering it. Messages added
// later in the same request start from an empty list.
func Clear(w http.ResponseWriter, r *http.Request) {
	if w == nil {
		return
	}
	writeCookie(w, r, "", -1)
	dropRequestCookie(r)
}

func dropRequestCookie(r *http.Request) {
	if !hasCookie(r) {
		return
	}
	kept := make([]*http.Cookie, 0, len(r.Cookies()))
	for _, cookie := range r.Cookies() {
		if cookie.Name != CookieName {
			kept = append(kept, cookie)
		}
	}
	r.Header.Del("Cookie")
	for _, cookie := range kept {
		r.AddCookie(cookie)
	}
}

func writeCookie(w http.ResponseWriter, r *http.Request, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

func hasCookie(r *http.Request) bool {
	if r == nil {
		return false
	}
	_, err := r.Cookie(CookieName)
	return err == nil
}

func pendingFrom(r *http.Request) []Message {
	if r == nil {
		return nil
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	value := strings.TrimSpace(cookie.Value)
	if value == "" {
		return nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil
	}
	var raw []Message
	if err := json.Unmarshal(decoded, &raw); err != nil {
		return nil
	}
	pending := make([]Message, 0, len(raw))
	for _, msg := range raw {
		if normalized, ok := normalize(msg); ok {
			pending = append(pending, normalized)
		}
	}
	return pending
}

func normalize(msg Message) (Message, bool) {
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return Message{}, false
	}
	msg.Level = Level(strings.ToLower(strings.TrimSpace(string(msg.Level))))
	if msg.Level == "" {
		msg.Level = LevelInfo
	}
	switch msg.Level {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return msg, true
	default:
		return Message{}, false
	}
}

func isHTTPS(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	return r.URL != nil && strings.EqualFold(r.URL.Scheme, "https")
}
