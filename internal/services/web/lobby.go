package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/louisbranch/webpay/internal/services/pay/issuer"
	"github.com/louisbranch/webpay/internal/services/web/platform/httpx"
	"github.com/louisbranch/webpay/internal/services/web/platform/messages"
)

// Lobby messages shown after a rejected pay request.
const (
	msgUnknownIssuer  = "This app is not set up to accept payments."
	msgInvalidRequest = "The payment request could not be verified."
)

func settingsJSON(settings map[string]any) (string, error) {
	if settings == nil {
		settings = map[string]any{}
	}
	encoded, err := json.Marshal(settings)
	if err != nil {
		return "", fmt.Errorf("encode js settings: %w", err)
	}
	return string(encoded), nil
}

// handleLobby renders the pay lobby. A req parameter starts a new purchase:
// stale messages from earlier flows are dropped and the pay request is
// verified. A rejected request is reported through a one-time message on a
// redirect back to the plain lobby.
func (h *handler) handleLobby(w http.ResponseWriter, r *http.Request) {
	params := LobbyParams{Settings: h.jsSettings}

	token := strings.TrimSpace(r.URL.Query().Get("req"))
	if token == "" {
		params.Messages = messages.Read(w, r)
		h.renderLobby(w, r, http.StatusOK, params)
		return
	}

	messages.Clear(w, r)
	if h.verifier == nil {
		h.renderLobby(w, r, http.StatusServiceUnavailable, params)
		return
	}
	payReq, _, err := h.verifier.VerifyRequest(httpx.RequestContext(r), token)
	if err != nil {
		text := msgInvalidRequest
		if issuer.IsUnknownIssuer(err) {
			text = msgUnknownIssuer
		}
		log.Printf("pay request rejected: %v", err)
		messages.Add(w, r, messages.Message{Level: messages.LevelError, Text: text})
		http.Redirect(w, r, LobbyPath, http.StatusSeeOther)
		return
	}
	params.Issuer = payReq.Issuer
	h.renderLobby(w, r, http.StatusOK, params)
}

func (h *handler) renderLobby(w http.ResponseWriter, r *http.Request, status int, params LobbyParams) {
	if err := httpx.WriteComponent(w, r, status, LobbyPage(params)); err != nil {
		log.Printf("render lobby: %v", err)
	}
}
