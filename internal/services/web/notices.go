package web

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/louisbranch/webpay/internal/platform/errors"
	"github.com/louisbranch/webpay/internal/services/pay/notice"
	"github.com/louisbranch/webpay/internal/services/pay/postback"
	"github.com/louisbranch/webpay/internal/services/web/platform/httpx"
)

const maxNoticeRequestBytes = 64 << 10

type scheduleNoticeRequest struct {
	Type       string         `json:"type"`
	Issuer     string         `json:"issuer"`
	URL        string         `json:"url"`
	Request    map[string]any `json:"request"`
	Response   map[string]any `json:"response"`
	TransID    string         `json:"trans_id"`
	Simulation string         `json:"simulation"`
}

type scheduleNoticeResponse struct {
	TransID string `json:"trans_id"`
	TaskID  int64  `json:"task_id"`
}

// handleScheduleNotice queues a signed payment or chargeback notice for an app.
func (h *handler) handleScheduleNotice(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		httpx.WriteError(w, apperrors.New(apperrors.CodeNotFound, "notice scheduling is disabled"))
		return
	}
	var body scheduleNoticeRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNoticeRequestBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		httpx.WriteError(w, apperrors.Wrap(apperrors.CodeInvalidRequest, "invalid notice request body", err))
		return
	}

	simulated := notice.Simulation(body.Simulation)
	switch simulated {
	case notice.NotSimulated, notice.SimulatedPostback, notice.SimulatedChargeback:
	default:
		httpx.WriteError(w, apperrors.New(apperrors.CodeInvalidRequest, "unknown simulation "+body.Simulation))
		return
	}
	typ := notice.Type(body.Type)
	if typ != notice.TypePayment && typ != notice.TypeChargeback {
		httpx.WriteError(w, apperrors.New(apperrors.CodeInvalidRequest, "unknown notice type "+body.Type))
		return
	}

	scheduled, err := h.scheduler.Schedule(httpx.RequestContext(r), postback.Request{
		Type:       typ,
		AppIssuer:  body.Issuer,
		URL:        body.URL,
		PayRequest: body.Request,
		Response:   body.Response,
		TransID:    body.TransID,
		Simulated:  simulated,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusAccepted, scheduleNoticeResponse{
		TransID: scheduled.TransID,
		TaskID:  scheduled.TaskID,
	})
}
