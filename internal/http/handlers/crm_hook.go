package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/zalo-lead-notifier/internal/leads"
	"github.com/wolfman30/zalo-lead-notifier/internal/notify"
	"github.com/wolfman30/zalo-lead-notifier/internal/observability/metrics"
	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

// AfterSaver receives CRM after-save events.
type AfterSaver interface {
	AfterSave(ctx context.Context, evt leads.AfterSaveEvent) notify.HookResult
}

// CRMHookHandler accepts the CRM's lead after-save callback.
type CRMHookHandler struct {
	hook    AfterSaver
	metrics *metrics.NotifierMetrics
	logger  *logging.Logger
}

func NewCRMHookHandler(hook AfterSaver, m *metrics.NotifierMetrics, logger *logging.Logger) *CRMHookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CRMHookHandler{hook: hook, metrics: m, logger: logger}
}

type outcomeResponse struct {
	RecipientID      string `json:"recipient_id"`
	Delivered        bool   `json:"delivered"`
	MessageID        string `json:"message_id,omitempty"`
	ErrorKind        string `json:"error_kind,omitempty"`
	Error            string `json:"error,omitempty"`
	ProviderResponse string `json:"provider_response,omitempty"`
}

type hookResponse struct {
	LeadID     string            `json:"lead_id"`
	Dispatched bool              `json:"dispatched"`
	Reason     string            `json:"reason,omitempty"`
	Outcomes   []outcomeResponse `json:"outcomes"`
}

// LeadAfterSave maps the event onto the lead hook. Delivery failures still
// answer 200 so the CRM save is never treated as failed.
func (h *CRMHookHandler) LeadAfterSave(w http.ResponseWriter, r *http.Request) {
	var evt leads.AfterSaveEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&evt); err != nil {
		h.metrics.ObserveHook("invalid")
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if err := evt.Validate(); err != nil {
		if errors.Is(err, leads.ErrUnsupportedEntity) {
			h.metrics.ObserveHook("ignored")
			writeJSON(w, http.StatusOK, hookResponse{LeadID: evt.Lead.ID, Reason: "unsupported_entity", Outcomes: []outcomeResponse{}})
			return
		}
		h.metrics.ObserveHook("invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The CRM may hang up once the save is done; delivery carries on.
	ctx := context.WithoutCancel(r.Context())
	res := h.hook.AfterSave(ctx, evt)

	resp := hookResponse{
		LeadID:     evt.Lead.ID,
		Dispatched: res.Dispatched,
		Reason:     res.Reason,
		Outcomes:   make([]outcomeResponse, 0, len(res.Outcomes)),
	}
	for _, o := range res.Outcomes {
		or := outcomeResponse{RecipientID: o.RecipientID, Delivered: o.Delivered, MessageID: o.MessageID}
		if o.Err != nil {
			or.ErrorKind = string(o.Err.Kind)
			or.Error = o.Err.Error()
			or.ProviderResponse = o.Err.Raw
		}
		resp.Outcomes = append(resp.Outcomes, or)
	}
	if res.Dispatched {
		h.metrics.ObserveHook("dispatched")
	} else {
		h.metrics.ObserveHook("skipped")
	}
	writeJSON(w, http.StatusOK, resp)
}
