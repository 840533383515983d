package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/zalo-lead-notifier/internal/audit"
	"github.com/wolfman30/zalo-lead-notifier/internal/notify"
	"github.com/wolfman30/zalo-lead-notifier/internal/zalo"
	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

// TokenAdmin exposes token inspection and a forced refresh.
type TokenAdmin interface {
	Status(ctx context.Context) (zalo.TokenStatus, error)
	Refresh(ctx context.Context) (string, error)
}

// DeliveryLister reads back recorded deliveries.
type DeliveryLister interface {
	ListByLead(ctx context.Context, leadID string, limit int) ([]audit.Delivery, error)
}

// ZaloAdminHandler serves operator endpoints for the OA integration.
type ZaloAdminHandler struct {
	tokens     TokenAdmin
	deliveries DeliveryLister
	locale     string
	loc        *time.Location
	logger     *logging.Logger
}

func NewZaloAdminHandler(tokens TokenAdmin, deliveries DeliveryLister, locale string, loc *time.Location, logger *logging.Logger) *ZaloAdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ZaloAdminHandler{tokens: tokens, deliveries: deliveries, locale: locale, loc: loc, logger: logger}
}

type tokenStatusResponse struct {
	HasAccessToken bool    `json:"has_access_token"`
	HasExpiryTime  bool    `json:"has_expiry_time"`
	CurrentTime    string  `json:"current_time"`
	IsExpired      bool    `json:"is_expired"`
	ExpiresAt      *string `json:"expires_at"`
	TimeRemaining  *string `json:"time_remaining"`
}

func (h *ZaloAdminHandler) statusResponse(st zalo.TokenStatus) tokenStatusResponse {
	resp := tokenStatusResponse{
		HasAccessToken: st.HasAccessToken,
		HasExpiryTime:  st.HasExpiryTime,
		CurrentTime:    st.CurrentTime.In(h.loc).Format(notify.TimestampLayout),
		IsExpired:      st.IsExpired,
	}
	if st.HasExpiryTime {
		exp := st.ExpiresAt.In(h.loc).Format(notify.TimestampLayout)
		resp.ExpiresAt = &exp
		if !st.IsExpired {
			rem := zalo.FormatRemaining(st.Remaining, h.locale)
			resp.TimeRemaining = &rem
		}
	}
	return resp
}

// TokenStatus reports the stored token state without revealing it.
func (h *ZaloAdminHandler) TokenStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.tokens.Status(r.Context())
	if err != nil {
		h.logger.Error("zalo token status failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read token status")
		return
	}
	writeJSON(w, http.StatusOK, h.statusResponse(st))
}

// RefreshToken forces a refresh and returns the resulting status.
func (h *ZaloAdminHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	if _, err := h.tokens.Refresh(r.Context()); err != nil {
		h.logger.Error("zalo forced refresh failed", "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, zalo.ErrTokenMissing) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	st, err := h.tokens.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read token status")
		return
	}
	writeJSON(w, http.StatusOK, h.statusResponse(st))
}

// LeadDeliveries lists recorded deliveries for a lead, newest first.
func (h *ZaloAdminHandler) LeadDeliveries(w http.ResponseWriter, r *http.Request) {
	if h.deliveries == nil {
		writeError(w, http.StatusNotFound, "delivery log not configured")
		return
	}
	leadID := chi.URLParam(r, "leadID")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	out, err := h.deliveries.ListByLead(r.Context(), leadID, limit)
	if err != nil {
		h.logger.Error("list lead deliveries failed", "lead_id", leadID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if out == nil {
		out = []audit.Delivery{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lead_id": leadID, "deliveries": out})
}
