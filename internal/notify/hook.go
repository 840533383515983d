package notify

import (
	"context"

	"github.com/wolfman30/zalo-lead-notifier/internal/leads"
	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

// LeadNotifier is the dispatch step the hook invokes.
type LeadNotifier interface {
	NotifyNewLead(ctx context.Context, lead leads.Lead, recipients []string) []Outcome
}

// HookResult reports what the hook did with an after-save event.
type HookResult struct {
	Dispatched bool
	Reason     string
	Outcomes   []Outcome
}

// Reasons a save event was not dispatched.
const (
	SkipNotNew      = "not_new"
	SkipDisabled    = "disabled"
	SkipNoRecipient = "no_recipients"
)

// LeadHook adapts CRM after-save events to the dispatcher.
type LeadHook struct {
	notifier   LeadNotifier
	enabled    bool
	recipients []string
	logger     *logging.Logger
}

func NewLeadHook(notifier LeadNotifier, enabled bool, recipients []string, logger *logging.Logger) *LeadHook {
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadHook{
		notifier:   notifier,
		enabled:    enabled,
		recipients: append([]string(nil), recipients...),
		logger:     logger,
	}
}

// AfterSave dispatches a notification for newly inserted leads only, and
// only when the feature is enabled with at least one recipient configured.
// Updates never reach the dispatcher.
func (h *LeadHook) AfterSave(ctx context.Context, evt leads.AfterSaveEvent) HookResult {
	if !evt.IsNew {
		return HookResult{Reason: SkipNotNew}
	}
	if !h.enabled {
		h.logger.Debug("notify: zalo notifications disabled", "lead_id", evt.Lead.ID)
		return HookResult{Reason: SkipDisabled}
	}
	if len(h.recipients) == 0 {
		h.logger.Warn("notify: no zalo recipients configured", "lead_id", evt.Lead.ID)
		return HookResult{Reason: SkipNoRecipient}
	}

	outcomes := h.notifier.NotifyNewLead(ctx, evt.Lead, h.recipients)
	delivered := 0
	for _, o := range outcomes {
		if o.Delivered {
			delivered++
		}
	}
	h.logger.Info("notify: new lead dispatched", "lead_id", evt.Lead.ID, "recipients", len(outcomes), "delivered", delivered)
	return HookResult{Dispatched: true, Outcomes: outcomes}
}
