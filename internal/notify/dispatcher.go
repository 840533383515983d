package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/zalo-lead-notifier/internal/audit"
	"github.com/wolfman30/zalo-lead-notifier/internal/leads"
	"github.com/wolfman30/zalo-lead-notifier/internal/observability/metrics"
	"github.com/wolfman30/zalo-lead-notifier/internal/zalo"
	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

// TokenSource yields an access token for the messaging API.
type TokenSource interface {
	ValidAccessToken(ctx context.Context) (string, error)
}

// MessageSender delivers a text message to one recipient.
type MessageSender interface {
	SendText(ctx context.Context, accessToken, userID, text string) (*zalo.SendResponse, error)
}

// DeliveryRecorder persists per-recipient results.
type DeliveryRecorder interface {
	Record(ctx context.Context, d audit.Delivery) error
}

// DeliveryErrorKind classifies a failed delivery.
type DeliveryErrorKind string

const (
	NoToken   DeliveryErrorKind = "no_token"
	Rejected  DeliveryErrorKind = "rejected"
	Transport DeliveryErrorKind = "transport_error"
)

// DeliveryError explains why a recipient was not reached. Raw carries the
// provider's response body when there was one.
type DeliveryError struct {
	Kind       DeliveryErrorKind
	StatusCode int
	Raw        string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notify: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("notify: %s", e.Kind)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Outcome is the result for a single recipient.
type Outcome struct {
	RecipientID string
	Delivered   bool
	MessageID   string
	Err         *DeliveryError
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	SiteURL  string
	Template Template
	Location *time.Location
	Logger   *logging.Logger
	Metrics  *metrics.NotifierMetrics
	Audit    DeliveryRecorder
	Now      func() time.Time
}

// Dispatcher sends new-lead notifications to recipients one at a time.
type Dispatcher struct {
	tokens  TokenSource
	sender  MessageSender
	siteURL string
	tpl     Template
	loc     *time.Location
	logger  *logging.Logger
	metrics *metrics.NotifierMetrics
	audit   DeliveryRecorder
	now     func() time.Time
	tracer  trace.Tracer
}

func NewDispatcher(tokens TokenSource, sender MessageSender, cfg DispatcherConfig) *Dispatcher {
	if tokens == nil || sender == nil {
		panic("notify: token source and sender required")
	}
	if cfg.Template.Header == "" {
		cfg.Template = Vietnamese
	}
	if cfg.Location == nil {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			loc = time.FixedZone("ICT", 7*60*60)
		}
		cfg.Location = loc
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		tokens:  tokens,
		sender:  sender,
		siteURL: cfg.SiteURL,
		tpl:     cfg.Template,
		loc:     cfg.Location,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		audit:   cfg.Audit,
		now:     cfg.Now,
		tracer:  otel.Tracer("zalo.internal.notify"),
	}
}

// NotifyNewLead composes the lead message once and delivers it to every
// recipient in order. It returns one outcome per recipient and never fails
// as a whole; duplicate recipients are sent to twice.
func (d *Dispatcher) NotifyNewLead(ctx context.Context, lead leads.Lead, recipients []string) []Outcome {
	dispatchID := uuid.NewString()
	ctx, span := d.tracer.Start(ctx, "notify.lead.dispatch", trace.WithAttributes(
		attribute.String("lead.id", lead.ID),
		attribute.String("dispatch.id", dispatchID),
		attribute.Int("dispatch.recipients", len(recipients)),
	))
	defer span.End()

	text := ComposeLeadMessage(lead, d.tpl, d.siteURL, d.now(), d.loc)
	outcomes := make([]Outcome, 0, len(recipients))
	delivered := 0
	for _, recipient := range recipients {
		out := d.deliver(ctx, recipient, text)
		if out.Delivered {
			delivered++
			d.logger.Info("notify: lead notification delivered", "dispatch_id", dispatchID, "lead_id", lead.ID, "recipient_id", recipient)
		} else {
			d.logger.Error("notify: lead notification failed",
				"dispatch_id", dispatchID,
				"lead_id", lead.ID,
				"recipient_id", recipient,
				"error_kind", string(out.Err.Kind),
				"provider_response", out.Err.Raw,
				"error", out.Err,
			)
		}
		d.record(ctx, dispatchID, lead.ID, out)
		outcomes = append(outcomes, out)
	}
	span.SetAttributes(attribute.Int("dispatch.delivered", delivered))
	return outcomes
}

func (d *Dispatcher) deliver(ctx context.Context, recipient, text string) Outcome {
	out := Outcome{RecipientID: recipient}

	token, err := d.tokens.ValidAccessToken(ctx)
	if err != nil {
		out.Err = &DeliveryError{Kind: NoToken, Err: err}
		d.metrics.ObserveDelivery(string(NoToken))
		return out
	}

	start := time.Now()
	resp, err := d.sender.SendText(ctx, token, recipient, text)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		out.Err = classifySendError(err)
		d.metrics.ObserveDelivery(string(out.Err.Kind))
		d.metrics.ObserveSendLatency(string(out.Err.Kind), elapsed)
		return out
	}

	out.Delivered = true
	if resp != nil {
		out.MessageID = resp.Data.MessageID
	}
	d.metrics.ObserveDelivery(audit.OutcomeDelivered)
	d.metrics.ObserveSendLatency(audit.OutcomeDelivered, elapsed)
	return out
}

func classifySendError(err error) *DeliveryError {
	var apiErr *zalo.APIError
	if errors.As(err, &apiErr) {
		return &DeliveryError{Kind: Rejected, StatusCode: apiErr.StatusCode, Raw: apiErr.Raw, Err: err}
	}
	return &DeliveryError{Kind: Transport, Err: err}
}

func (d *Dispatcher) record(ctx context.Context, dispatchID, leadID string, out Outcome) {
	if d.audit == nil {
		return
	}
	entry := audit.Delivery{
		DispatchID:  dispatchID,
		LeadID:      leadID,
		RecipientID: out.RecipientID,
		Outcome:     audit.OutcomeDelivered,
	}
	if out.Err != nil {
		entry.Outcome = audit.OutcomeFailed
		entry.ErrorKind = string(out.Err.Kind)
		entry.ProviderResponse = out.Err.Raw
	}
	if err := d.audit.Record(ctx, entry); err != nil {
		d.logger.Warn("notify: failed to record delivery", "dispatch_id", dispatchID, "recipient_id", out.RecipientID, "error", err)
	}
}
