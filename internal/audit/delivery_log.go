// Package audit keeps an append-only record of lead notification deliveries.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome values stored per delivery.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
)

// Delivery is one recipient's result for one dispatch.
type Delivery struct {
	ID               string    `json:"id"`
	DispatchID       string    `json:"dispatch_id"`
	LeadID           string    `json:"lead_id"`
	RecipientID      string    `json:"recipient_id"`
	Outcome          string    `json:"outcome"`
	ErrorKind        string    `json:"error_kind,omitempty"`
	ProviderResponse string    `json:"provider_response,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// DeliveryLog writes deliveries to the notification_deliveries table.
type DeliveryLog struct {
	db *sql.DB
}

func NewDeliveryLog(db *sql.DB) *DeliveryLog {
	return &DeliveryLog{db: db}
}

// Record inserts a delivery row.
func (l *DeliveryLog) Record(ctx context.Context, d Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notification_deliveries (
			id, dispatch_id, lead_id, recipient_id, outcome,
			error_kind, provider_response, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := l.db.ExecContext(ctx, query,
		d.ID,
		d.DispatchID,
		d.LeadID,
		d.RecipientID,
		d.Outcome,
		nullString(d.ErrorKind),
		nullString(d.ProviderResponse),
		d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: record delivery: %w", err)
	}
	return nil
}

// ListByLead returns the newest deliveries for a lead, at most limit rows
// (50 when limit <= 0).
func (l *DeliveryLog) ListByLead(ctx context.Context, leadID string, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, dispatch_id, lead_id, recipient_id, outcome,
			error_kind, provider_response, created_at
		FROM notification_deliveries
		WHERE lead_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := l.db.QueryContext(ctx, query, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list deliveries: %w", err)
	}
	defer rows.Close()

	var out []Delivery
	for rows.Next() {
		var d Delivery
		var errorKind, providerResp sql.NullString
		if err := rows.Scan(
			&d.ID, &d.DispatchID, &d.LeadID, &d.RecipientID, &d.Outcome,
			&errorKind, &providerResp, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: scan delivery: %w", err)
		}
		d.ErrorKind = errorKind.String
		d.ProviderResponse = providerResp.String
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate deliveries: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
