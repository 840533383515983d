package zalo

import (
	"context"
	"fmt"
	"time"
)

// TokenStatus describes the stored access token without exposing it.
type TokenStatus struct {
	HasAccessToken bool
	HasExpiryTime  bool
	CurrentTime    time.Time
	IsExpired      bool
	ExpiresAt      time.Time
	Remaining      time.Duration
}

// Status reports the state of the stored credentials. It never refreshes.
func (m *TokenManager) Status(ctx context.Context) (TokenStatus, error) {
	creds, err := m.store.Load(ctx)
	if err != nil {
		return TokenStatus{}, fmt.Errorf("zalo: token status: %w", err)
	}
	now := m.now()
	st := TokenStatus{
		HasAccessToken: creds.AccessToken != "",
		HasExpiryTime:  !creds.ExpiresAt.IsZero(),
		CurrentTime:    now,
	}
	if !st.HasExpiryTime {
		return st, nil
	}
	st.ExpiresAt = creds.ExpiresAt
	st.IsExpired = !now.Before(creds.ExpiresAt)
	if !st.IsExpired {
		st.Remaining = creds.ExpiresAt.Sub(now)
	}
	return st, nil
}

// FormatRemaining renders d as whole days, hours and minutes.
func FormatRemaining(d time.Duration, locale string) string {
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := (total % (24 * 60)) / 60
	minutes := total % 60
	if locale == "en" {
		return fmt.Sprintf("%d days %d hours %d minutes", days, hours, minutes)
	}
	return fmt.Sprintf("%d ngày %d giờ %d phút", days, hours, minutes)
}
