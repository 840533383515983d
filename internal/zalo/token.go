package zalo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/wolfman30/zalo-lead-notifier/internal/observability/metrics"
	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

const (
	DefaultOAuthURL    = "https://oauth.zaloapp.com/v4/oa/access_token"
	DefaultTokenBuffer = 300 * time.Second

	// defaultExpiresIn applies when the refresh response omits expires_in.
	defaultExpiresIn = 7776000 * time.Second
)

var errRefreshNotConfigured = errors.New("refresh token or app credentials not configured")

// TokenManagerConfig configures a TokenManager.
type TokenManagerConfig struct {
	App        AppIdentity
	OAuthURL   string
	Buffer     time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
	Metrics    *metrics.NotifierMetrics
	Now        func() time.Time
}

// TokenManager hands out a usable OA access token, refreshing it through the
// OAuth endpoint when it is within Buffer of expiry.
type TokenManager struct {
	store    CredentialStore
	app      AppIdentity
	oauthURL string
	buffer   time.Duration
	http     *http.Client
	logger   *logging.Logger
	metrics  *metrics.NotifierMetrics
	now      func() time.Time
	tracer   trace.Tracer
	group    singleflight.Group
}

func NewTokenManager(store CredentialStore, cfg TokenManagerConfig) *TokenManager {
	if store == nil {
		panic("zalo: credential store required")
	}
	if cfg.OAuthURL == "" {
		cfg.OAuthURL = DefaultOAuthURL
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultTokenBuffer
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(DefaultConnectTimeout, DefaultRequestTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenManager{
		store:    store,
		app:      cfg.App,
		oauthURL: cfg.OAuthURL,
		buffer:   cfg.Buffer,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		tracer:   otel.Tracer("zalo.internal.token"),
	}
}

// ValidAccessToken returns the current access token, refreshing it first when
// it expires within the buffer. A token without a known expiry is returned
// unchanged.
func (m *TokenManager) ValidAccessToken(ctx context.Context) (string, error) {
	ctx, span := m.tracer.Start(ctx, "zalo.token.valid_access_token")
	defer span.End()

	creds, err := m.store.Load(ctx)
	if err != nil {
		span.RecordError(err)
		return "", &TokenError{Kind: TokenUnavailable, Err: err}
	}
	if creds.AccessToken == "" {
		m.logger.Error("zalo: access token not configured")
		return "", &TokenError{Kind: TokenMissing}
	}
	if creds.ExpiresAt.IsZero() {
		m.logger.Warn("zalo: access token has no expiry, using it as-is")
		return creds.AccessToken, nil
	}

	now := m.now()
	remaining := creds.ExpiresAt.Sub(now)
	span.SetAttributes(attribute.Int64("zalo.token.remaining_seconds", int64(remaining.Seconds())))
	if remaining > m.buffer {
		return creds.AccessToken, nil
	}

	m.logger.Info("zalo: access token expiring, refreshing", "remaining_seconds", int64(remaining.Seconds()))
	token, err := m.refresh(ctx)
	if err != nil {
		span.RecordError(err)
		if remaining <= 0 {
			return "", &TokenError{Kind: TokenUnavailable, Err: err}
		}
		return "", err
	}
	return token, nil
}

// Refresh forces a refresh regardless of the current expiry.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	return m.refresh(ctx)
}

// refresh joins or starts the shared flight. The flight runs detached from
// the caller's cancellation; each caller stops waiting when its own ctx is done.
func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	flightCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.doRefresh(flightCtx)
	})
	select {
	case <-ctx.Done():
		return "", &TokenError{Kind: TokenNetwork, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

type refreshResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    flexSeconds `json:"expires_in"`
}

func (m *TokenManager) doRefresh(ctx context.Context) (string, error) {
	ctx, span := m.tracer.Start(ctx, "zalo.token.refresh")
	defer span.End()

	current, err := m.store.Load(ctx)
	if err != nil {
		span.RecordError(err)
		m.metrics.ObserveRefresh(string(TokenUnavailable))
		return "", &TokenError{Kind: TokenUnavailable, Err: err}
	}
	if current.RefreshToken == "" || m.app.AppID == "" || m.app.AppSecret == "" {
		m.logger.Error("zalo: cannot refresh access token",
			"has_refresh_token", current.RefreshToken != "",
			"has_app_id", m.app.AppID != "",
			"has_app_secret", m.app.AppSecret != "",
		)
		m.metrics.ObserveRefresh(string(TokenMissing))
		return "", &TokenError{Kind: TokenMissing, Err: errRefreshNotConfigured}
	}

	form := url.Values{
		"refresh_token": {current.RefreshToken},
		"app_id":        {m.app.AppID},
		"grant_type":    {"refresh_token"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &TokenError{Kind: TokenNetwork, Err: fmt.Errorf("create refresh request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("secret_key", m.app.AppSecret)

	resp, err := m.http.Do(req)
	if err != nil {
		span.RecordError(err)
		m.logger.Error("zalo: token refresh request failed", "error", err)
		m.metrics.ObserveRefresh(string(TokenNetwork))
		return "", &TokenError{Kind: TokenNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		m.metrics.ObserveRefresh(string(TokenNetwork))
		return "", &TokenError{Kind: TokenNetwork, StatusCode: resp.StatusCode, Err: fmt.Errorf("read refresh response: %w", err)}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		m.logger.Error("zalo: token refresh failed", "status", resp.StatusCode, "body", string(body))
		m.metrics.ObserveRefresh(string(TokenHTTP))
		return "", &TokenError{Kind: TokenHTTP, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		m.logger.Error("zalo: token refresh response not json", "body", string(body))
		m.metrics.ObserveRefresh(string(TokenInvalidResponse))
		return "", &TokenError{Kind: TokenInvalidResponse, StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	if parsed.AccessToken == "" || parsed.RefreshToken == "" {
		m.logger.Error("zalo: token refresh response missing tokens", "body", string(body))
		m.metrics.ObserveRefresh(string(TokenInvalidResponse))
		return "", &TokenError{Kind: TokenInvalidResponse, StatusCode: resp.StatusCode, Body: string(body)}
	}

	expiresIn := defaultExpiresIn
	if parsed.ExpiresIn.set {
		expiresIn = time.Duration(parsed.ExpiresIn.value) * time.Second
	}
	next := Credentials{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    m.now().Add(expiresIn).UTC().Truncate(time.Second),
	}
	if err := m.store.Save(ctx, next); err != nil {
		// The provider already rotated the pair; hand out the new token anyway.
		span.RecordError(err)
		m.logger.Error("zalo: failed to persist refreshed credentials", "error", err)
		m.metrics.ObserveCredentialSaveFailure()
	}
	m.metrics.ObserveRefresh("success")
	m.logger.Info("zalo: access token refreshed", "expires_at", next.ExpiresAt.Format(time.RFC3339))
	return next.AccessToken, nil
}

// flexSeconds accepts expires_in as a JSON number or a numeric string.
type flexSeconds struct {
	value int64
	set   bool
}

func (f *flexSeconds) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("expires_in: %w", err)
	}
	if v <= 0 {
		return nil
	}
	f.value = int64(v)
	f.set = true
	return nil
}
