package zalo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultAPIURL = "https://openapi.zalo.me/v3.0/oa/message/cs"

// Client sends customer-service messages through the Zalo OA API.
type Client struct {
	apiURL     string
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewClient creates a client posting to apiURL (DefaultAPIURL when empty).
func NewClient(apiURL string, httpClient *http.Client) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultConnectTimeout, DefaultRequestTimeout)
	}
	return &Client{
		apiURL:     apiURL,
		httpClient: httpClient,
		tracer:     otel.Tracer("zalo.internal.client"),
	}
}

// SendText delivers text to a single user. Delivery counts as successful only
// for HTTP 200 with a decoded error code of zero; anything else that came
// back from the provider is an *APIError, and failures before a response is
// read are a *TransportError.
func (c *Client) SendText(ctx context.Context, accessToken, userID, text string) (*SendResponse, error) {
	ctx, span := c.tracer.Start(ctx, "zalo.client.send_text")
	defer span.End()

	body, err := json.Marshal(SendRequest{
		Recipient: Recipient{UserID: userID},
		Message:   TextMessage{Text: text},
	})
	if err != nil {
		return nil, fmt.Errorf("zalo: marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		return nil, &TransportError{Err: fmt.Errorf("read response: %w", err)}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Raw: string(raw)}
	}

	var sendResp SendResponse
	if err := json.Unmarshal(raw, &sendResp); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "malformed response", Raw: string(raw)}
	}
	if sendResp.Error == nil || *sendResp.Error != 0 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Code: sendResp.Error, Message: sendResp.Message, Raw: string(raw)}
		span.RecordError(apiErr)
		return &sendResp, apiErr
	}
	return &sendResp, nil
}
