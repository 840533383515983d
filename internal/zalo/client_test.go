package zalo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSendTextSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("access_token"); got != "tok" {
			t.Errorf("unexpected access_token header %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected content type %q", got)
		}
		var req SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.Recipient.UserID != "U1" || req.Message.Text != "hello" {
			t.Errorf("unexpected request %+v", req)
		}
		fmt.Fprint(w, `{"error":0,"message":"Success","data":{"message_id":"m-1","user_id":"U1"}}`)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, srv.Client()).SendText(context.Background(), "tok", "U1", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Data.MessageID != "m-1" {
		t.Fatalf("unexpected message id %q", resp.Data.MessageID)
	}
}

func TestSendTextRejections(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode *int
	}{
		{"provider error code", http.StatusOK, `{"error":2,"message":"invalid"}`, intPtr(2)},
		{"missing error field", http.StatusOK, `{"message":"ok?"}`, nil},
		{"malformed json", http.StatusOK, `not json`, nil},
		{"non 200", http.StatusUnauthorized, `{"error":0}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, srv.Client()).SendText(context.Background(), "tok", "U1", "hello")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Raw != tt.body || apiErr.StatusCode != tt.status {
				t.Fatalf("unexpected api error %+v", apiErr)
			}
			if (tt.wantCode == nil) != (apiErr.Code == nil) || (tt.wantCode != nil && *tt.wantCode != *apiErr.Code) {
				t.Fatalf("unexpected code %v", apiErr.Code)
			}
		})
	}
}

func TestSendTextTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, nil).SendText(context.Background(), "tok", "U1", "hello")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestNewHTTPClientDefaults(t *testing.T) {
	c := NewHTTPClient(0, 0)
	if c.Timeout != DefaultRequestTimeout {
		t.Fatalf("expected default timeout, got %v", c.Timeout)
	}
	if NewClient("", nil).apiURL != DefaultAPIURL {
		t.Fatalf("expected default api url")
	}
}

func intPtr(v int) *int { return &v }
