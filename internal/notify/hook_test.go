package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/wolfman30/zalo-lead-notifier/internal/leads"
	"github.com/wolfman30/zalo-lead-notifier/internal/zalo"
	"github.com/wolfman30/zalo-lead-notifier/pkg/logging"
)

type countingNotifier struct {
	calls      int
	recipients []string
}

func (n *countingNotifier) NotifyNewLead(ctx context.Context, lead leads.Lead, recipients []string) []Outcome {
	n.calls++
	n.recipients = recipients
	out := make([]Outcome, len(recipients))
	for i, r := range recipients {
		out[i] = Outcome{RecipientID: r, Delivered: i == 0}
	}
	return out
}

func TestLeadHookGating(t *testing.T) {
	tests := []struct {
		name       string
		enabled    bool
		recipients []string
		isNew      bool
		wantReason string
		wantCalls  int
	}{
		{"update is ignored", true, []string{"U1"}, false, SkipNotNew, 0},
		{"disabled", false, []string{"U1"}, true, SkipDisabled, 0},
		{"no recipients", true, nil, true, SkipNoRecipient, 0},
		{"dispatched", true, []string{"U1", "U2"}, true, "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &countingNotifier{}
			hook := NewLeadHook(n, tt.enabled, tt.recipients, logging.Discard())
			res := hook.AfterSave(context.Background(), leads.AfterSaveEvent{IsNew: tt.isNew, Lead: leads.Lead{ID: "L1"}})
			if res.Reason != tt.wantReason || n.calls != tt.wantCalls {
				t.Fatalf("got reason=%q calls=%d", res.Reason, n.calls)
			}
			if tt.wantCalls == 1 {
				if !res.Dispatched || len(res.Outcomes) != len(tt.recipients) {
					t.Fatalf("unexpected result %+v", res)
				}
			}
		})
	}
}

func TestLeadHookDisabledMakesNoNetworkCalls(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	store := zalo.NewMemoryCredentialStore(zalo.Credentials{AccessToken: "tok", RefreshToken: "ref", ExpiresAt: fixedNow})
	mgr := zalo.NewTokenManager(store, zalo.TokenManagerConfig{
		App:      zalo.AppIdentity{AppID: "app", AppSecret: "secret"},
		OAuthURL: srv.URL,
		Logger:   logging.Discard(),
	})
	dispatcher := newTestDispatcher(mgr, zalo.NewClient(srv.URL, srv.Client()), nil)
	hook := NewLeadHook(dispatcher, false, []string{"U1"}, logging.Discard())

	res := hook.AfterSave(context.Background(), leads.AfterSaveEvent{IsNew: true, Lead: leads.Lead{ID: "L1"}})
	if res.Dispatched || hits.Load() != 0 {
		t.Fatalf("expected no dispatch, got %+v with %d calls", res, hits.Load())
	}
}

func TestLeadHookCopiesRecipients(t *testing.T) {
	recipients := []string{"U1"}
	n := &countingNotifier{}
	hook := NewLeadHook(n, true, recipients, logging.Discard())
	recipients[0] = "changed"
	hook.AfterSave(context.Background(), leads.AfterSaveEvent{IsNew: true, Lead: leads.Lead{ID: "L1"}})
	if n.recipients[0] != "U1" {
		t.Fatalf("expected hook to keep its own recipient list, got %v", n.recipients)
	}
}
