package alert

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"warden/internal/config"
)

func TestSendDeliversPayload(t *testing.T) {
	var got payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := New(config.AlertConfig{Enabled: true, WebhookURL: server.URL}, zap.NewNop())
	if notifier == nil {
		t.Fatalf("expected an active notifier")
	}

	notifier.Send(context.Background(), "circuit breaker opened: mute_user")
	if got.Content != "circuit breaker opened: mute_user" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var notifier *Notifier
	notifier.Send(context.Background(), "dropped")
}

func TestDisabledConfigReturnsNil(t *testing.T) {
	if New(config.AlertConfig{Enabled: false, WebhookURL: "https://example.com"}, zap.NewNop()) != nil {
		t.Fatalf("disabled config must not build a notifier")
	}
	if New(config.AlertConfig{Enabled: true, WebhookURL: ""}, zap.NewNop()) != nil {
		t.Fatalf("empty url must not build a notifier")
	}
}
