package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"warden/internal/config"
)

// Notifier posts operational alerts (breaker trips, enforcement mutes) to a
// webhook. A nil *Notifier is valid and drops everything, so callers never
// guard their sends.
type Notifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func New(cfg config.AlertConfig, logger *zap.Logger) *Notifier {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return nil
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = time.Second
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil
	client := retryClient.StandardClient()
	client.Timeout = 10 * time.Second

	return &Notifier{url: cfg.WebhookURL, client: client, logger: logger}
}

type payload struct {
	Content string `json:"content"`
}

// Send delivers one message. Failures are logged and swallowed; alerting is
// best effort and never blocks enforcement.
func (n *Notifier) Send(ctx context.Context, message string) {
	if n == nil {
		return
	}

	body, err := json.Marshal(payload{Content: message})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("alert request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("alert delivery failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		n.logger.Warn("alert rejected", zap.Int("status", resp.StatusCode))
	}
}
