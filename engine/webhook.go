package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/AjaxSelectButtonGames/spotlight/platform"
)

type webhookPayload struct {
	AuthorHandle string `json:"author_handle"`
	AuthorDID    string `json:"author_did"`
	Content      string `json:"content"`
	PostURL      string `json:"post_url"`
	Tag          string `json:"tag"`
}

// notifyWebhook POSTs an accepted candidate to the configured site bridge.
// Fire-and-forget: failures are logged and counted, never retried.
func (e *Engine) notifyWebhook(ctx context.Context, p platform.Post, rule string) {
	if e.cfg.WebhookURL == "" {
		return
	}
	body, err := json.Marshal(webhookPayload{
		AuthorHandle: p.AuthorHandle,
		AuthorDID:    p.AuthorDID,
		Content:      p.Text,
		PostURL:      platform.PostWebURL(p.AuthorHandle, p.URI),
		Tag:          rule,
	})
	if err != nil {
		e.logger.Warn("failed to encode webhook payload", "err", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.WebhookURL, bytes.NewBuffer(body))
	if err != nil {
		webhookFailures.Inc()
		e.logger.Warn("failed to build webhook request", "err", err)
		return
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := e.webhookClient.Do(req)
	if err != nil {
		webhookFailures.Inc()
		e.logger.Warn("webhook POST failed", "err", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		webhookFailures.Inc()
		e.logger.Warn("webhook POST rejected", "status", resp.StatusCode)
	}
}
