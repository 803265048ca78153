package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// WebhookNotifier sends statement notifications via webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify sends a statement notification to webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg StatementMessage) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	content := formatStatementMessage(msg)
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: content},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return errors.New("webhook notifier: non-2xx")
	}
	return nil
}

func formatStatementMessage(msg StatementMessage) string {
	var b strings.Builder
	b.WriteString("[Royalty Statement]\n")
	if msg.CreatorID != "" {
		fmt.Fprintf(&b, "Creator: %s\n", msg.CreatorID)
	}
	if msg.RunID != "" {
		fmt.Fprintf(&b, "Run: %s\n", msg.RunID)
	}
	if msg.StatementID != "" {
		fmt.Fprintf(&b, "Statement: %s\n", msg.StatementID)
	}
	if msg.Total != "" {
		fmt.Fprintf(&b, "Total: %s\n", msg.Total)
	}
	if msg.Payable {
		b.WriteString("Payable this cycle\n")
	} else {
		b.WriteString("Held below payout threshold\n")
	}
	return strings.TrimSpace(b.String())
}
