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

	"settlement-platform/internal/settlement/application"
)

// AlertMessage describes a pipeline failure for operators.
type AlertMessage struct {
	Stage   string
	BrandID int64
	Period  string
	Detail  string
}

// WebhookNotifier posts pipeline alerts to a webhook channel.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

var _ application.FailureNotifier = (*WebhookNotifier)(nil)

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

// NotifyChunkFailure reports an ingestion chunk that was skipped.
func (n *WebhookNotifier) NotifyChunkFailure(ctx context.Context, part application.Partition, cause error) {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	_ = n.Notify(ctx, AlertMessage{
		Stage:  "ingestion",
		Period: fmt.Sprintf("payments %d..%d", part.Lo, part.Hi),
		Detail: detail,
	})
}

// Notify sends an alert to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	payload := webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatAlertMessage(msg)},
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

func formatAlertMessage(msg AlertMessage) string {
	var b strings.Builder
	b.WriteString("[Settlement Alert]\n")
	if msg.Stage != "" {
		fmt.Fprintf(&b, "Stage: %s\n", msg.Stage)
	}
	if msg.BrandID > 0 {
		fmt.Fprintf(&b, "Brand: %d\n", msg.BrandID)
	}
	if msg.Period != "" {
		fmt.Fprintf(&b, "Period: %s\n", msg.Period)
	}
	if msg.Detail != "" {
		fmt.Fprintf(&b, "Detail: %s\n", msg.Detail)
	}
	return strings.TrimSpace(b.String())
}
