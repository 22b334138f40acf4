package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"settlement-platform/internal/settlement/application"
)

func TestWebhookNotifierPostsAlert(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL)
	err := n.Notify(context.Background(), AlertMessage{
		Stage:   "confirmation",
		BrandID: 7,
		Period:  "202510",
		Detail:  "recompute mismatch",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.MsgType != "text" {
		t.Fatalf("expected text msgtype, got %q", got.MsgType)
	}
	if !strings.Contains(got.Text.Content, "Brand: 7") {
		t.Fatalf("missing brand in content: %q", got.Text.Content)
	}
	if !strings.Contains(got.Text.Content, "202510") {
		t.Fatalf("missing period in content: %q", got.Text.Content)
	}
}

func TestWebhookNotifierChunkFailure(t *testing.T) {
	var content string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		content = payload.Text.Content
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL)
	n.NotifyChunkFailure(context.Background(), application.Partition{Lo: 100, Hi: 199}, context.DeadlineExceeded)

	if !strings.Contains(content, "payments 100..199") {
		t.Fatalf("missing partition in content: %q", content)
	}
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL)
	if err := n.Notify(context.Background(), AlertMessage{Stage: "ingestion"}); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}
