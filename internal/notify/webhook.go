// Package notify delivers engine events to external consumers over
// signed webhooks. Deliveries are filtered by event type and fanned out
// to every configured endpoint; a failing endpoint never blocks the
// engines or the other endpoints.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upstreampay/payrouter/internal/crypto"
)

// WebhookSender posts JSON payloads to a single endpoint, signing each
// delivery so the receiver can verify origin and freshness.
type WebhookSender struct {
	url    string
	signer *crypto.WebhookSigner
	client *http.Client
}

// NewWebhookSender creates a WebhookSender for the given endpoint URL.
// signer may be nil, in which case deliveries are unsigned.
func NewWebhookSender(url string, signer *crypto.WebhookSigner) *WebhookSender {
	return &WebhookSender{
		url:    url,
		signer: signer,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts body to the endpoint. Non-2xx responses are errors.
func (w *WebhookSender) Send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.signer != nil {
		for k, v := range w.signer.Headers(body) {
			req.Header.Set(k, v)
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// Name returns the sender identifier (its endpoint URL).
func (w *WebhookSender) Name() string {
	return w.url
}
