package clients

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// WebhookClient delivers signed event payloads to merchant endpoints.
// It implements interfaces.WebhookSender.
type WebhookClient struct {
	httpClient *http.Client
}

// NewWebhookClient creates a webhook client with a per-request timeout
func NewWebhookClient(timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SignPayload computes the webhook signature for a payload at a timestamp.
// The signed message is "<unix seconds>.<body>" keyed with the invoice's
// secret, hex-encoded HMAC-SHA256. Receivers rebuild the same string and
// compare; the timestamp bound limits replays.
func SignPayload(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Send posts the payload to the endpoint. Any non-2xx response is an error;
// the caller decides whether to retry.
func (c *WebhookClient) Send(ctx context.Context, url string, payload []byte, secret string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}

	timestamp := time.Now().Unix()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(timestamp, 10))
	if secret != "" {
		req.Header.Set("X-Webhook-Signature", SignPayload(secret, timestamp, payload))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
