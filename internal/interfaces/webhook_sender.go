package interfaces

import "context"

// WebhookSender delivers one signed payload to a merchant endpoint.
type WebhookSender interface {
	Send(ctx context.Context, url string, payload []byte, secret string) error
}
